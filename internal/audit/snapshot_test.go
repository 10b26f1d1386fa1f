package audit

import (
	"testing"
	"time"

	"NetSentinel/internal/model"
)

type staticLedger []*model.BlockRecord

func (s staticLedger) History(limit int) []*model.BlockRecord { return s }

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ledger := staticLedger{
		{ID: "a", Address: "10.0.0.5", BlockedAt: time.Now().Truncate(time.Second), Reason: "test", Status: model.StatusBlocked},
		{ID: "b", Address: "10.0.0.6", Status: model.StatusUnblocked},
	}

	w, err := NewSnapshotWriter(dir, time.Hour, ledger)
	if err != nil {
		t.Fatalf("NewSnapshotWriter failed: %v", err)
	}
	w.Start()
	w.Stop() // final snapshot on Stop

	records, err := LoadLedger(dir)
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("loaded %d records, want 2", len(records))
	}
	if records[0].Address != "10.0.0.5" || records[0].Status != model.StatusBlocked {
		t.Errorf("first record = %+v, want blocked 10.0.0.5", records[0])
	}
	if records[1].Status != model.StatusUnblocked {
		t.Errorf("second record status = %s, want unblocked", records[1].Status)
	}
}

func TestLoadLedgerMissingFile(t *testing.T) {
	records, err := LoadLedger(t.TempDir())
	if err != nil {
		t.Fatalf("LoadLedger on empty dir = %v, want nil error", err)
	}
	if records != nil {
		t.Errorf("records = %v, want nil for missing snapshot", records)
	}
}
