package audit

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"NetSentinel/internal/model"
)

const ledgerFileName = "ledger.gob"

// LedgerSource exposes the block records a snapshot should persist.
type LedgerSource interface {
	History(limit int) []*model.BlockRecord
}

// SnapshotWriter periodically serializes the block ledger to disk so an
// operator restart does not lose the audit trail or active blocks.
type SnapshotWriter struct {
	rootPath string
	interval time.Duration
	source   LedgerSource

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSnapshotWriter creates a writer persisting under rootPath.
func NewSnapshotWriter(rootPath string, interval time.Duration, source LedgerSource) (*SnapshotWriter, error) {
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &SnapshotWriter{
		rootPath: rootPath,
		interval: interval,
		source:   source,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the periodic snapshot loop.
func (w *SnapshotWriter) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop takes a final snapshot and terminates the loop.
func (w *SnapshotWriter) Stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *SnapshotWriter) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.write(); err != nil {
				log.Printf("Failed to write ledger snapshot: %v", err)
			}
		case <-w.done:
			if err := w.write(); err != nil {
				log.Printf("Failed to write final ledger snapshot: %v", err)
			}
			return
		}
	}
}

// write serializes the full ledger atomically via a temp file rename.
func (w *SnapshotWriter) write() error {
	records := w.source.History(0)

	tmp := filepath.Join(w.rootPath, ledgerFileName+".tmp")
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(records); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(w.rootPath, ledgerFileName))
}

// LoadLedger reads a previously written snapshot. A missing file returns an
// empty ledger, not an error.
func LoadLedger(rootPath string) ([]*model.BlockRecord, error) {
	file, err := os.Open(filepath.Join(rootPath, ledgerFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger snapshot: %w", err)
	}
	defer file.Close()

	var records []*model.BlockRecord
	if err := gob.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode ledger snapshot: %w", err)
	}
	return records, nil
}
