package flow

import (
	"testing"
	"time"
)

func TestRateTrackerPPS(t *testing.T) {
	rt := NewRateTracker(time.Second)
	now := time.Now()

	for i := 0; i < 50; i++ {
		rt.Add("10.0.0.5", now.Add(time.Duration(i)*10*time.Millisecond))
	}
	if got := rt.PPS("10.0.0.5"); got != 50 {
		t.Errorf("PPS = %f, want 50", got)
	}
	if got := rt.PPS("10.0.0.6"); got != 0 {
		t.Errorf("PPS for unknown source = %f, want 0", got)
	}
}

func TestRateTrackerPrunesOldEntries(t *testing.T) {
	rt := NewRateTracker(time.Second)
	now := time.Now()

	rt.Add("10.0.0.5", now.Add(-2*time.Second))
	rt.Add("10.0.0.5", now.Add(-1500*time.Millisecond))
	rt.Add("10.0.0.5", now)

	// The two stale timestamps fall outside the trailing window.
	if got := rt.PPS("10.0.0.5"); got != 1 {
		t.Errorf("PPS after pruning = %f, want 1", got)
	}
}

func TestRateTrackerReset(t *testing.T) {
	rt := NewRateTracker(time.Second)
	rt.Add("10.0.0.5", time.Now())
	rt.Reset()
	if got := rt.PPS("10.0.0.5"); got != 0 {
		t.Errorf("PPS after Reset = %f, want 0", got)
	}
}
