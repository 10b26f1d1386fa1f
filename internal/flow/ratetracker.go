package flow

import (
	"sync"
	"time"
)

// RateTracker measures per-source packet rates over a short trailing window.
type RateTracker struct {
	mu         sync.Mutex
	window     time.Duration
	timestamps map[string][]time.Time
}

// NewRateTracker creates a tracker with the given trailing window.
func NewRateTracker(window time.Duration) *RateTracker {
	return &RateTracker{
		window:     window,
		timestamps: make(map[string][]time.Time),
	}
}

// Add records one packet from src at ts and drops entries that fell out of
// the window.
func (rt *RateTracker) Add(src string, ts time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	q := append(rt.timestamps[src], ts)
	cutoff := ts.Add(-rt.window)
	i := 0
	for i < len(q) && q[i].Before(cutoff) {
		i++
	}
	rt.timestamps[src] = q[i:]
}

// PPS returns the packets-per-second rate for src over the trailing window.
func (rt *RateTracker) PPS(src string) float64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	q := rt.timestamps[src]
	if len(q) == 0 {
		return 0
	}
	return float64(len(q)) / rt.window.Seconds()
}

// Reset drops all tracked sources.
func (rt *RateTracker) Reset() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.timestamps = make(map[string][]time.Time)
}
