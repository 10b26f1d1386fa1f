// Package cache provides short-TTL memoization of threat assessments so that
// repeated identical detection requests within a narrow window skip the
// upstream classifier and reputation calls entirely.
package cache

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"NetSentinel/internal/model"
)

type entry struct {
	assessment *model.ThreatAssessment
	insertedAt time.Time
}

// ResultCache is a fixed-TTL cache keyed by a hash of (address, sample).
// Expiry is checked at read time; a capacity bound evicts the oldest entry
// to stay safe against adversarial request cardinality.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[uint64]entry
	ttl      time.Duration
	capacity int
}

// New creates a ResultCache. A non-positive capacity disables the bound.
func New(ttl time.Duration, capacity int) *ResultCache {
	return &ResultCache{
		entries:  make(map[uint64]entry),
		ttl:      ttl,
		capacity: capacity,
	}
}

// Key hashes an address and a traffic sample into a cache key.
func Key(address string, sample []float64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(address))
	var buf [8]byte
	for _, v := range sample {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Get returns the cached assessment for key, or nil if the entry is missing
// or older than the TTL.
func (c *ResultCache) Get(key uint64) *model.ThreatAssessment {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if time.Since(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return nil
	}
	return e.assessment
}

// Put stores an assessment, overwriting any existing entry for the same key.
// When the cache is full the oldest entry is evicted first.
func (c *ResultCache) Put(key uint64, a *model.ThreatAssessment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.capacity > 0 && len(c.entries) >= c.capacity {
		var oldestKey uint64
		var oldestAt time.Time
		first := true
		for k, e := range c.entries {
			if first || e.insertedAt.Before(oldestAt) {
				oldestKey, oldestAt = k, e.insertedAt
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = entry{assessment: a, insertedAt: time.Now()}
}

// Len returns the number of physically stored entries, expired or not.
// Note: This is for testing/metrics purposes.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
