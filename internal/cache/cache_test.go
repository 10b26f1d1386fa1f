package cache

import (
	"fmt"
	"testing"
	"time"

	"NetSentinel/internal/model"
)

func assessment(addr string) *model.ThreatAssessment {
	return &model.ThreatAssessment{Address: addr, Verdict: model.VerdictNormal, Timestamp: time.Now()}
}

func TestCacheHitWithinTTL(t *testing.T) {
	c := New(time.Minute, 10)
	key := Key("10.0.0.5", []float64{100, 200})

	if got := c.Get(key); got != nil {
		t.Fatalf("Get on empty cache = %v, want nil", got)
	}

	want := assessment("10.0.0.5")
	c.Put(key, want)
	if got := c.Get(key); got != want {
		t.Errorf("Get = %v, want the stored assessment", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New(20*time.Millisecond, 10)
	key := Key("10.0.0.5", []float64{100})
	c.Put(key, assessment("10.0.0.5"))

	time.Sleep(30 * time.Millisecond)
	if got := c.Get(key); got != nil {
		t.Errorf("Get after TTL = %v, want nil", got)
	}
	if got := c.Len(); got != 0 {
		t.Errorf("Len after expired read = %d, want 0", got)
	}
}

func TestCacheOverwrite(t *testing.T) {
	c := New(time.Minute, 10)
	key := Key("10.0.0.5", []float64{100})

	c.Put(key, assessment("first"))
	second := assessment("second")
	c.Put(key, second)

	if got := c.Get(key); got != second {
		t.Errorf("Get after overwrite = %v, want second assessment", got)
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len after overwrite = %d, want 1", got)
	}
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	c := New(time.Minute, 3)

	keys := make([]uint64, 4)
	for i := range keys {
		keys[i] = Key(fmt.Sprintf("10.0.0.%d", i), nil)
		c.Put(keys[i], assessment(fmt.Sprintf("10.0.0.%d", i)))
		time.Sleep(time.Millisecond) // distinct insertion times
	}

	if got := c.Len(); got != 3 {
		t.Fatalf("Len = %d, want capacity 3", got)
	}
	if got := c.Get(keys[0]); got != nil {
		t.Error("oldest entry should have been evicted")
	}
	for _, k := range keys[1:] {
		if got := c.Get(k); got == nil {
			t.Errorf("entry %d should survive eviction", k)
		}
	}
}

func TestKeyDistinguishesInputs(t *testing.T) {
	base := Key("10.0.0.5", []float64{100, 200})
	if Key("10.0.0.5", []float64{100, 200}) != base {
		t.Error("identical inputs must produce identical keys")
	}
	if Key("10.0.0.6", []float64{100, 200}) == base {
		t.Error("different address must change the key")
	}
	if Key("10.0.0.5", []float64{100, 201}) == base {
		t.Error("different sample must change the key")
	}
}
