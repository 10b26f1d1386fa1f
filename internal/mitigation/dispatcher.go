// Package mitigation owns the block ledger and drives the self-healing
// block/unblock lifecycle through the SDN collaborator.
package mitigation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"NetSentinel/internal/event"
	"NetSentinel/internal/model"

	"github.com/google/uuid"
)

var (
	// ErrNotBlocked is returned when unblocking an address with no active
	// record. A not-found condition, not a caller-aborting error.
	ErrNotBlocked = errors.New("address is not blocked")

	// ErrSimulatedBlock is returned when policy forbids manual unblock of a
	// simulated record, keeping test runs reproducible.
	ErrSimulatedBlock = errors.New("manual unblock of simulated block refused by policy")
)

// Dispatcher ensures each malicious address is blocked at most once
// concurrently. The ledger is the only mutable block state in the pipeline
// and is exposed solely through the atomic Block/Unblock operations.
type Dispatcher struct {
	blocker model.Blocker
	bus     *event.Bus

	mu      sync.Mutex
	active  map[string]*model.BlockRecord
	history []*model.BlockRecord

	blockDuration   time.Duration
	janitorInterval time.Duration
	maxHistory      int
	allowSimUnblock bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewDispatcher creates a dispatcher publishing block events on bus.
func NewDispatcher(blocker model.Blocker, bus *event.Bus, blockDuration, janitorInterval time.Duration, maxHistory int, allowSimUnblock bool) *Dispatcher {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Dispatcher{
		blocker:         blocker,
		bus:             bus,
		active:          make(map[string]*model.BlockRecord),
		blockDuration:   blockDuration,
		janitorInterval: janitorInterval,
		maxHistory:      maxHistory,
		allowSimUnblock: allowSimUnblock,
		done:            make(chan struct{}),
	}
}

// Start launches the self-healing janitor that expires stale blocks.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.janitor()
}

// Stop terminates the janitor.
func (d *Dispatcher) Stop() {
	close(d.done)
	d.wg.Wait()
}

// Block creates an active BlockRecord for address unless one already exists.
// The existence check and record creation are a single atomic step, so
// concurrent calls for the same address cannot both win. Returns the record
// and whether this call created it. A failing SDN call is logged; the
// decision and its enforcement are decoupled.
func (d *Dispatcher) Block(ctx context.Context, address, reason string, simulated bool) (*model.BlockRecord, bool) {
	d.mu.Lock()
	if rec, ok := d.active[address]; ok {
		d.mu.Unlock()
		return rec, false
	}
	rec := &model.BlockRecord{
		ID:        uuid.NewString(),
		Address:   address,
		BlockedAt: time.Now(),
		Reason:    reason,
		Simulated: simulated,
		Status:    model.StatusBlocked,
	}
	d.active[address] = rec
	d.history = append(d.history, rec)
	if len(d.history) > d.maxHistory {
		d.history = d.history[len(d.history)-d.maxHistory:]
	}
	d.mu.Unlock()

	if err := d.blocker.BlockIP(ctx, address); err != nil {
		log.Printf("Failed to install DROP rule for %s: %v", address, err)
	} else {
		log.Printf("Blocked %s (%s)", address, reason)
	}

	d.bus.Publish(model.EventIPBlocked, rec)
	return rec, true
}

// Unblock transitions an active record to unblocked. Manual unblocks of
// simulated records are refused when policy says so; the janitor path is
// exempt.
func (d *Dispatcher) Unblock(ctx context.Context, address string) error {
	return d.unblock(ctx, address, true)
}

func (d *Dispatcher) unblock(ctx context.Context, address string, manual bool) error {
	d.mu.Lock()
	rec, ok := d.active[address]
	if !ok {
		d.mu.Unlock()
		return ErrNotBlocked
	}
	if manual && rec.Simulated && !d.allowSimUnblock {
		d.mu.Unlock()
		return ErrSimulatedBlock
	}
	rec.Status = model.StatusUnblocked
	delete(d.active, address)
	d.mu.Unlock()

	if err := d.blocker.UnblockIP(ctx, address); err != nil {
		log.Printf("Failed to remove DROP rule for %s: %v", address, err)
	} else {
		log.Printf("Unblocked %s", address)
	}

	d.bus.Publish(model.EventIPUnblocked, rec)
	return nil
}

// janitor periodically expires blocks older than the block duration,
// returning mitigated addresses to normal status once their sentence is
// served.
func (d *Dispatcher) janitor() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.expireStale()
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) expireStale() {
	cutoff := time.Now().Add(-d.blockDuration)

	d.mu.Lock()
	var expired []string
	for addr, rec := range d.active {
		if rec.BlockedAt.Before(cutoff) {
			expired = append(expired, addr)
		}
	}
	d.mu.Unlock()

	for _, addr := range expired {
		log.Printf("Block expired for %s", addr)
		if err := d.unblock(context.Background(), addr, false); err != nil && !errors.Is(err, ErrNotBlocked) {
			log.Printf("Failed to expire block for %s: %v", addr, err)
		}
	}
}

// IsBlocked reports whether address has an active record.
func (d *Dispatcher) IsBlocked(address string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[address]
	return ok
}

// Blocked returns copies of all active records.
func (d *Dispatcher) Blocked() []*model.BlockRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*model.BlockRecord, 0, len(d.active))
	for _, rec := range d.active {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// History returns the most recent limit records, oldest first. Records are
// never physically deleted, only status-transitioned, to preserve the audit
// trail.
func (d *Dispatcher) History(limit int) []*model.BlockRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	if limit <= 0 || limit > len(d.history) {
		limit = len(d.history)
	}
	out := make([]*model.BlockRecord, 0, limit)
	for _, rec := range d.history[len(d.history)-limit:] {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// Restore reloads active records from a ledger snapshot, skipping addresses
// already present.
func (d *Dispatcher) Restore(records []*model.BlockRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range records {
		if rec.Status != model.StatusBlocked {
			continue
		}
		if _, ok := d.active[rec.Address]; ok {
			continue
		}
		cp := *rec
		d.active[rec.Address] = &cp
		d.history = append(d.history, &cp)
	}
}
