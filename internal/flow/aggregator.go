// Package flow maintains the sliding-window packet buffer, groups packets
// into 5-tuple flows, and computes per-window statistical features.
package flow

import (
	"sort"
	"sync"
	"time"

	"NetSentinel/internal/event"
	"NetSentinel/internal/model"
)

// Aggregator keeps packets within a trailing window of fixed duration and
// periodically publishes WindowStats over a shorter sub-window. The periodic
// computation bounds cost independent of traffic rate.
type Aggregator struct {
	mu      sync.Mutex
	packets []*model.PacketRecord
	flows   map[string]*model.Flow

	window        time.Duration
	subWindow     time.Duration
	statsInterval time.Duration

	bus *event.Bus

	done chan struct{}
	wg   sync.WaitGroup
}

// NewAggregator creates an aggregator publishing flow_stats on bus.
func NewAggregator(window, subWindow, statsInterval time.Duration, bus *event.Bus) *Aggregator {
	return &Aggregator{
		flows:         make(map[string]*model.Flow),
		window:        window,
		subWindow:     subWindow,
		statsInterval: statsInterval,
		bus:           bus,
		done:          make(chan struct{}),
	}
}

// Start launches the periodic stats publisher.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go a.statsLoop()
}

// Stop terminates the stats publisher. The buffered state survives; use
// Clear to drop it.
func (a *Aggregator) Stop() {
	close(a.done)
	a.wg.Wait()
}

func (a *Aggregator) statsLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := a.Stats(time.Now())
			if a.bus != nil {
				a.bus.Publish(model.EventFlowStats, stats)
			}
		case <-a.done:
			return
		}
	}
}

// Add appends a packet to its flow and purges packets that aged out of the
// window. The O(window-size) sweep per arrival is acceptable at expected
// rates.
func (a *Aggregator) Add(rec *model.PacketRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.packets = append(a.packets, rec)

	key := rec.FiveTuple.Key()
	f, ok := a.flows[key]
	if !ok {
		f = &model.Flow{
			Key:       key,
			FiveTuple: rec.FiveTuple,
			StartTime: rec.Timestamp,
		}
		a.flows[key] = f
	}
	f.Packets = append(f.Packets, rec)
	f.EndTime = rec.Timestamp
	f.ByteCount += uint64(rec.Length)

	a.purgeLocked(rec.Timestamp)
}

// purgeLocked drops packets older than the window relative to the most
// recent packet, and discards flows whose packets all aged out.
func (a *Aggregator) purgeLocked(now time.Time) {
	cutoff := now.Add(-a.window)

	i := 0
	for i < len(a.packets) && a.packets[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	a.packets = a.packets[i:]

	for key, f := range a.flows {
		j := 0
		for j < len(f.Packets) && f.Packets[j].Timestamp.Before(cutoff) {
			f.ByteCount -= uint64(f.Packets[j].Length)
			j++
		}
		if j == len(f.Packets) {
			delete(a.flows, key)
			continue
		}
		if j > 0 {
			f.Packets = f.Packets[j:]
			f.StartTime = f.Packets[0].Timestamp
		}
	}
}

// Stats computes WindowStats over packets newer than the sub-window.
func (a *Aggregator) Stats(now time.Time) model.WindowStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now.Add(-a.subWindow)
	stats := model.WindowStats{Timestamp: now, Protocols: []string{}}

	var sizes []float64
	var iats []float64
	var prev time.Time
	srcPorts := make(map[uint16]struct{})
	dstPorts := make(map[uint16]struct{})
	protocols := make(map[string]struct{})
	activeFlows := make(map[string]struct{})

	for _, rec := range a.packets {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		stats.PacketCount++
		stats.ByteCount += uint64(rec.Length)
		sizes = append(sizes, float64(rec.Length))
		if !prev.IsZero() {
			iats = append(iats, float64(rec.Timestamp.Sub(prev).Microseconds())/1000.0)
		}
		prev = rec.Timestamp
		srcPorts[rec.FiveTuple.SrcPort] = struct{}{}
		dstPorts[rec.FiveTuple.DstPort] = struct{}{}
		protocols[rec.FiveTuple.Protocol] = struct{}{}
		activeFlows[rec.FiveTuple.Key()] = struct{}{}

		if stats.MinPacketSize == 0 || rec.Length < stats.MinPacketSize {
			stats.MinPacketSize = rec.Length
		}
		if rec.Length > stats.MaxPacketSize {
			stats.MaxPacketSize = rec.Length
		}
	}

	secs := a.subWindow.Seconds()
	if secs > 0 {
		stats.PacketsPerSecond = float64(stats.PacketCount) / secs
		stats.BytesPerSecond = float64(stats.ByteCount) / secs
	}
	stats.MeanPacketSize = Mean(sizes)
	stats.StdPacketSize = StdDev(sizes)
	stats.MeanIAT = Mean(iats)
	stats.StdIAT = StdDev(iats)
	stats.SrcPortCount = len(srcPorts)
	stats.DstPortCount = len(dstPorts)
	stats.FlowCount = len(activeFlows)

	for p := range protocols {
		stats.Protocols = append(stats.Protocols, p)
	}
	sort.Strings(stats.Protocols)

	return stats
}

// Window returns a copy of the current raw packet buffer for callers that
// need raw samples, e.g. status reporting.
func (a *Aggregator) Window() []*model.PacketRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*model.PacketRecord, len(a.packets))
	copy(out, a.packets)
	return out
}

// Clear drops all buffered packets and flows. Called when a capture session
// stops.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.packets = nil
	a.flows = make(map[string]*model.Flow)
	a.mu.Unlock()
}

// FlowCount returns the number of active flows.
// Note: This is for testing/metrics purposes.
func (a *Aggregator) FlowCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.flows)
}
