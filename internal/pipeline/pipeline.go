// Package pipeline wires the capture worker, flow aggregator, fusion engine,
// and mitigation dispatcher into the end-to-end detection path.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"NetSentinel/internal/capture"
	"NetSentinel/internal/event"
	"NetSentinel/internal/flow"
	"NetSentinel/internal/fusion"
	"NetSentinel/internal/mitigation"
	"NetSentinel/internal/model"
	"NetSentinel/internal/slicing"
)

// Pipeline owns the component lifecycles and the packet consumption loop.
type Pipeline struct {
	Worker     *capture.Worker
	Aggregator *flow.Aggregator
	Engine     *fusion.Engine
	Dispatcher *mitigation.Dispatcher
	Blocker    model.Blocker
	Bus        *event.Bus

	rates *flow.RateTracker

	cancelEvents func()
	done         chan struct{}
	wg           sync.WaitGroup
}

// New assembles a pipeline from already-constructed components.
func New(worker *capture.Worker, agg *flow.Aggregator, engine *fusion.Engine, dispatcher *mitigation.Dispatcher, blocker model.Blocker, bus *event.Bus) *Pipeline {
	return &Pipeline{
		Worker:     worker,
		Aggregator: agg,
		Engine:     engine,
		Dispatcher: dispatcher,
		Blocker:    blocker,
		Bus:        bus,
		rates:      flow.NewRateTracker(time.Second),
		done:       make(chan struct{}),
	}
}

// Start launches the component goroutines and the consumption loop.
func (p *Pipeline) Start() {
	p.Aggregator.Start()
	p.Engine.Start()
	p.Dispatcher.Start()

	p.wg.Add(1)
	go p.consume()

	// The flow window is cleared whenever a capture session ends, whether
	// gracefully or through subprocess failure.
	ch, cancel := p.Bus.Subscribe(16)
	p.cancelEvents = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for ev := range ch {
			if ev.Type == model.EventCaptureStopped || ev.Type == model.EventCaptureFailure {
				p.Aggregator.Clear()
				p.rates.Reset()
			}
		}
	}()
}

// Stop tears the pipeline down in dependency order.
func (p *Pipeline) Stop() {
	p.Worker.Stop()
	close(p.done)
	if p.cancelEvents != nil {
		p.cancelEvents()
	}
	p.wg.Wait()
	p.Dispatcher.Stop()
	p.Engine.Stop()
	p.Aggregator.Stop()
}

// consume moves parsed packets from the capture stream into the window.
// The worker never blocks on this loop; it drops when we lag.
func (p *Pipeline) consume() {
	defer p.wg.Done()
	for {
		select {
		case rec := <-p.Worker.Records():
			p.rates.Add(rec.FiveTuple.SrcIP.String(), rec.Timestamp)
			p.Aggregator.Add(rec)
		case <-p.done:
			return
		}
	}
}

// StartCapture begins a capture session for the target address.
func (p *Pipeline) StartCapture(target, iface string) error {
	return p.Worker.Start(target, iface)
}

// StopCapture terminates the capture session.
func (p *Pipeline) StopCapture() {
	p.Worker.Stop()
}

// Detect runs a detection request through fusion and dispatches mitigation
// when the verdict crosses the threshold. The returned assessment is
// annotated with the computed network slice when the caller supplied none.
func (p *Pipeline) Detect(ctx context.Context, req fusion.Request) (*model.ThreatAssessment, error) {
	pps := p.rates.PPS(req.Address)
	if req.PacketCtx == nil {
		req.PacketCtx = &fusion.PacketContext{
			PPS:     pps,
			AvgSize: flow.Mean(req.Traffic),
		}
	}
	if req.NetworkSlice == "" {
		info := slicing.Classify(int(flow.Mean(req.Traffic)), "UDP", pps)
		req.NetworkSlice = info.Slice
	}

	assessment, cached, err := p.Engine.Assess(ctx, req)
	if err != nil {
		return nil, err
	}

	if !cached {
		p.Bus.Publish(model.EventDetectionResult, model.DetectionPayload{
			Assessment: assessment,
			Samples:    req.Traffic,
		})
	}

	if p.Engine.ShouldMitigate(assessment) {
		reason := fmt.Sprintf("DDoS detected (score %.2f, %.0f pps, slice=%s)",
			assessment.CombinedScore, pps, req.NetworkSlice)
		simulated := assessment.Verdict == model.VerdictSimulated
		if simulated {
			reason = fmt.Sprintf("Simulated DDoS attack (%.0f pps, slice=%s)", pps, req.NetworkSlice)
		}
		p.Dispatcher.Block(ctx, assessment.Address, reason, simulated)
	}

	return assessment, nil
}

// ObservePacket feeds a synthetic or replayed packet into the rate tracker
// and the window. Used by the simulate path and offline replay.
func (p *Pipeline) ObservePacket(rec *model.PacketRecord) {
	p.rates.Add(rec.FiveTuple.SrcIP.String(), rec.Timestamp)
	p.Aggregator.Add(rec)
}

// PPS returns the trailing packet rate for a source address.
func (p *Pipeline) PPS(src string) float64 {
	return p.rates.PPS(src)
}

// Status summarizes the live state of the pipeline for the control surface.
type Status struct {
	Capture           capture.Status    `json:"capture"`
	Window            model.WindowStats `json:"window"`
	BlockedCount      int               `json:"blocked_count"`
	ClassifierHealthy bool              `json:"classifier_healthy"`
	SDNReachable      bool              `json:"sdn_reachable"`
	EventsDropped     uint64            `json:"events_dropped"`
}

// Status reports the current pipeline state.
func (p *Pipeline) Status(ctx context.Context) Status {
	return Status{
		Capture:           p.Worker.Status(),
		Window:            p.Aggregator.Stats(time.Now()),
		BlockedCount:      len(p.Dispatcher.Blocked()),
		ClassifierHealthy: p.Engine.ClassifierHealthy(),
		SDNReachable:      p.Blocker.Reachable(ctx),
		EventsDropped:     p.Bus.Dropped(),
	}
}
