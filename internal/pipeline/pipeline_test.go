package pipeline

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"NetSentinel/internal/cache"
	"NetSentinel/internal/capture"
	"NetSentinel/internal/event"
	"NetSentinel/internal/flow"
	"NetSentinel/internal/fusion"
	"NetSentinel/internal/mitigation"
	"NetSentinel/internal/model"
)

type stubBlocker struct{}

func (stubBlocker) BlockIP(ctx context.Context, ip string) error   { return nil }
func (stubBlocker) UnblockIP(ctx context.Context, ip string) error { return nil }
func (stubBlocker) Reachable(ctx context.Context) bool             { return true }

func newTestPipeline(t *testing.T, prediction string, confidence, abuseScore float64) *Pipeline {
	t.Helper()

	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/predict" {
			fmt.Fprintf(w, `{"prediction":%q,"confidence":%f,"threat_level":"high"}`, prediction, confidence)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(classifier.Close)

	reputation := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"abuseConfidenceScore":%f}}`, abuseScore)
	}))
	t.Cleanup(reputation.Close)

	bus := event.NewBus()
	worker := capture.NewWorker("tshark", 3*time.Second, 64, bus)
	agg := flow.NewAggregator(60*time.Second, 5*time.Second, 5*time.Second, bus)
	engine := fusion.NewEngine(
		fusion.NewClassifierClient(classifier.URL, time.Second, time.Minute),
		fusion.NewReputationClient(reputation.URL, "", 90, time.Second),
		cache.New(10*time.Second, 100), 0.7, 0.7,
	)
	dispatcher := mitigation.NewDispatcher(stubBlocker{}, bus, time.Hour, time.Minute, 1000, false)
	return New(worker, agg, engine, dispatcher, stubBlocker{}, bus)
}

func TestDetectDispatchesMitigation(t *testing.T) {
	p := newTestPipeline(t, "ddos", 0.9, 60)
	sub, cancel := p.Bus.Subscribe(16)
	defer cancel()

	assessment, err := p.Detect(context.Background(), fusion.Request{
		Traffic: []float64{1400, 1450, 1500},
		Address: "10.0.0.5",
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if assessment.Verdict != model.VerdictMalicious {
		t.Fatalf("Verdict = %s, want malicious", assessment.Verdict)
	}
	if !p.Dispatcher.IsBlocked("10.0.0.5") {
		t.Error("malicious source should be blocked")
	}
	if assessment.NetworkSlice == "" {
		t.Error("assessment should carry a computed network slice")
	}

	// Both the detection result and the block land on the bus.
	seen := map[model.EventType]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-sub:
			if ev.Type == model.EventDetectionResult || ev.Type == model.EventIPBlocked {
				seen[ev.Type] = true
			}
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
}

func TestDetectNormalDoesNotBlock(t *testing.T) {
	p := newTestPipeline(t, "normal", 0.1, 0)

	assessment, err := p.Detect(context.Background(), fusion.Request{
		Traffic: []float64{100, 120},
		Address: "10.0.0.6",
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if assessment.Verdict != model.VerdictNormal {
		t.Errorf("Verdict = %s, want normal", assessment.Verdict)
	}
	if p.Dispatcher.IsBlocked("10.0.0.6") {
		t.Error("normal source should not be blocked")
	}
}

func TestObservePacketFeedsRates(t *testing.T) {
	p := newTestPipeline(t, "normal", 0.1, 0)

	now := time.Now()
	for i := 0; i < 10; i++ {
		p.ObservePacket(&model.PacketRecord{
			Timestamp: now,
			FiveTuple: model.FiveTuple{
				SrcIP:    net.ParseIP("172.16.0.4"),
				DstIP:    net.ParseIP("10.0.0.1"),
				Protocol: "UDP",
			},
			Length: 1200,
		})
	}
	if got := p.PPS("172.16.0.4"); got != 10 {
		t.Errorf("PPS = %f, want 10", got)
	}
	if got := len(p.Aggregator.Window()); got != 10 {
		t.Errorf("window size = %d, want 10", got)
	}
}

func TestCaptureFailureClearsWindow(t *testing.T) {
	p := newTestPipeline(t, "normal", 0.1, 0)
	p.Start()
	defer p.Stop()

	p.ObservePacket(&model.PacketRecord{
		Timestamp: time.Now(),
		FiveTuple: model.FiveTuple{
			SrcIP:    net.ParseIP("172.16.0.4"),
			DstIP:    net.ParseIP("10.0.0.1"),
			Protocol: "UDP",
		},
		Length: 1200,
	})

	p.Bus.Publish(model.EventCaptureFailure, model.CaptureFailurePayload{Cause: "killed"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.Aggregator.Window()) == 0 && p.PPS("172.16.0.4") == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("window should be cleared after a capture failure")
}
