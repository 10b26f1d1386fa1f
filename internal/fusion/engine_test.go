package fusion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"NetSentinel/internal/cache"
	"NetSentinel/internal/model"
)

// testBackends runs fake classifier and reputation services and counts the
// calls each receives.
type testBackends struct {
	classifier *httptest.Server
	reputation *httptest.Server

	classifierCalls atomic.Int64
	reputationCalls atomic.Int64
}

func newTestBackends(t *testing.T, prediction string, confidence float64, abuseScore float64) *testBackends {
	t.Helper()
	b := &testBackends{}

	b.classifier = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/predict":
			b.classifierCalls.Add(1)
			fmt.Fprintf(w, `{"prediction":%q,"confidence":%f,"threat_level":"high"}`, prediction, confidence)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(b.classifier.Close)

	b.reputation = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check" {
			http.NotFound(w, r)
			return
		}
		b.reputationCalls.Add(1)
		fmt.Fprintf(w, `{"data":{"abuseConfidenceScore":%f}}`, abuseScore)
	}))
	t.Cleanup(b.reputation.Close)

	return b
}

func newTestEngine(b *testBackends) *Engine {
	classifier := NewClassifierClient(b.classifier.URL, time.Second, time.Minute)
	reputation := NewReputationClient(b.reputation.URL, "test-key", 90, time.Second)
	return NewEngine(classifier, reputation, cache.New(10*time.Second, 100), 0.7, 0.7)
}

func TestAssessFusesClassifierAndReputation(t *testing.T) {
	// ddos at 0.9 confidence and reputation 60 fuse to
	// 0.7*0.9 + 0.3*0.8 = 0.87, above the mitigation threshold.
	b := newTestBackends(t, "ddos", 0.9, 60)
	engine := newTestEngine(b)

	assessment, cached, err := engine.Assess(context.Background(), Request{
		Traffic: []float64{1400, 1450, 1500},
		Address: "10.0.0.5",
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if cached {
		t.Error("first assessment should not be cached")
	}
	if math.Abs(assessment.CombinedScore-0.87) > 1e-9 {
		t.Errorf("CombinedScore = %f, want 0.87", assessment.CombinedScore)
	}
	if assessment.Verdict != model.VerdictMalicious {
		t.Errorf("Verdict = %s, want malicious", assessment.Verdict)
	}
	if math.Abs(assessment.ClassifierComponent-0.9) > 1e-9 {
		t.Errorf("ClassifierComponent = %f, want 0.9", assessment.ClassifierComponent)
	}
	if math.Abs(assessment.ReputationComponent-0.8) > 1e-9 {
		t.Errorf("ReputationComponent = %f, want 0.8", assessment.ReputationComponent)
	}
	if !engine.ShouldMitigate(assessment) {
		t.Error("malicious verdict should trigger mitigation")
	}
	if assessment.ID == "" {
		t.Error("assessment should carry an ID")
	}
}

func TestAssessCachesIdenticalRequests(t *testing.T) {
	b := newTestBackends(t, "ddos", 0.9, 60)
	engine := newTestEngine(b)

	req := Request{Traffic: []float64{1400, 1450}, Address: "10.0.0.5"}
	first, cached, err := engine.Assess(context.Background(), req)
	if err != nil {
		t.Fatalf("first Assess failed: %v", err)
	}
	if cached {
		t.Fatal("first assessment should not be cached")
	}

	second, cached, err := engine.Assess(context.Background(), req)
	if err != nil {
		t.Fatalf("second Assess failed: %v", err)
	}
	if !cached {
		t.Error("second identical assessment should come from the cache")
	}
	if second != first {
		t.Error("cached assessment should be returned verbatim")
	}
	if got := b.classifierCalls.Load(); got != 1 {
		t.Errorf("classifier calls = %d, want exactly 1", got)
	}
	if got := b.reputationCalls.Load(); got != 1 {
		t.Errorf("reputation calls = %d, want exactly 1", got)
	}

	// A different sample is a different cache key.
	if _, cached, _ := engine.Assess(context.Background(), Request{
		Traffic: []float64{100, 120}, Address: "10.0.0.5",
	}); cached {
		t.Error("different sample should not hit the cache")
	}
	if got := b.classifierCalls.Load(); got != 2 {
		t.Errorf("classifier calls after distinct request = %d, want 2", got)
	}
}

func TestAssessSuspiciousVerdict(t *testing.T) {
	// suspicious at 0.9 confidence scales to 0.54; with reputation 60
	// the fused score is 0.618, in the suspicious band.
	b := newTestBackends(t, "suspicious", 0.9, 60)
	engine := newTestEngine(b)

	assessment, _, err := engine.Assess(context.Background(), Request{
		Traffic: []float64{800, 900}, Address: "10.0.0.5",
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if assessment.Verdict != model.VerdictSuspicious {
		t.Errorf("Verdict = %s, want suspicious", assessment.Verdict)
	}
	if math.Abs(assessment.ClassifierComponent-0.54) > 1e-9 {
		t.Errorf("ClassifierComponent = %f, want 0.54", assessment.ClassifierComponent)
	}
	if engine.ShouldMitigate(assessment) {
		t.Error("suspicious verdict should not trigger mitigation")
	}
}

func TestAssessHeuristicFallbackMalicious(t *testing.T) {
	b := newTestBackends(t, "normal", 0.1, 0)
	engine := newTestEngine(b)
	// Gate the primary call without waiting for a poll cycle.
	engine.classifier.healthy.Store(false)

	// Mean 2000 and variance 4900 drive the heuristic past the cutoff.
	assessment, _, err := engine.Assess(context.Background(), Request{
		Traffic: []float64{1930, 2070},
		Address: "10.0.0.5",
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if assessment.Verdict != model.VerdictMalicious {
		t.Errorf("Verdict = %s, want malicious from heuristic fallback", assessment.Verdict)
	}
	if got := b.classifierCalls.Load(); got != 0 {
		t.Errorf("classifier calls = %d, want 0 when unhealthy", got)
	}

	found := false
	for _, e := range assessment.Explanations {
		if strings.Contains(e, "heuristic") {
			found = true
		}
	}
	if !found {
		t.Errorf("explanations should record heuristic use, got %v", assessment.Explanations)
	}
}

func TestAssessHeuristicFallbackNormal(t *testing.T) {
	b := newTestBackends(t, "normal", 0.1, 0)
	engine := newTestEngine(b)
	engine.classifier.healthy.Store(false)

	assessment, _, err := engine.Assess(context.Background(), Request{
		Traffic: []float64{100, 120, 110},
		Address: "10.0.0.5",
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if assessment.Verdict != model.VerdictNormal {
		t.Errorf("Verdict = %s, want normal for low-intensity sample", assessment.Verdict)
	}
	if assessment.ClassifierComponent != 0 {
		t.Errorf("ClassifierComponent = %f, want 0 below cutoff", assessment.ClassifierComponent)
	}
}

func TestAssessReputationFailureDegrades(t *testing.T) {
	b := newTestBackends(t, "normal", 0.1, 0)
	engine := newTestEngine(b)
	// Replace the reputation client with one pointing at a dead endpoint.
	engine.reputation = NewReputationClient("http://127.0.0.1:1", "", 90, 200*time.Millisecond)

	assessment, _, err := engine.Assess(context.Background(), Request{
		Traffic: []float64{100, 120}, Address: "10.0.0.5",
	})
	if err != nil {
		t.Fatalf("Assess should degrade, not fail: %v", err)
	}
	if assessment.ReputationComponent != 0 {
		t.Errorf("ReputationComponent = %f, want 0 on lookup failure", assessment.ReputationComponent)
	}

	found := false
	for _, e := range assessment.Explanations {
		if strings.Contains(e, "reputation lookup unavailable") {
			found = true
		}
	}
	if !found {
		t.Errorf("explanations should record the failed lookup, got %v", assessment.Explanations)
	}
}

func TestAssessSimulatedOverride(t *testing.T) {
	b := newTestBackends(t, "normal", 0.1, 0)
	engine := newTestEngine(b)

	assessment, _, err := engine.Assess(context.Background(), Request{
		Traffic:   []float64{100, 120},
		Address:   "10.0.0.5",
		Simulated: true,
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if assessment.Verdict != model.VerdictSimulated {
		t.Errorf("Verdict = %s, want simulated", assessment.Verdict)
	}
	if assessment.CombinedScore < 0.95 {
		t.Errorf("CombinedScore = %f, want >= 0.95", assessment.CombinedScore)
	}
	if !engine.ShouldMitigate(assessment) {
		t.Error("simulated verdict should trigger mitigation")
	}
}

func TestAssessSimulatedKeepsClassifierMalicious(t *testing.T) {
	// When the classifier itself flags the traffic, the genuine verdict wins
	// over the simulated label.
	b := newTestBackends(t, "ddos", 0.9, 60)
	engine := newTestEngine(b)

	assessment, _, err := engine.Assess(context.Background(), Request{
		Traffic:   []float64{1400, 1450},
		Address:   "10.0.0.5",
		Simulated: true,
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if assessment.Verdict != model.VerdictMalicious {
		t.Errorf("Verdict = %s, want malicious over simulated", assessment.Verdict)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"valid", Request{Traffic: []float64{1}, Address: "10.0.0.5"}, nil},
		{"empty traffic", Request{Address: "10.0.0.5"}, ErrEmptySample},
		{"empty address", Request{Traffic: []float64{1}}, ErrInvalidAddress},
		{"zero address", Request{Traffic: []float64{1}, Address: "0.0.0.0"}, ErrInvalidAddress},
		{"garbage address", Request{Traffic: []float64{1}, Address: "not-an-ip"}, ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.req); !errors.Is(got, tt.want) {
				t.Errorf("Validate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifierHealthPolling(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" && healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClassifierClient(srv.URL, time.Second, 20*time.Millisecond)
	c.Start()
	defer c.Stop()

	waitFor := func(want bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if c.Healthy() == want {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for Healthy() == %v", want)
	}

	waitFor(true)
	healthy.Store(false)
	waitFor(false)
	healthy.Store(true)
	waitFor(true)
}
