// Package fusion combines the ML classifier signal and the IP reputation
// signal into a single mitigation decision under bounded latency.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"NetSentinel/internal/cache"
	"NetSentinel/internal/flow"
	"NetSentinel/internal/model"

	"github.com/google/uuid"
)

// Score fusion weights and component scales. The weighted 0.7/0.3 policy is
// canonical; the heuristic and reputation fallbacks degrade into it.
const (
	classifierWeight = 0.7
	reputationWeight = 0.3

	suspiciousScale = 0.6

	reputationHigh      = 50.0
	reputationLow       = 30.0
	reputationHighScore = 0.8
	reputationLowScore  = 0.4

	suspiciousThreshold = 0.4
	simulatedScore      = 0.99

	heuristicMeanScale      = 2000.0
	heuristicVarianceScale  = 5000.0
	heuristicBandwidthScale = 1e6
)

// Input validation failures are rejected before fusion.
var (
	ErrInvalidAddress = errors.New("invalid source address")
	ErrEmptySample    = errors.New("empty traffic sample")
)

// Request is a single detection request.
type Request struct {
	Traffic      []float64
	Address      string
	PacketCtx    *PacketContext
	NetworkSlice string
	Simulated    bool // declared synthetic test traffic
}

// PacketContext carries optional live-traffic context for a request.
type PacketContext struct {
	PPS     float64
	AvgSize float64
}

// Engine queries the classifier and reputation services concurrently, fuses
// their outputs, and memoizes the result.
type Engine struct {
	classifier *ClassifierClient
	reputation *ReputationClient
	cache      *cache.ResultCache

	mitigationThreshold float64
	heuristicCutoff     float64
}

// NewEngine wires the fusion engine together.
func NewEngine(classifier *ClassifierClient, reputation *ReputationClient, resultCache *cache.ResultCache, mitigationThreshold, heuristicCutoff float64) *Engine {
	if mitigationThreshold <= 0 {
		mitigationThreshold = 0.7
	}
	if heuristicCutoff <= 0 {
		heuristicCutoff = 0.7
	}
	return &Engine{
		classifier:          classifier,
		reputation:          reputation,
		cache:               resultCache,
		mitigationThreshold: mitigationThreshold,
		heuristicCutoff:     heuristicCutoff,
	}
}

// Start launches the classifier health poller.
func (e *Engine) Start() {
	e.classifier.Start()
}

// Stop terminates the health poller.
func (e *Engine) Stop() {
	e.classifier.Stop()
}

// ClassifierHealthy reports the gating health state of the primary call.
func (e *Engine) ClassifierHealthy() bool {
	return e.classifier.Healthy()
}

// Validate rejects malformed requests before they reach fusion.
func Validate(req Request) error {
	if len(req.Traffic) == 0 {
		return ErrEmptySample
	}
	if req.Address == "" || req.Address == "0.0.0.0" || net.ParseIP(req.Address) == nil {
		return ErrInvalidAddress
	}
	return nil
}

// Assess produces a ThreatAssessment for the request. The second return
// value reports whether the result came from the cache; cached results are
// returned verbatim with no upstream calls.
func (e *Engine) Assess(ctx context.Context, req Request) (*model.ThreatAssessment, bool, error) {
	if err := Validate(req); err != nil {
		return nil, false, err
	}

	key := cache.Key(req.Address, req.Traffic)
	if cached := e.cache.Get(key); cached != nil {
		return cached, true, nil
	}

	type classifierResult struct {
		resp *ClassifierResponse
		err  error
	}
	type reputationResult struct {
		score float64
		err   error
	}

	// Both upstream calls run concurrently, each under its own timeout.
	// A slow or failed call never stalls or aborts the other.
	clsCh := make(chan classifierResult, 1)
	repCh := make(chan reputationResult, 1)

	go func() {
		if !e.classifier.Healthy() {
			clsCh <- classifierResult{err: errors.New("classifier service unhealthy")}
			return
		}
		resp, err := e.classifier.Classify(ctx, ClassifierRequest{
			Traffic:      req.Traffic,
			IPAddress:    req.Address,
			PacketData:   packetData(req.PacketCtx),
			NetworkSlice: req.NetworkSlice,
		})
		clsCh <- classifierResult{resp: resp, err: err}
	}()

	go func() {
		score, err := e.reputation.Score(ctx, req.Address)
		repCh <- reputationResult{score: score, err: err}
	}()

	cls := <-clsCh
	rep := <-repCh

	var explanations []string
	var clsComponent float64
	clsMalicious := false

	if cls.err != nil {
		// Fallback: derive a heuristic score from the sample itself.
		// Recording its use is mandatory, never silent.
		score := e.heuristic(req)
		if score > e.heuristicCutoff {
			// A fallback-malicious sample carries full weight so the fused
			// score crosses the mitigation threshold without a reputation
			// signal.
			clsComponent = 1.0
			clsMalicious = true
			explanations = append(explanations, fmt.Sprintf("classifier unavailable (%v); heuristic score %.2f exceeds cutoff %.2f", cls.err, score, e.heuristicCutoff))
		} else {
			explanations = append(explanations, fmt.Sprintf("classifier unavailable (%v); heuristic score %.2f below cutoff", cls.err, score))
		}
	} else {
		switch strings.ToLower(cls.resp.Prediction) {
		case "ddos", "malicious":
			clsComponent = cls.resp.Confidence
			clsMalicious = true
			explanations = append(explanations, fmt.Sprintf("classifier verdict %q with confidence %.2f", cls.resp.Prediction, cls.resp.Confidence))
		case "suspicious":
			clsComponent = suspiciousScale * cls.resp.Confidence
			explanations = append(explanations, fmt.Sprintf("classifier verdict \"suspicious\" with confidence %.2f", cls.resp.Confidence))
		default:
			explanations = append(explanations, fmt.Sprintf("classifier verdict %q", cls.resp.Prediction))
		}
	}

	var repComponent float64
	if rep.err != nil {
		// No negative signal; never an error that blocks the pipeline.
		explanations = append(explanations, fmt.Sprintf("reputation lookup unavailable (%v); contribution 0", rep.err))
	} else {
		switch {
		case rep.score > reputationHigh:
			repComponent = reputationHighScore
		case rep.score > reputationLow:
			repComponent = reputationLowScore
		}
		explanations = append(explanations, fmt.Sprintf("reputation score %.0f", rep.score))
	}

	combined := classifierWeight*clsComponent + reputationWeight*repComponent

	verdict := model.VerdictNormal
	switch {
	case combined >= e.mitigationThreshold:
		verdict = model.VerdictMalicious
	case combined >= suspiciousThreshold:
		verdict = model.VerdictSuspicious
	}

	// Declared simulated traffic is escalated unless the classifier already
	// flagged it, so load tests exercise the mitigation path deterministically.
	if req.Simulated && !clsMalicious {
		verdict = model.VerdictSimulated
		combined = simulatedScore
		explanations = append(explanations, "declared simulated traffic; escalated to malicious")
	}

	assessment := &model.ThreatAssessment{
		ID:                  uuid.NewString(),
		Address:             req.Address,
		CombinedScore:       combined,
		Verdict:             verdict,
		ClassifierComponent: clsComponent,
		ReputationComponent: repComponent,
		Explanations:        explanations,
		NetworkSlice:        req.NetworkSlice,
		Timestamp:           time.Now(),
	}

	e.cache.Put(key, assessment)
	return assessment, false, nil
}

// ShouldMitigate reports whether an assessment crosses the block threshold.
func (e *Engine) ShouldMitigate(a *model.ThreatAssessment) bool {
	return a.Verdict == model.VerdictMalicious || a.Verdict == model.VerdictSimulated
}

// heuristic combines normalized mean, normalized variance, and estimated
// bandwidth of the traffic sample into a single scalar in [0,1].
func (e *Engine) heuristic(req Request) float64 {
	mean := flow.Mean(req.Traffic)
	variance := flow.Variance(req.Traffic)

	pps := float64(len(req.Traffic))
	if req.PacketCtx != nil && req.PacketCtx.PPS > 0 {
		pps = req.PacketCtx.PPS
	}
	bandwidth := mean * pps

	return 0.5*clamp(mean/heuristicMeanScale) +
		0.3*clamp(variance/heuristicVarianceScale) +
		0.2*clamp(bandwidth/heuristicBandwidthScale)
}

func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < 0 {
		return 0
	}
	return x
}

func packetData(ctx *PacketContext) map[string]interface{} {
	if ctx == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"packets_per_second": ctx.PPS,
		"avg_packet_size":    ctx.AvgSize,
	}
}
