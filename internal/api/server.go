// Package api exposes the HTTP control surface: capture start/stop, detection
// requests, block ledger access, and health/status queries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"NetSentinel/internal/fusion"
	"NetSentinel/internal/mitigation"
	"NetSentinel/internal/model"
	"NetSentinel/internal/pipeline"
	"NetSentinel/internal/slicing"

	"github.com/gorilla/mux"
)

// Server routes control-surface requests into the pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
}

// NewServer creates the control surface for a pipeline.
func NewServer(p *pipeline.Pipeline) *Server {
	return &Server{pipeline: p}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/capture/start", s.handleStartCapture).Methods(http.MethodPost)
	r.HandleFunc("/api/capture/stop", s.handleStopCapture).Methods(http.MethodPost)
	r.HandleFunc("/api/capture/status", s.handleCaptureStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/detect", s.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/api/simulate-packet", s.handleSimulatePacket).Methods(http.MethodPost)
	r.HandleFunc("/api/blocked", s.handleBlocked).Methods(http.MethodGet)
	r.HandleFunc("/api/block", s.handleBlock).Methods(http.MethodPost)
	r.HandleFunc("/api/unblock", s.handleUnblock).Methods(http.MethodPost)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type captureRequest struct {
	Target    string `json:"target"`
	Interface string `json:"interface"`
}

func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if net.ParseIP(req.Target) == nil {
		writeError(w, http.StatusBadRequest, fusion.ErrInvalidAddress)
		return
	}
	if err := s.pipeline.StartCapture(req.Target, req.Interface); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "capturing", "target": req.Target})
}

func (s *Server) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	s.pipeline.StopCapture()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Worker.Status())
}

type detectRequest struct {
	Traffic      []float64 `json:"traffic"`
	IPAddress    string    `json:"ip_address"`
	PacketData   *struct {
		PacketsPerSecond float64 `json:"packets_per_second"`
		AvgPacketSize    float64 `json:"avg_packet_size"`
	} `json:"packet_data"`
	NetworkSlice string `json:"network_slice"`
	Simulated    bool   `json:"simulated"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fReq := fusion.Request{
		Traffic:      req.Traffic,
		Address:      req.IPAddress,
		NetworkSlice: req.NetworkSlice,
		Simulated:    req.Simulated,
	}
	if req.PacketData != nil {
		fReq.PacketCtx = &fusion.PacketContext{
			PPS:     req.PacketData.PacketsPerSecond,
			AvgSize: req.PacketData.AvgPacketSize,
		}
	}

	assessment, err := s.pipeline.Detect(r.Context(), fReq)
	if err != nil {
		if errors.Is(err, fusion.ErrInvalidAddress) || errors.Is(err, fusion.ErrEmptySample) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

type simulateRequest struct {
	SrcIP      string  `json:"srcIP"`
	DstIP      string  `json:"dstIP"`
	Protocol   string  `json:"protocol"`
	PacketSize float64 `json:"packetSize"`
}

// handleSimulatePacket treats everything arriving here as declared synthetic
// attack traffic, so load-testing collaborators exercise the mitigation path
// deterministically.
func (s *Server) handleSimulatePacket(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SrcIP == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil {
			req.SrcIP = host
		}
	}
	if req.Protocol == "" {
		req.Protocol = "UDP"
	}

	srcIP := net.ParseIP(req.SrcIP)
	if srcIP == nil {
		writeError(w, http.StatusBadRequest, fusion.ErrInvalidAddress)
		return
	}

	dstIP := net.ParseIP(req.DstIP)
	if dstIP == nil {
		dstIP = net.IPv4zero
	}
	s.pipeline.ObservePacket(&model.PacketRecord{
		Timestamp: time.Now(),
		FiveTuple: model.FiveTuple{
			SrcIP:    srcIP,
			DstIP:    dstIP,
			Protocol: req.Protocol,
		},
		Length: int(req.PacketSize),
	})

	pps := s.pipeline.PPS(req.SrcIP)
	slice := slicing.Classify(int(req.PacketSize), req.Protocol, pps)

	assessment, err := s.pipeline.Detect(r.Context(), fusion.Request{
		Traffic:      []float64{req.PacketSize},
		Address:      req.SrcIP,
		NetworkSlice: slice.Slice,
		Simulated:    true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pred":           assessment.Verdict,
		"pps":            pps,
		"blocked":        s.pipeline.Dispatcher.IsBlocked(req.SrcIP),
		"simulated":      true,
		"network_slice":  slice.Slice,
		"slice_priority": slice.Priority,
	})
}

func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Dispatcher.Blocked())
}

type blockRequest struct {
	IP        string `json:"ip"`
	Reason    string `json:"reason"`
	Simulated bool   `json:"simulated"`
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if net.ParseIP(req.IP) == nil {
		writeError(w, http.StatusBadRequest, fusion.ErrInvalidAddress)
		return
	}
	if req.Reason == "" {
		req.Reason = "Manual block"
	}
	rec, created := s.pipeline.Dispatcher.Block(r.Context(), req.IP, req.Reason, req.Simulated)
	writeJSON(w, http.StatusOK, map[string]interface{}{"record": rec, "created": created})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.pipeline.Dispatcher.Unblock(r.Context(), req.IP)
	switch {
	case errors.Is(err, mitigation.ErrNotBlocked):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "error": err.Error()})
	case errors.Is(err, mitigation.ErrSimulatedBlock):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"success": false, "error": err.Error()})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.pipeline.Dispatcher.History(limit))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "LIVE",
		"capturing":          s.pipeline.Worker.Status().Running,
		"blocked_ips":        len(s.pipeline.Dispatcher.Blocked()),
		"classifier_healthy": s.pipeline.Engine.ClassifierHealthy(),
		"sdn_reachable":      s.pipeline.Blocker.Reachable(ctx),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Status(r.Context()))
}

// ListenAndServe runs the control surface until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("HTTP control surface starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
