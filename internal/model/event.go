package model

import "time"

// EventType names the events fanned out on the bus.
type EventType string

const (
	EventCaptureStarted  EventType = "capture-started"
	EventCaptureStopped  EventType = "capture-stopped"
	EventCaptureFailure  EventType = "capture-failure"
	EventFlowStats       EventType = "flow_stats"
	EventDetectionResult EventType = "detection-result"
	EventIPBlocked       EventType = "ip_blocked"
	EventIPUnblocked     EventType = "unblocked_ip"
)

// Event is a single message published on the event bus.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaptureFailurePayload carries the cause of an abnormal capture termination.
type CaptureFailurePayload struct {
	Target string `json:"target"`
	Iface  string `json:"iface"`
	Cause  string `json:"cause"`
}

// DetectionPayload carries a full assessment plus any reconstructed
// malicious packet samples.
type DetectionPayload struct {
	Assessment *ThreatAssessment `json:"assessment"`
	Samples    []float64         `json:"samples,omitempty"`
}
