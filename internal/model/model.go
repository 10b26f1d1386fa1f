package model

import (
	"fmt"
	"net"
	"time"
)

// FiveTuple identifies a network flow.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol string // e.g. "TCP", "UDP", "ICMP"
}

// Key renders the tuple as a stable map key.
func (ft FiveTuple) Key() string {
	return fmt.Sprintf("%s-%d-%s-%d-%s", ft.SrcIP, ft.SrcPort, ft.DstIP, ft.DstPort, ft.Protocol)
}

// TCPFlags holds the eight TCP flag bits of a single packet.
type TCPFlags struct {
	SYN bool
	FIN bool
	RST bool
	PSH bool
	ACK bool
	URG bool
	ECE bool
	CWR bool
}

// PacketRecord holds the metadata extracted from a single captured packet.
// Records are immutable once parsed.
type PacketRecord struct {
	Timestamp    time.Time
	FiveTuple    FiveTuple
	Length       int
	Flags        TCPFlags
	WindowSize   int
	IPHeaderLen  int
	TCPHeaderLen int
}

// Flow groups the packets sharing a 5-tuple within the active window.
type Flow struct {
	Key       string
	FiveTuple FiveTuple
	Packets   []*PacketRecord
	StartTime time.Time
	EndTime   time.Time
	ByteCount uint64
}

// WindowStats is a read-only snapshot computed over the flows active in the
// current sub-window. Standard deviations over empty or singleton sets are 0.
type WindowStats struct {
	Timestamp        time.Time `json:"timestamp"`
	PacketCount      int       `json:"packet_count"`
	ByteCount        uint64    `json:"byte_count"`
	PacketsPerSecond float64   `json:"packets_per_second"`
	BytesPerSecond   float64   `json:"bytes_per_second"`
	MeanPacketSize   float64   `json:"mean_packet_size"`
	StdPacketSize    float64   `json:"std_packet_size"`
	MinPacketSize    int       `json:"min_packet_size"`
	MaxPacketSize    int       `json:"max_packet_size"`
	MeanIAT          float64   `json:"mean_iat_ms"`
	StdIAT           float64   `json:"std_iat_ms"`
	SrcPortCount     int       `json:"src_port_count"`
	DstPortCount     int       `json:"dst_port_count"`
	Protocols        []string  `json:"protocols"`
	FlowCount        int       `json:"flow_count"`
}

// Verdict is the discrete outcome of a threat assessment.
type Verdict string

const (
	VerdictNormal     Verdict = "normal"
	VerdictSuspicious Verdict = "suspicious"
	VerdictMalicious  Verdict = "malicious"
	VerdictSimulated  Verdict = "simulated"
)

// ThreatAssessment is the fused result for a single detection request.
// Ephemeral: it lives no longer than the result cache TTL.
type ThreatAssessment struct {
	ID                  string    `json:"id"`
	Address             string    `json:"address"`
	CombinedScore       float64   `json:"combined_score"`
	Verdict             Verdict   `json:"verdict"`
	ClassifierComponent float64   `json:"classifier_component"`
	ReputationComponent float64   `json:"reputation_component"`
	Explanations        []string  `json:"explanations"`
	NetworkSlice        string    `json:"network_slice,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// BlockStatus tracks the lifecycle of a BlockRecord.
type BlockStatus string

const (
	StatusBlocked   BlockStatus = "blocked"
	StatusUnblocked BlockStatus = "unblocked"
)

// BlockRecord is the audit entry for a mitigated address. Records are never
// deleted; they transition from blocked to unblocked.
type BlockRecord struct {
	ID        string      `json:"id"`
	Address   string      `json:"address"`
	BlockedAt time.Time   `json:"blocked_at"`
	Reason    string      `json:"reason"`
	Simulated bool        `json:"simulated"`
	Status    BlockStatus `json:"status"`
}
