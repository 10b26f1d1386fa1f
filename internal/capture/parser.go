package capture

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"NetSentinel/internal/model"
)

// fieldCount is the arity of one tshark output line: epoch timestamp, source
// address, destination address, protocol label, source port, destination
// port, frame length, eight TCP flag bits, TCP window size, IP header length,
// TCP header length.
const fieldCount = 18

// ParseLine parses one tab-separated line of the capture subprocess output
// into a PacketRecord. Lines not matching the expected arity are rejected.
func ParseLine(line string) (*model.PacketRecord, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("expected %d fields, got %d", fieldCount, len(fields))
	}

	epoch, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}
	sec, frac := math.Modf(epoch)
	ts := time.Unix(int64(sec), int64(frac*1e9)).Truncate(time.Millisecond)

	srcIP := net.ParseIP(fields[1])
	if srcIP == nil {
		return nil, fmt.Errorf("invalid source address %q", fields[1])
	}
	dstIP := net.ParseIP(fields[2])
	if dstIP == nil {
		return nil, fmt.Errorf("invalid destination address %q", fields[2])
	}

	length, err := strconv.Atoi(fields[6])
	if err != nil {
		return nil, fmt.Errorf("invalid frame length %q: %w", fields[6], err)
	}

	rec := &model.PacketRecord{
		Timestamp: ts,
		FiveTuple: model.FiveTuple{
			SrcIP:    srcIP,
			DstIP:    dstIP,
			SrcPort:  uint16(optInt(fields[4])),
			DstPort:  uint16(optInt(fields[5])),
			Protocol: fields[3],
		},
		Length: length,
		Flags: model.TCPFlags{
			SYN: flagBit(fields[7]),
			FIN: flagBit(fields[8]),
			RST: flagBit(fields[9]),
			PSH: flagBit(fields[10]),
			ACK: flagBit(fields[11]),
			URG: flagBit(fields[12]),
			ECE: flagBit(fields[13]),
			CWR: flagBit(fields[14]),
		},
		WindowSize:   optInt(fields[15]),
		IPHeaderLen:  optInt(fields[16]),
		TCPHeaderLen: optInt(fields[17]),
	}
	return rec, nil
}

// optInt parses fields that are legitimately empty for non-TCP traffic.
func optInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// flagBit interprets tshark's boolean field renderings.
func flagBit(s string) bool {
	switch s {
	case "1", "True", "true":
		return true
	default:
		return false
	}
}
