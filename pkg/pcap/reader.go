// Package pcap reads packet metadata from capture files for offline replay.
package pcap

import (
	"fmt"
	"log"

	"NetSentinel/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Reader reads packets from a pcap file.
type Reader struct {
	handle *pcap.Handle
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadPackets parses every packet in the file and sends the resulting
// PacketRecords to out. Parse errors are logged and skipped. The channel is
// closed when the file is exhausted.
func (r *Reader) ReadPackets(out chan<- *model.PacketRecord) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		rec, err := ParsePacket(packet)
		if err != nil {
			log.Printf("Error parsing packet: %v", err)
			continue
		}
		out <- rec
	}
}

// ParsePacket extracts a PacketRecord from a decoded gopacket packet.
func ParsePacket(packet gopacket.Packet) (*model.PacketRecord, error) {
	rec := &model.PacketRecord{}
	if meta := packet.Metadata(); meta != nil {
		rec.Timestamp = meta.Timestamp
		rec.Length = meta.Length
	}

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, fmt.Errorf("not an IPv4 packet")
	}
	ip := ipLayer.(*layers.IPv4)
	rec.FiveTuple.SrcIP = ip.SrcIP
	rec.FiveTuple.DstIP = ip.DstIP
	rec.IPHeaderLen = int(ip.IHL) * 4
	if rec.Length == 0 {
		rec.Length = int(ip.Length)
	}

	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		rec.FiveTuple.Protocol = "TCP"
		rec.FiveTuple.SrcPort = uint16(tcp.SrcPort)
		rec.FiveTuple.DstPort = uint16(tcp.DstPort)
		rec.Flags = model.TCPFlags{
			SYN: tcp.SYN, FIN: tcp.FIN, RST: tcp.RST, PSH: tcp.PSH,
			ACK: tcp.ACK, URG: tcp.URG, ECE: tcp.ECE, CWR: tcp.CWR,
		}
		rec.WindowSize = int(tcp.Window)
		rec.TCPHeaderLen = int(tcp.DataOffset) * 4
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		rec.FiveTuple.Protocol = "UDP"
		rec.FiveTuple.SrcPort = uint16(udp.SrcPort)
		rec.FiveTuple.DstPort = uint16(udp.DstPort)
	case packet.Layer(layers.LayerTypeICMPv4) != nil:
		rec.FiveTuple.Protocol = "ICMP"
	default:
		return nil, fmt.Errorf("unsupported transport layer")
	}

	return rec, nil
}
