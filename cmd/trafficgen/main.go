package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// trafficgen writes a synthetic SYN-flood pcap from a configurable number of
// attacker addresses toward a single target, for exercising pcap-replay and
// the fallback heuristic.
func main() {
	outputFile := flag.String("o", "flood.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 10000, "Number of packets to generate")
	attackers := flag.Int("a", 4, "Number of attacker source addresses")
	target := flag.String("t", "10.0.0.1", "Target address")
	flag.Parse()

	dstIP := net.ParseIP(*target).To4()
	if dstIP == nil {
		log.Fatalf("Invalid target address: %s", *target)
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	srcIPs := make([]net.IP, *attackers)
	for i := range srcIPs {
		srcIPs[i] = net.IP{192, 168, byte(i / 250), byte(i%250 + 2)}
	}

	log.Printf("Generating %d packets from %d attacker(s) into %s...", *packetCount, *attackers, *outputFile)

	ts := time.Now()
	for i := 0; i < *packetCount; i++ {
		srcIP := srcIPs[rand.Intn(len(srcIPs))]
		payloadSize := rand.Intn(1200) + 800 // large frames push the heuristic

		ethLayer := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ipLayer := &layers.IPv4{
			SrcIP:    srcIP,
			DstIP:    dstIP,
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
		}
		tcpLayer := &layers.TCP{
			SrcPort: layers.TCPPort(rand.Intn(65535-1024) + 1024),
			DstPort: 80,
			Seq:     rand.Uint32(),
			SYN:     true,
			Window:  14600,
		}
		tcpLayer.SetNetworkLayerForChecksum(ipLayer)

		payload := make([]byte, payloadSize)
		rand.Read(payload)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}
		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(payload)); err != nil {
			log.Fatalf("Failed to serialize packet: %v", err)
		}

		ts = ts.Add(time.Duration(rand.Intn(2000)) * time.Microsecond)
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pcapWriter.WritePacket(ci, buf.Bytes()); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Println("Done.")
}
