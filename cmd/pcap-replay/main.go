package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"NetSentinel/internal/cache"
	"NetSentinel/internal/config"
	"NetSentinel/internal/event"
	"NetSentinel/internal/flow"
	"NetSentinel/internal/fusion"
	"NetSentinel/internal/model"
	"NetSentinel/pkg/pcap"
)

// pcap-replay feeds a capture file through the flow aggregator and runs the
// fusion engine on the per-source packet size samples, printing each verdict.
// Useful for validating detection behavior against recorded attacks without
// a live interface.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: pcap-replay [-config path] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	bus := event.NewBus()
	aggregator := flow.NewAggregator(
		config.Duration(cfg.Window.Duration, 60*time.Second),
		config.Duration(cfg.Window.SubWindow, 5*time.Second),
		config.Duration(cfg.Window.StatsInterval, 5*time.Second),
		bus,
	)

	classifier := fusion.NewClassifierClient(
		cfg.Fusion.ClassifierURL,
		config.Duration(cfg.Fusion.ClassifierTimeout, 3*time.Second),
		config.Duration(cfg.Fusion.HealthInterval, 10*time.Second),
	)
	reputation := fusion.NewReputationClient(
		cfg.Fusion.ReputationURL,
		cfg.Fusion.ReputationKey,
		cfg.Fusion.ReputationMaxAge,
		config.Duration(cfg.Fusion.ReputationTimeout, 3*time.Second),
	)
	resultCache := cache.New(config.Duration(cfg.Fusion.CacheTTL, 10*time.Second), cfg.Fusion.CacheCapacity)
	engine := fusion.NewEngine(classifier, reputation, resultCache,
		cfg.Fusion.MitigationThreshold, cfg.Fusion.HeuristicCutoff)
	engine.Start()
	defer engine.Stop()

	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()
	log.Printf("Reading packets from '%s'...", pcapFilePath)

	records := make(chan *model.PacketRecord, 1024)
	go reader.ReadPackets(records)

	// Collect per-source packet size samples while filling the window.
	samples := make(map[string][]float64)
	count := 0
	for rec := range records {
		aggregator.Add(rec)
		src := rec.FiveTuple.SrcIP.String()
		samples[src] = append(samples[src], float64(rec.Length))
		count++
	}
	log.Printf("Replayed %d packets from %d source(s).", count, len(samples))

	stats := aggregator.Stats(time.Now())
	log.Printf("Window: %d packets, %.1f pps, mean size %.1f", stats.PacketCount, stats.PacketsPerSecond, stats.MeanPacketSize)

	for src, sample := range samples {
		assessment, _, err := engine.Assess(context.Background(), fusion.Request{
			Traffic: sample,
			Address: src,
		})
		if err != nil {
			log.Printf("Skipping %s: %v", src, err)
			continue
		}
		fmt.Printf("%-16s verdict=%-10s score=%.2f (%d packets)\n",
			src, assessment.Verdict, assessment.CombinedScore, len(sample))
	}
}
