package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NetSentinel/internal/alerter"
	"NetSentinel/internal/api"
	"NetSentinel/internal/audit"
	"NetSentinel/internal/cache"
	"NetSentinel/internal/capture"
	"NetSentinel/internal/config"
	"NetSentinel/internal/event"
	"NetSentinel/internal/flow"
	"NetSentinel/internal/fusion"
	"NetSentinel/internal/mitigation"
	"NetSentinel/internal/model"
	"NetSentinel/internal/notification"
	"NetSentinel/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	bus := event.NewBus()

	worker := capture.NewWorker(
		cfg.Capture.TsharkPath,
		config.Duration(cfg.Capture.GracePeriod, 3*time.Second),
		cfg.Capture.ChannelSize,
		bus,
	)

	aggregator := flow.NewAggregator(
		config.Duration(cfg.Window.Duration, 60*time.Second),
		config.Duration(cfg.Window.SubWindow, 5*time.Second),
		config.Duration(cfg.Window.StatsInterval, 5*time.Second),
		bus,
	)

	resultCache := cache.New(
		config.Duration(cfg.Fusion.CacheTTL, 10*time.Second),
		cfg.Fusion.CacheCapacity,
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
	engine := fusion.NewEngine(classifier, reputation, resultCache,
		cfg.Fusion.MitigationThreshold, cfg.Fusion.HeuristicCutoff)

	sdn := mitigation.NewRyuController(
		cfg.Mitigation.SDNBaseURL,
		config.Duration(cfg.Mitigation.SDNTimeout, 5*time.Second),
	)
	dispatcher := mitigation.NewDispatcher(sdn, bus,
		config.Duration(cfg.Mitigation.BlockDuration, time.Hour),
		config.Duration(cfg.Mitigation.JanitorInterval, time.Minute),
		cfg.Mitigation.MaxHistory,
		cfg.Mitigation.AllowSimulatedUnblock,
	)

	// Restore the block ledger from the last snapshot, if any.
	if cfg.Snapshot.Enabled {
		records, err := audit.LoadLedger(cfg.Snapshot.RootPath)
		if err != nil {
			log.Printf("Failed to load ledger snapshot: %v", err)
		} else if len(records) > 0 {
			dispatcher.Restore(records)
			log.Printf("Restored %d block records from snapshot.", len(records))
		}
	}

	p := pipeline.New(worker, aggregator, engine, dispatcher, sdn, bus)
	p.Start()
	defer p.Stop()
	log.Println("Detection pipeline started.")

	if cfg.NATS.Enabled {
		bridge, err := event.NewNATSBridge(cfg.NATS, bus)
		if err != nil {
			log.Fatalf("Failed to create NATS bridge: %v", err)
		}
		defer bridge.Close()
	}

	if cfg.ClickHouse.Enabled {
		sink, err := audit.NewClickHouseSink(cfg.ClickHouse, bus)
		if err != nil {
			log.Fatalf("Failed to create ClickHouse sink: %v", err)
		}
		defer sink.Close()
	}

	if cfg.Snapshot.Enabled {
		writer, err := audit.NewSnapshotWriter(cfg.Snapshot.RootPath,
			config.Duration(cfg.Snapshot.Interval, time.Minute), dispatcher)
		if err != nil {
			log.Fatalf("Failed to create snapshot writer: %v", err)
		}
		writer.Start()
		defer writer.Stop()
	}

	if cfg.Alerter.Enabled {
		var notifier model.Notifier
		if cfg.SMTP.Host != "" {
			notifier = notification.NewEmailNotifier(cfg.SMTP)
		}
		if notifier != nil || cfg.Alerter.AIAnalysis.Enabled {
			al, err := alerter.NewAlerter(cfg.Alerter, notifier, bus)
			if err != nil {
				log.Fatalf("Failed to create alerter: %v", err)
			}
			al.Start()
			defer al.Stop()
		} else {
			log.Println("Alerter is enabled in config, but no notifiers are configured. Alerter will not run.")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutdown signal received...")
		cancel()
	}()

	server := api.NewServer(p)
	addr := cfg.API.ListenAddr
	if addr == "" {
		addr = ":8090"
	}
	if err := server.ListenAndServe(ctx, addr); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Server exited.")
}
