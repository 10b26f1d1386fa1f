// Package alerter batches block events from the bus and delivers periodic
// summaries to operators, optionally enriched with an AI analysis.
package alerter

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"NetSentinel/internal/ai"
	"NetSentinel/internal/config"
	"NetSentinel/internal/event"
	"NetSentinel/internal/model"

	"github.com/gomarkdown/markdown"
)

// Alerter collects ip_blocked events and sends a consolidated notification
// on each check interval. It never sits on the hot path: a missed event only
// ever means a thinner summary.
type Alerter struct {
	notifier      model.Notifier
	checkInterval time.Duration
	analyzer      *ai.Analyzer

	mu      sync.Mutex
	pending []*model.BlockRecord

	cancel func()
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewAlerter creates an Alerter subscribed to bus.
func NewAlerter(cfg config.AlerterConfig, notifier model.Notifier, bus *event.Bus) (*Alerter, error) {
	interval := config.Duration(cfg.CheckInterval, time.Minute)

	a := &Alerter{
		notifier:      notifier,
		checkInterval: interval,
		done:          make(chan struct{}),
	}

	if cfg.AIAnalysis.Enabled {
		analyzer, err := ai.NewAnalyzer(cfg.AIAnalysis)
		if err != nil {
			return nil, fmt.Errorf("failed to create AI analyzer: %w", err)
		}
		a.analyzer = analyzer
		log.Println("AI analysis enabled for alert summaries.")
	}

	ch, cancel := bus.Subscribe(128)
	a.cancel = cancel
	a.wg.Add(1)
	go a.collect(ch)

	return a, nil
}

// Start begins the periodic summary loop.
func (a *Alerter) Start() {
	a.wg.Add(1)
	go a.loop()
	log.Println("Alerter started")
}

// Stop flushes one final summary and terminates.
func (a *Alerter) Stop() {
	log.Println("Stopping Alerter...")
	a.cancel()
	close(a.done)
	a.wg.Wait()
	a.deliver()
}

func (a *Alerter) collect(ch <-chan model.Event) {
	defer a.wg.Done()
	for ev := range ch {
		if ev.Type != model.EventIPBlocked {
			continue
		}
		rec, ok := ev.Payload.(*model.BlockRecord)
		if !ok {
			continue
		}
		a.mu.Lock()
		a.pending = append(a.pending, rec)
		a.mu.Unlock()
	}
}

func (a *Alerter) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.deliver()
		case <-a.done:
			return
		}
	}
}

// deliver sends a consolidated summary of the blocks seen since the last
// check, if any.
func (a *Alerter) deliver() {
	a.mu.Lock()
	records := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(records) == 0 {
		return
	}
	log.Printf("Alerter delivering summary for %d block(s).", len(records))

	var lines []string
	for _, rec := range records {
		tag := ""
		if rec.Simulated {
			tag = " [simulated]"
		}
		lines = append(lines, fmt.Sprintf("<li><b>%s</b>%s — %s at %s</li>",
			rec.Address, tag, rec.Reason, rec.BlockedAt.Format(time.RFC3339)))
	}

	body := "<h1>NetSentinel Mitigation Summary</h1>" +
		"<p>The following addresses were blocked during the last check:</p>" +
		"<ul>" + strings.Join(lines, "") + "</ul>"

	if a.analyzer != nil {
		analysis, err := a.analyze(records)
		if err != nil {
			log.Printf("Failed to get AI analysis: %v", err)
		} else if analysis != "" {
			html := markdown.ToHTML([]byte(analysis), nil, nil)
			body += "<hr><h2>AI-Powered Analysis</h2>" + string(html)
		}
	}

	if a.notifier == nil {
		return
	}
	subject := fmt.Sprintf("NetSentinel Mitigation Summary (%d blocked)", len(records))
	if err := a.notifier.Send(subject, body); err != nil {
		log.Printf("ERROR: Failed to send alert notification: %v", err)
	} else {
		log.Println("Alert notification sent successfully.")
	}
}

func (a *Alerter) analyze(records []*model.BlockRecord) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var sb strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&sb, "%s blocked (%s, simulated=%t)\n", rec.Address, rec.Reason, rec.Simulated)
	}
	return a.analyzer.Analyze(ctx, sb.String())
}
