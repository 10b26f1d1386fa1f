package event

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"NetSentinel/internal/config"
	"NetSentinel/internal/model"

	"github.com/nats-io/nats.go"
)

// NATSBridge republishes bus events to NATS as JSON, one subject per event
// type, for external subscribers such as the dashboard transport.
type NATSBridge struct {
	nc     *nats.Conn
	prefix string
	cancel func()
	wg     sync.WaitGroup
}

// NewNATSBridge connects to the NATS server and subscribes to the bus.
func NewNATSBridge(cfg config.NATSConfig, bus *Bus) (*NATSBridge, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Printf("Connected to NATS server at %s", url)

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "sentinel.events"
	}

	b := &NATSBridge{nc: nc, prefix: prefix}

	ch, cancel := bus.Subscribe(256)
	b.cancel = cancel
	b.wg.Add(1)
	go b.forward(ch)

	return b, nil
}

// forward drains the bus subscription and publishes each event to NATS.
func (b *NATSBridge) forward(ch <-chan model.Event) {
	defer b.wg.Done()
	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("Error marshalling event %s: %v", ev.Type, err)
			continue
		}
		subject := fmt.Sprintf("%s.%s", b.prefix, ev.Type)
		if err := b.nc.Publish(subject, data); err != nil {
			log.Printf("Failed to publish event to %s: %v", subject, err)
		}
	}
}

// Close unsubscribes from the bus and drains the NATS connection.
func (b *NATSBridge) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	if b.nc != nil {
		b.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
