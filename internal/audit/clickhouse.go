// Package audit persists detection and mitigation events for offline
// analysis. The ClickHouse sink is write-only; the query path is external.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"NetSentinel/internal/config"
	"NetSentinel/internal/event"
	"NetSentinel/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS sentinel_events (
    Timestamp  DateTime,
    EventType  String,
    Address    String,
    Verdict    String,
    Score      Float64,
    Reason     String,
    Simulated  UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (EventType, Timestamp);
`

type auditRow struct {
	ts        time.Time
	eventType string
	address   string
	verdict   string
	score     float64
	reason    string
	simulated bool
}

// ClickHouseSink subscribes to the event bus and batches detection and
// block/unblock events into ClickHouse on a fixed interval.
type ClickHouseSink struct {
	conn     driver.Conn
	interval time.Duration

	mu      sync.Mutex
	pending []auditRow

	cancel func()
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewClickHouseSink connects, ensures the table exists, and subscribes to bus.
func NewClickHouseSink(cfg config.ClickHouseConfig, bus *event.Bus) (*ClickHouseSink, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	s := &ClickHouseSink{
		conn:     conn,
		interval: config.Duration(cfg.Interval, 10*time.Second),
		done:     make(chan struct{}),
	}

	ch, cancel := bus.Subscribe(256)
	s.cancel = cancel
	s.wg.Add(2)
	go s.collect(ch)
	go s.flusher()
	return s, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// collect turns bus events into pending audit rows.
func (s *ClickHouseSink) collect(ch <-chan model.Event) {
	defer s.wg.Done()
	for ev := range ch {
		row, ok := rowFromEvent(ev)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.pending = append(s.pending, row)
		s.mu.Unlock()
	}
}

func rowFromEvent(ev model.Event) (auditRow, bool) {
	switch ev.Type {
	case model.EventDetectionResult:
		payload, ok := ev.Payload.(model.DetectionPayload)
		if !ok || payload.Assessment == nil {
			return auditRow{}, false
		}
		a := payload.Assessment
		return auditRow{
			ts:        ev.Timestamp,
			eventType: string(ev.Type),
			address:   a.Address,
			verdict:   string(a.Verdict),
			score:     a.CombinedScore,
		}, true
	case model.EventIPBlocked, model.EventIPUnblocked:
		rec, ok := ev.Payload.(*model.BlockRecord)
		if !ok {
			return auditRow{}, false
		}
		return auditRow{
			ts:        ev.Timestamp,
			eventType: string(ev.Type),
			address:   rec.Address,
			reason:    rec.Reason,
			simulated: rec.Simulated,
		}, true
	default:
		return auditRow{}, false
	}
}

func (s *ClickHouseSink) flusher() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *ClickHouseSink) flush() {
	s.mu.Lock()
	rows := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(rows) == 0 {
		return
	}

	batch, err := s.conn.PrepareBatch(context.Background(), "INSERT INTO sentinel_events")
	if err != nil {
		log.Printf("Failed to prepare audit batch: %v", err)
		return
	}
	for _, r := range rows {
		simulated := uint8(0)
		if r.simulated {
			simulated = 1
		}
		if err := batch.Append(r.ts, r.eventType, r.address, r.verdict, r.score, r.reason, simulated); err != nil {
			log.Printf("Failed to append audit row: %v", err)
			return
		}
	}
	if err := batch.Send(); err != nil {
		log.Printf("Failed to send audit batch: %v", err)
		return
	}
	log.Printf("Wrote %d audit events to ClickHouse", len(rows))
}

// Close unsubscribes, flushes the remaining rows, and closes the connection.
func (s *ClickHouseSink) Close() {
	s.cancel()
	close(s.done)
	s.wg.Wait()
	s.conn.Close()
}
