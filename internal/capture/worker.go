// Package capture manages the packet-capture subprocess and turns its
// line-oriented output into PacketRecords.
package capture

import (
	"bufio"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"NetSentinel/internal/event"
	"NetSentinel/internal/model"
)

var tsharkFields = []string{
	"frame.time_epoch",
	"ip.src",
	"ip.dst",
	"_ws.col.Protocol",
	"tcp.srcport",
	"tcp.dstport",
	"frame.len",
	"tcp.flags.syn",
	"tcp.flags.fin",
	"tcp.flags.reset",
	"tcp.flags.push",
	"tcp.flags.ack",
	"tcp.flags.urg",
	"tcp.flags.ecn",
	"tcp.flags.cwr",
	"tcp.window_size",
	"ip.hdr_len",
	"tcp.hdr_len",
}

// Status reports the state of the current capture session.
type Status struct {
	Running     bool      `json:"running"`
	Target      string    `json:"target,omitempty"`
	Interface   string    `json:"interface,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	Packets     uint64    `json:"packets"`
	Rate        float64   `json:"rate_pps"`
	ParseErrors uint64    `json:"parse_errors"`
	Dropped     uint64    `json:"dropped"`
}

// Worker owns the capture subprocess. It emits PacketRecords on Records()
// and never blocks on a slow consumer: records are dropped when the channel
// is full. Teardown, including forceful termination after the grace period,
// belongs solely to Stop.
type Worker struct {
	tsharkPath string
	grace      time.Duration
	bus        *event.Bus

	out chan *model.PacketRecord

	mu        sync.Mutex
	cmd       *exec.Cmd
	running   bool
	stopping  bool
	target    string
	iface     string
	startedAt time.Time
	waitDone  chan struct{}

	packets     atomic.Uint64
	parseErrors atomic.Uint64
	dropped     atomic.Uint64
}

// NewWorker creates a capture worker publishing lifecycle events on bus.
func NewWorker(tsharkPath string, grace time.Duration, channelSize int, bus *event.Bus) *Worker {
	if tsharkPath == "" {
		tsharkPath = "tshark"
	}
	if channelSize <= 0 {
		channelSize = 4096
	}
	return &Worker{
		tsharkPath: tsharkPath,
		grace:      grace,
		bus:        bus,
		out:        make(chan *model.PacketRecord, channelSize),
	}
}

// Records returns the stream of parsed packets.
func (w *Worker) Records() <-chan *model.PacketRecord {
	return w.out
}

// Start launches the capture subprocess scoped to the target address on the
// given interface. Starting while already running is a no-op that preserves
// the existing session.
func (w *Worker) Start(target, iface string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		log.Printf("Capture already running on %s, ignoring start request", w.iface)
		return nil
	}

	args := []string{"-i", iface, "-f", fmt.Sprintf("host %s", target), "-l", "-T", "fields"}
	for _, f := range tsharkFields {
		args = append(args, "-e", f)
	}

	cmd := exec.Command(w.tsharkPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start capture subprocess: %w", err)
	}

	w.cmd = cmd
	w.running = true
	w.stopping = false
	w.target = target
	w.iface = iface
	w.startedAt = time.Now()
	w.waitDone = make(chan struct{})
	w.packets.Store(0)
	w.parseErrors.Store(0)
	w.dropped.Store(0)

	go w.readLoop(bufio.NewScanner(stdout), w.waitDone)

	log.Printf("Capture started for %s on interface %s (pid %d)", target, iface, cmd.Process.Pid)
	w.bus.Publish(model.EventCaptureStarted, map[string]string{"target": target, "iface": iface})
	return nil
}

// readLoop scans subprocess output until it ends, then reaps the process.
// A single malformed line never aborts the session.
func (w *Worker) readLoop(scanner *bufio.Scanner, waitDone chan struct{}) {
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			w.parseErrors.Add(1)
			log.Printf("Skipping malformed capture line: %v", err)
			continue
		}
		w.packets.Add(1)
		select {
		case w.out <- rec:
		default:
			w.dropped.Add(1)
		}
	}

	err := w.cmd.Wait()

	w.mu.Lock()
	abnormal := !w.stopping
	target, iface := w.target, w.iface
	w.running = false
	w.mu.Unlock()
	close(waitDone)

	if abnormal {
		cause := "capture subprocess exited"
		if err != nil {
			cause = err.Error()
		}
		log.Printf("Capture subprocess terminated abnormally: %s", cause)
		w.bus.Publish(model.EventCaptureFailure, model.CaptureFailurePayload{
			Target: target,
			Iface:  iface,
			Cause:  cause,
		})
	}
}

// Stop terminates the capture session: it requests termination and, if the
// subprocess has not exited within the grace period, force-kills it.
// Stopping an idle worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.stopping = true
	cmd := w.cmd
	waitDone := w.waitDone
	w.mu.Unlock()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("Failed to signal capture subprocess: %v", err)
	}

	select {
	case <-waitDone:
	case <-time.After(w.grace):
		log.Printf("Capture subprocess did not exit within %s, killing", w.grace)
		cmd.Process.Kill()
		<-waitDone
	}

	log.Println("Capture stopped.")
	w.bus.Publish(model.EventCaptureStopped, nil)
}

// Status returns a snapshot of the session state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{
		Running:     w.running,
		Packets:     w.packets.Load(),
		ParseErrors: w.parseErrors.Load(),
		Dropped:     w.dropped.Load(),
	}
	if w.running {
		s.Target = w.target
		s.Interface = w.iface
		s.StartedAt = w.startedAt
		if d := time.Since(w.startedAt).Seconds(); d > 0 {
			s.Rate = float64(s.Packets) / d
		}
	}
	return s
}
