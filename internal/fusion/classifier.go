package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ClassifierRequest is the payload sent to the ML detection service.
type ClassifierRequest struct {
	Traffic      []float64              `json:"traffic"`
	IPAddress    string                 `json:"ip_address"`
	PacketData   map[string]interface{} `json:"packet_data"`
	NetworkSlice string                 `json:"network_slice"`
}

// ClassifierResponse is the verdict returned by the ML detection service.
type ClassifierResponse struct {
	Prediction  string  `json:"prediction"`
	Confidence  float64 `json:"confidence"`
	ThreatLevel string  `json:"threat_level"`
}

// ClassifierClient calls the ML detection service over HTTP. Health is
// polled on a fixed interval via a dedicated endpoint; an unhealthy service
// gates the primary call entirely so the fallback path kicks in without
// waiting for a timeout.
type ClassifierClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration

	healthInterval time.Duration
	healthy        atomic.Bool
	done           chan struct{}
	wg             sync.WaitGroup
}

// NewClassifierClient creates a client for the service at baseURL.
func NewClassifierClient(baseURL string, timeout, healthInterval time.Duration) *ClassifierClient {
	c := &ClassifierClient{
		baseURL:        baseURL,
		client:         &http.Client{},
		timeout:        timeout,
		healthInterval: healthInterval,
		done:           make(chan struct{}),
	}
	// Assume healthy until the first poll says otherwise.
	c.healthy.Store(true)
	return c
}

// Start launches the periodic health poller. Its lifecycle belongs to the
// fusion engine, not to ambient process-wide timers.
func (c *ClassifierClient) Start() {
	c.wg.Add(1)
	go c.healthLoop()
}

// Stop terminates the health poller.
func (c *ClassifierClient) Stop() {
	close(c.done)
	c.wg.Wait()
}

func (c *ClassifierClient) healthLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	c.checkHealth()
	for {
		select {
		case <-ticker.C:
			c.checkHealth()
		case <-c.done:
			return
		}
	}
}

func (c *ClassifierClient) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		c.healthy.Store(false)
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if c.healthy.Swap(false) {
			log.Printf("Classifier service became unhealthy: %v", err)
		}
		return
	}
	resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	if !c.healthy.Swap(ok) && ok {
		log.Println("Classifier service is healthy again.")
	}
}

// Healthy reports the last polled health state.
func (c *ClassifierClient) Healthy() bool {
	return c.healthy.Load()
}

// Classify sends a classification request bounded by the client timeout.
func (c *ClassifierClient) Classify(ctx context.Context, req ClassifierRequest) (*ClassifierResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classifier request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classifier call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var out ClassifierResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	return &out, nil
}
