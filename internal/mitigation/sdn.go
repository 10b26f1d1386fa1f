package mitigation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"NetSentinel/internal/model"
)

// RyuController installs and removes DROP flow rules through the Ryu REST
// API. It implements model.Blocker; the pipeline only ever sees the opaque
// block/unblock capability.
type RyuController struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewRyuController creates a client for the controller at baseURL.
func NewRyuController(baseURL string, timeout time.Duration) *RyuController {
	return &RyuController{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// dropRule matches all IPv4 traffic from ip; an empty action list drops.
func dropRule(ip string, withPriority bool) map[string]interface{} {
	rule := map[string]interface{}{
		"dpid": 1,
		"match": map[string]interface{}{
			"eth_type": 0x0800,
			"ipv4_src": ip,
		},
	}
	if withPriority {
		rule["priority"] = 60000
		rule["actions"] = []interface{}{}
	}
	return rule
}

func (r *RyuController) post(ctx context.Context, path string, payload interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("SDN controller unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("SDN controller returned status %d", resp.StatusCode)
	}
	return nil
}

// BlockIP installs a DROP rule for all traffic sourced from ip.
func (r *RyuController) BlockIP(ctx context.Context, ip string) error {
	return r.post(ctx, "/stats/flowentry/add", dropRule(ip, true))
}

// UnblockIP removes the DROP rule for ip.
func (r *RyuController) UnblockIP(ctx context.Context, ip string) error {
	return r.post(ctx, "/stats/flowentry/delete", dropRule(ip, false))
}

// Reachable reports whether the controller answers its switches endpoint.
func (r *RyuController) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/stats/switches", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

var _ model.Blocker = (*RyuController)(nil)
