package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ReputationClient queries the IP reputation service for a 0-100 confidence
// score that an address is abusive.
type ReputationClient struct {
	baseURL string
	apiKey  string
	maxAge  int // maximum report age in days
	client  *http.Client
	timeout time.Duration
}

// NewReputationClient creates a client for the service at baseURL.
func NewReputationClient(baseURL, apiKey string, maxAgeDays int, timeout time.Duration) *ReputationClient {
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}
	return &ReputationClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		maxAge:  maxAgeDays,
		client:  &http.Client{},
		timeout: timeout,
	}
}

type reputationResponse struct {
	Data struct {
		AbuseConfidenceScore float64 `json:"abuseConfidenceScore"`
	} `json:"data"`
}

// Score looks up the abuse confidence score for ip, bounded by the client
// timeout.
func (r *ReputationClient) Score(ctx context.Context, ip string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", strconv.Itoa(r.maxAge))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/check?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("reputation lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("reputation service returned status %d", resp.StatusCode)
	}

	var out reputationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode reputation response: %w", err)
	}
	return out.Data.AbuseConfidenceScore, nil
}
