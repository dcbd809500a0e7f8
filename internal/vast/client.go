package vast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client fetches machine snapshots from the provider. Fetch failures are
// transient: the caller treats a failed cycle as "no observation" and
// retries on the next tick.
type Client interface {
	Machines(ctx context.Context) ([]Machine, error)
}

const defaultBaseURL = "https://console.vast.ai/api/v0"

const (
	fetchAttempts  = 3
	fetchBackoff   = 2 * time.Second
	maxFetchDelay  = 30 * time.Second
	requestTimeout = 30 * time.Second
)

// APIClient talks to the Vast.ai console API.
type APIClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewAPIClient(apiKey string) *APIClient {
	return &APIClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// machinesResponse mirrors the provider's envelope.
type machinesResponse struct {
	Machines []Machine `json:"machines"`
}

// Machines fetches the full machine list, retrying transient failures
// with exponential backoff before giving up for this cycle.
func (c *APIClient) Machines(ctx context.Context) ([]Machine, error) {
	var lastErr error
	delay := fetchBackoff
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		machines, err := c.fetchOnce(ctx)
		if err == nil {
			return machines, nil
		}
		lastErr = err
		if attempt < fetchAttempts {
			log.Printf("Machine fetch attempt %d/%d failed, retrying in %s: %v", attempt, fetchAttempts, delay, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxFetchDelay {
				delay = maxFetchDelay
			}
		}
	}
	return nil, fmt.Errorf("fetch machines after %d attempts: %w", fetchAttempts, lastErr)
}

func (c *APIClient) fetchOnce(ctx context.Context) ([]Machine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/machines", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("machines endpoint returned %d: %s", resp.StatusCode, body)
	}

	var envelope machinesResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode machines response: %w", err)
	}
	return envelope.Machines, nil
}
