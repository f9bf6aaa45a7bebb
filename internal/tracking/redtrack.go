// Package tracking registers landing domains with the external
// tracking SaaS. Registration is deliberately non-fatal: a tracking
// outage must never block domain provisioning.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const (
	maxAttempts    = 3
	baseDelay      = 2 * time.Second
	maxDelay       = 15 * time.Second
	requestTimeout = 10 * time.Second
)

// Registration statuses
const (
	StatusRegistered = "registered"
	StatusSkipped    = "skipped"
)

// Result describes the tracking registration outcome. A skipped result
// carries the reason so the API response can report why tracking fields
// are empty.
type Result struct {
	Status     string
	ID         string
	DomainName string
	Reason     string
}

// Client talks to the tracking SaaS domain API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a tracking SaaS client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
		sleep:   sleepCtx,
	}
}

// sleepCtx waits for d, returning early if ctx is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type domainResponse struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
}

// Register registers trk.<domain> with the tracking SaaS. It retries
// transport errors, 429 and 5xx with capped exponential backoff; any
// other non-success response is a permanent skip. Register never
// returns an error: every failure mode degrades to a skipped Result.
func (c *Client) Register(ctx context.Context, domain string) *Result {
	if c.baseURL == "" || c.apiKey == "" {
		return &Result{Status: StatusSkipped, Reason: "tracking SaaS not configured"}
	}

	trackingDomain := "trk." + domain
	payload, _ := json.Marshal(map[string]string{"domain": trackingDomain})

	delay := baseDelay
	var reason string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, retryable, err := c.post(ctx, "/domains", payload)
		if err == nil {
			log.Printf("[Tracking] registered %s (id=%s)", trackingDomain, resp.ID)
			return &Result{
				Status:     StatusRegistered,
				ID:         resp.ID,
				DomainName: trackingDomain,
			}
		}

		reason = err.Error()
		if !retryable {
			break
		}
		if attempt == maxAttempts {
			break
		}

		log.Printf("[Tracking] attempt %d/%d for %s failed, retrying in %s: %v", attempt, maxAttempts, trackingDomain, delay, err)
		if serr := c.sleep(ctx, delay); serr != nil {
			return &Result{Status: StatusSkipped, Reason: serr.Error()}
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	log.Printf("[Tracking] giving up on %s: %s", trackingDomain, reason)
	return &Result{Status: StatusSkipped, Reason: reason}
}

// Delete removes a tracking domain registration. Best-effort: the
// caller records the outcome in the cleanup summary and moves on.
func (c *Client) Delete(ctx context.Context, registrationID string) error {
	if c.baseURL == "" || c.apiKey == "" {
		return nil
	}
	if registrationID == "" {
		return nil
	}

	u := fmt.Sprintf("%s/domains/%s?api_key=%s", c.baseURL, url.PathEscape(registrationID), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete tracking domain: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tracking SaaS returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// post performs one registration attempt. The second return value says
// whether the failure class is worth retrying.
func (c *Client) post(ctx context.Context, path string, payload []byte) (*domainResponse, bool, error) {
	u := fmt.Sprintf("%s%s?api_key=%s", c.baseURL, path, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("tracking SaaS unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read tracking response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out domainResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, false, fmt.Errorf("failed to parse tracking response: %w", err)
		}
		return &out, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("tracking SaaS returned %d: %s", resp.StatusCode, string(body))
	default:
		return nil, false, fmt.Errorf("tracking SaaS rejected registration (%d): %s", resp.StatusCode, string(body))
	}
}
