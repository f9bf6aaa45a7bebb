package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiBase        = "https://api.cloudflare.com/client/v4"
	requestTimeout = 10 * time.Second
)

var (
	// ErrNotFound is returned when a zone or DNS record is not found
	ErrNotFound = errors.New("not found")

	// ErrAuth is returned when credentials are missing or rejected
	ErrAuth = errors.New("cloudflare authentication failed")

	// ErrRecordConflict is returned when a differing record already occupies
	// a name this client refuses to overwrite
	ErrRecordConflict = errors.New("conflicting DNS record already exists")
)

// APIError represents a non-success Cloudflare API response.
// RawBody is preserved so fatal provisioning errors can surface the
// provider's own words to the operator.
type APIError struct {
	StatusCode int
	Errors     []ResponseError
	RawBody    string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("cloudflare API error: status %d", e.StatusCode)
	}
	var msgs []string
	for _, re := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("[%d] %s", re.Code, re.Message))
	}
	return fmt.Sprintf("cloudflare API error: %s", strings.Join(msgs, "; "))
}

// Client is a minimal Cloudflare v4 API client for zone and record
// management. It supports both auth styles: legacy email+global-key
// headers when email is set, bearer token otherwise.
type Client struct {
	email    string
	apiToken string
	account  string
	baseURL  string
	client   *http.Client
}

// NewClient creates a new Cloudflare client
func NewClient(email, apiToken, accountID string) *Client {
	return &Client{
		email:    email,
		apiToken: apiToken,
		account:  accountID,
		baseURL:  apiBase,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Zone represents a Cloudflare zone (API response)
type Zone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	NameServers []string `json:"name_servers"`
}

// Record represents a Cloudflare DNS record (API response)
type Record struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// Response represents the Cloudflare API response envelope
type Response struct {
	Success bool            `json:"success"`
	Errors  []ResponseError `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

// ResponseError represents a Cloudflare API error entry
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// EnsureARecordsResult reports which origin records were created in this
// run versus accepted as pre-existing
type EnsureARecordsResult struct {
	CreatedIDs  []string
	ExistingIDs []string
}

// CNAMEResult reports the outcome of EnsureTrackingCNAME
type CNAMEResult struct {
	RecordID string
	Created  bool
}

// do performs one API call and returns the result payload
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	if c.apiToken == "" {
		return nil, fmt.Errorf("%w: API token not configured", ErrAuth)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.email != "" {
		req.Header.Set("X-Auth-Email", c.email)
		req.Header.Set("X-Auth-Key", c.apiToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, string(raw))
	}

	var cfResp Response
	if err := json.Unmarshal(raw, &cfResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !cfResp.Success {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Errors:     cfResp.Errors,
			RawBody:    string(raw),
		}
	}

	return cfResp.Result, nil
}

// GetOrCreateZone returns the zone for domain, creating it when absent.
// A fresh zone is inert until the registrar delegates to the returned
// nameservers; the caller is expected to surface that to the operator.
func (c *Client) GetOrCreateZone(ctx context.Context, domain string) (*Zone, error) {
	result, err := c.do(ctx, "GET", "/zones?name="+url.QueryEscape(domain), nil)
	if err != nil {
		return nil, err
	}

	var zones []Zone
	if err := json.Unmarshal(result, &zones); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	if len(zones) > 0 {
		return &zones[0], nil
	}

	payload := map[string]interface{}{
		"name":       domain,
		"jump_start": false,
	}
	if c.account != "" {
		payload["account"] = map[string]string{"id": c.account}
	}

	result, err = c.do(ctx, "POST", "/zones", payload)
	if err != nil {
		return nil, err
	}

	var zone Zone
	if err := json.Unmarshal(result, &zone); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	return &zone, nil
}

// ListRecords lists all DNS records for a zone
func (c *Client) ListRecords(ctx context.Context, zoneID string) ([]Record, error) {
	result, err := c.do(ctx, "GET", fmt.Sprintf("/zones/%s/dns_records?per_page=1000", zoneID), nil)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(result, &records); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	return records, nil
}

// EnsureARecords ensures root and wildcard A records exist for domain
// pointing at ip. Pre-existing records at those names are accepted as-is
// and reported in ExistingIDs, never rewritten to a different content.
// Records are created DNS-only; proxying is enabled later, after TLS.
func (c *Client) EnsureARecords(ctx context.Context, zoneID, domain, ip string) (*EnsureARecordsResult, error) {
	existing, err := c.ListRecords(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Record)
	for i := range existing {
		r := existing[i]
		if r.Type == "A" || r.Type == "AAAA" {
			if _, ok := byName[r.Name]; !ok {
				byName[r.Name] = &existing[i]
			}
		}
	}

	res := &EnsureARecordsResult{}
	for _, name := range []string{domain, "*." + domain} {
		if r, ok := byName[name]; ok {
			// No silent IP correction: an existing record wins even when
			// its content differs from the configured origin.
			res.ExistingIDs = append(res.ExistingIDs, r.ID)
			continue
		}

		id, err := c.createRecord(ctx, zoneID, Record{
			Type:    "A",
			Name:    name,
			Content: ip,
			TTL:     1, // Cloudflare automatic
			Proxied: false,
		})
		if err != nil {
			return nil, err
		}
		res.CreatedIDs = append(res.CreatedIDs, id)
	}

	return res, nil
}

// EnsureTrackingCNAME creates the DNS-only CNAME trk.<domain> -> target.
// It never deletes what it finds: a differing record of any type at that
// name fails with ErrRecordConflict.
func (c *Client) EnsureTrackingCNAME(ctx context.Context, zoneID, domain, target string) (*CNAMEResult, error) {
	name := TrackingName(domain)

	records, err := c.ListRecords(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		if r.Name != name {
			continue
		}
		if r.Type == "CNAME" && strings.EqualFold(strings.TrimSuffix(r.Content, "."), strings.TrimSuffix(target, ".")) {
			return &CNAMEResult{RecordID: r.ID, Created: false}, nil
		}
		return nil, fmt.Errorf("%w: %s %s at %s", ErrRecordConflict, r.Type, r.Content, name)
	}

	id, err := c.createRecord(ctx, zoneID, Record{
		Type:    "CNAME",
		Name:    name,
		Content: target,
		TTL:     1,
		Proxied: false,
	})
	if err != nil {
		return nil, err
	}

	return &CNAMEResult{RecordID: id, Created: true}, nil
}

// SetProxied toggles the edge-proxy flag on this domain's records.
// Only records we plausibly created are touched: A/AAAA whose content
// matches originIP, and the trk. tracking CNAME. NS records can never be
// proxied; records pointing elsewhere are skipped, not corrected.
// Returns the number of records updated.
func (c *Client) SetProxied(ctx context.Context, zoneID, domain, originIP string, proxied bool) (int, error) {
	records, err := c.ListRecords(ctx, zoneID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range records {
		if r.Type == "NS" {
			continue
		}

		match := false
		switch r.Type {
		case "A", "AAAA":
			match = r.Content == originIP
		case "CNAME":
			match = strings.HasPrefix(r.Name, "trk.")
		}
		if !match || r.Proxied == proxied {
			continue
		}

		payload := map[string]interface{}{
			"type":    r.Type,
			"name":    r.Name,
			"content": r.Content,
			"ttl":     r.TTL,
			"proxied": proxied,
		}
		if _, err := c.do(ctx, "PUT", fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, r.ID), payload); err != nil {
			return updated, err
		}
		updated++
	}

	return updated, nil
}

// SetZoneTLSMode sets the zone's edge SSL mode (off/flexible/full/strict).
// Callers treat a failure here as a skipped step, not a pipeline abort.
func (c *Client) SetZoneTLSMode(ctx context.Context, zoneID, mode string) error {
	payload := map[string]string{"value": mode}
	_, err := c.do(ctx, "PATCH", fmt.Sprintf("/zones/%s/settings/ssl", zoneID), payload)
	return err
}

// DeleteOriginRecords deletes A/AAAA records for domain (root and
// wildcard) whose content matches originIP. Records with a different
// content were not created by this system and are left alone.
func (c *Client) DeleteOriginRecords(ctx context.Context, zoneID, domain, originIP string) error {
	records, err := c.ListRecords(ctx, zoneID)
	if err != nil {
		return err
	}

	for _, r := range records {
		if r.Type != "A" && r.Type != "AAAA" {
			continue
		}
		if r.Name != domain && r.Name != "*."+domain {
			continue
		}
		if r.Content != originIP {
			continue
		}
		if err := c.deleteRecord(ctx, zoneID, r.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	return nil
}

// DeleteTrackingCNAME deletes the trk.<domain> CNAME if present
func (c *Client) DeleteTrackingCNAME(ctx context.Context, zoneID, domain string) error {
	records, err := c.ListRecords(ctx, zoneID)
	if err != nil {
		return err
	}

	name := TrackingName(domain)
	for _, r := range records {
		if r.Type == "CNAME" && r.Name == name {
			if err := c.deleteRecord(ctx, zoneID, r.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
	}

	return nil
}

// DeleteRecord deletes a single DNS record by provider ID. Rollback
// uses this so only records created in the failed run are removed.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	return c.deleteRecord(ctx, zoneID, recordID)
}

// CreateTXT creates a TXT record, used for ACME DNS-01 challenges
func (c *Client) CreateTXT(ctx context.Context, zoneID, name, value string) (string, error) {
	return c.createRecord(ctx, zoneID, Record{
		Type:    "TXT",
		Name:    name,
		Content: value,
		TTL:     60,
	})
}

// DeleteTXT deletes TXT records at name whose content matches value
func (c *Client) DeleteTXT(ctx context.Context, zoneID, name, value string) error {
	records, err := c.ListRecords(ctx, zoneID)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Type == "TXT" && strings.TrimSuffix(r.Name, ".") == strings.TrimSuffix(name, ".") && r.Content == value {
			if err := c.deleteRecord(ctx, zoneID, r.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
	}
	return nil
}

// createRecord creates a new DNS record and returns its provider ID
func (c *Client) createRecord(ctx context.Context, zoneID string, record Record) (string, error) {
	payload := map[string]interface{}{
		"type":    record.Type,
		"name":    record.Name,
		"content": record.Content,
		"ttl":     record.TTL,
		"proxied": record.Proxied,
	}

	result, err := c.do(ctx, "POST", fmt.Sprintf("/zones/%s/dns_records", zoneID), payload)
	if err != nil {
		return "", err
	}

	var created Record
	if err := json.Unmarshal(result, &created); err != nil {
		return "", fmt.Errorf("failed to parse result: %w", err)
	}

	return created.ID, nil
}

// deleteRecord deletes a DNS record by its provider-specific ID
func (c *Client) deleteRecord(ctx context.Context, zoneID, recordID string) error {
	_, err := c.do(ctx, "DELETE", fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			// 81044/81043: record already gone
			for _, e := range apiErr.Errors {
				if e.Code == 81044 || e.Code == 81043 {
					return ErrNotFound
				}
			}
			if apiErr.StatusCode == http.StatusNotFound {
				return ErrNotFound
			}
		}
		return err
	}
	return nil
}

// TrackingName returns the tracking subdomain for a landing domain
func TrackingName(domain string) string {
	return "trk." + domain
}
