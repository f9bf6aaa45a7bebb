package nginx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"time"

	"landingops/internal/sshx"
)

// Publisher delivers a rendered fragment to the origin host and reloads
// nginx. Implemented by SSHPublisher and RemotePublisher.
type Publisher interface {
	// Publish installs the fragment for domain and reloads nginx
	Publish(ctx context.Context, domain, content string) error
	// Remove deletes the fragment for domain and reloads nginx
	Remove(ctx context.Context, domain string) error
}

// SSHPublisher writes fragments over SSH and reloads nginx in place
type SSHPublisher struct {
	runner    sshx.Runner
	confDir   string
	reloadCmd string
}

// NewSSHPublisher creates a publisher that manages conf files on the
// origin host directly
func NewSSHPublisher(runner sshx.Runner, confDir, reloadCmd string) *SSHPublisher {
	if reloadCmd == "" {
		reloadCmd = "nginx -s reload"
	}
	return &SSHPublisher{runner: runner, confDir: confDir, reloadCmd: reloadCmd}
}

// Publish writes the fragment, validates the full config, then reloads.
// A failed validation removes the fragment again so a broken publish
// cannot take the other domains down with it.
func (p *SSHPublisher) Publish(ctx context.Context, domain, content string) error {
	target := path.Join(p.confDir, FragmentName(domain))

	if err := p.runner.WriteFile(ctx, target, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write routing fragment: %w", err)
	}

	if out, err := p.runner.Run(ctx, "nginx -t"); err != nil {
		if _, rmErr := p.runner.Run(ctx, "rm -f "+target); rmErr != nil {
			log.Printf("[Nginx] failed to remove broken fragment %s: %v", target, rmErr)
		}
		return fmt.Errorf("nginx config validation failed: %w: %s", err, out)
	}

	if out, err := p.runner.Run(ctx, p.reloadCmd); err != nil {
		return fmt.Errorf("nginx reload failed: %w: %s", err, out)
	}

	log.Printf("[Nginx] published fragment for %s (hash=%s)", domain, ContentHash(content))
	return nil
}

// Remove deletes the fragment and reloads
func (p *SSHPublisher) Remove(ctx context.Context, domain string) error {
	target := path.Join(p.confDir, FragmentName(domain))

	if _, err := p.runner.Run(ctx, "rm -f "+target); err != nil {
		return fmt.Errorf("failed to remove routing fragment: %w", err)
	}
	if out, err := p.runner.Run(ctx, p.reloadCmd); err != nil {
		return fmt.Errorf("nginx reload failed: %w: %s", err, out)
	}
	return nil
}

// RemotePublisher posts fragments to an apply endpoint on the origin
// host's config agent instead of editing files directly
type RemotePublisher struct {
	applyURL string
	token    string
	client   *http.Client
}

// NewRemotePublisher creates a publisher that delegates installation to
// a remote apply endpoint
func NewRemotePublisher(applyURL, token string) *RemotePublisher {
	return &RemotePublisher{
		applyURL: applyURL,
		token:    token,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type applyRequest struct {
	Domain   string `json:"domain"`
	File     string `json:"file"`
	Content  string `json:"content,omitempty"`
	Delete   bool   `json:"delete,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

func (p *RemotePublisher) post(ctx context.Context, reqBody applyRequest) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal apply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.applyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create apply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach apply endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("apply endpoint returned %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// Publish sends the fragment to the apply endpoint
func (p *RemotePublisher) Publish(ctx context.Context, domain, content string) error {
	return p.post(ctx, applyRequest{
		Domain:   domain,
		File:     FragmentName(domain),
		Content:  content,
		Checksum: ContentHash(content),
	})
}

// Remove asks the apply endpoint to delete the fragment
func (p *RemotePublisher) Remove(ctx context.Context, domain string) error {
	return p.post(ctx, applyRequest{
		Domain: domain,
		File:   FragmentName(domain),
		Delete: true,
	})
}
