package certissuer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"landingops/internal/sshx"
)

// CertbotIssuer runs certbot on the origin host over SSH. The routing
// fragment published before issuance exposes /.well-known/acme-challenge
// from the webroot, so the HTTP-01 challenge is answered by nginx.
type CertbotIssuer struct {
	runner  sshx.Runner
	email   string
	webroot string
}

// NewCertbotIssuer creates an issuer that shells out to certbot on the
// origin host
func NewCertbotIssuer(runner sshx.Runner, email, webroot string) *CertbotIssuer {
	return &CertbotIssuer{
		runner:  runner,
		email:   email,
		webroot: webroot,
	}
}

// Issue runs certbot certonly for domain and its www alias, then
// classifies the output. The wildcard A record already resolves www, so
// the HTTP-01 challenge for both names lands on the same webroot.
func (c *CertbotIssuer) Issue(ctx context.Context, domain string) (*Result, error) {
	cmd := fmt.Sprintf(
		"certbot certonly --non-interactive --agree-tos -m %s --webroot -w %s -d %s -d www.%s",
		c.email, c.webroot, domain, domain,
	)

	log.Printf("[Certbot] issuing certificate for %s", domain)
	output, err := c.runner.Run(ctx, cmd)

	// Classify on output first: certbot exits non-zero for conditions we
	// treat as terminal-but-specific, and zero for renewal no-ops.
	switch {
	case containsAny(output, "Certificate not yet due for renewal"):
		log.Printf("[Certbot] %s: existing certificate still valid", domain)
		return &Result{Status: StatusAlreadyValid, Message: "existing certificate still valid"}, nil

	case containsAny(output, "too many certificates", "rateLimited", "rate limit"):
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, lastLine(output))

	case containsAny(output, "Successfully received certificate", "Congratulations"):
		return &Result{Status: StatusIssued, Message: "certificate issued by certbot"}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("certbot failed for %s: %w: %s", domain, err, lastLine(output))
	}

	// Exit zero but no recognizable marker. Treat as issued; the
	// verifier probes the live endpoint before anything depends on it.
	return &Result{Status: StatusIssued, Message: "certbot completed"}, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// lastLine returns the last non-empty line of command output, which is
// where certbot puts its reason for failing
func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
