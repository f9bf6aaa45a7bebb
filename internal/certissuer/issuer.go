// Package certissuer obtains TLS certificates for landing domains.
// Three backends share one interface: certbot driven over SSH on the
// origin host, direct ACME issuance with a DNS-01 challenge, and a
// no-op backend for edge-terminated TLS.
package certissuer

import (
	"context"
	"errors"
)

// Issuance outcome statuses
const (
	StatusIssued       = "issued"
	StatusAlreadyValid = "already-valid"
	StatusSkipped      = "skipped"
)

// ErrRateLimited is returned when the CA refuses issuance due to rate
// limits. Callers surface this verbatim so operators do not retry into
// a longer lockout.
var ErrRateLimited = errors.New("certificate authority rate limit reached")

// Result describes the outcome of a successful issuance attempt
type Result struct {
	Status  string
	Message string
}

// Issuer obtains a certificate covering a landing domain
type Issuer interface {
	// Issue obtains (or confirms) a certificate for domain. A non-nil
	// error means certificate provisioning failed and the caller should
	// roll back; a nil error with StatusSkipped means TLS terminates
	// elsewhere.
	Issue(ctx context.Context, domain string) (*Result, error)
}
