package certissuer

import "context"

// EdgeIssuer is used when TLS terminates at the proxy edge with a
// universal certificate. Origin-side issuance is skipped entirely.
type EdgeIssuer struct{}

// NewEdgeIssuer creates the no-op edge backend
func NewEdgeIssuer() *EdgeIssuer {
	return &EdgeIssuer{}
}

// Issue reports the skip; the caller marks the domain cf-universal
func (e *EdgeIssuer) Issue(ctx context.Context, domain string) (*Result, error) {
	return &Result{Status: StatusSkipped, Message: "TLS terminated at the proxy edge"}, nil
}
