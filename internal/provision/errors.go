package provision

import "fmt"

// Kind classifies provisioning failures so the API layer can map them
// to responses without matching on message text.
type Kind string

const (
	KindValidation Kind = "validation"    // bad input, nothing attempted
	KindConflict   Kind = "conflict"      // domain or record already taken
	KindNotFound   Kind = "not-found"
	KindForbidden  Kind = "forbidden"
	KindLocked     Kind = "locked"        // another run in flight for this domain
	KindAuth       Kind = "provider-auth" // DNS provider rejected credentials
	KindProvider   Kind = "provider"      // DNS provider operation failed
	KindIssuer     Kind = "issuer"        // certificate issuance failed
	KindTimeout    Kind = "timeout"       // propagation or verification budget exhausted
	KindInternal   Kind = "internal"
)

// Error is a classified provisioning failure. Details carries the
// upstream system's own words (provider error body, certbot output)
// for the operator.
type Error struct {
	Kind    Kind
	Domain  string
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, domain, message string, err error) *Error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &Error{Kind: kind, Domain: domain, Message: message, Details: details, Err: err}
}
