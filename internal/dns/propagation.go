// Package dns waits for DNS propagation against public resolvers before
// downstream steps (certificate issuance) depend on the records.
package dns

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// DefaultResolvers are the public resolvers polled for propagation
var DefaultResolvers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// TimeoutError reports that a record did not become visible within the
// polling budget. It is distinct from delivery errors so callers can
// surface nameserver-delegation guidance instead of a generic failure.
type TimeoutError struct {
	Name    string
	Value   string
	Waited  time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("DNS record %s did not propagate within %s", e.Name, e.Waited)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last query error: %v)", e.LastErr)
	}
	return msg
}

// lookupFunc queries one resolver for A records of name. Injectable so
// tests do not hit the network.
type lookupFunc func(ctx context.Context, resolver, name string) ([]string, error)

// Waiter polls resolvers until an expected record is visible
type Waiter struct {
	Resolvers []string
	Timeout   time.Duration
	Interval  time.Duration

	lookup      lookupFunc
	lookupCNAME lookupFunc
}

// NewWaiter creates a propagation waiter with the given polling budget
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		Resolvers:   DefaultResolvers,
		Timeout:     timeout,
		Interval:    interval,
		lookup:      queryA,
		lookupCNAME: queryCNAME,
	}
}

// WaitForA polls until at least one resolver returns an A record for
// name matching expectIP, or the timeout elapses.
func (w *Waiter) WaitForA(ctx context.Context, name, expectIP string) error {
	return w.poll(ctx, name, expectIP, w.lookup, func(got, want string) bool {
		return got == want
	})
}

// WaitForCNAME polls until at least one resolver returns a CNAME for
// name pointing at target, or the timeout elapses. Used before tracking
// registration: the SaaS validates DNS on its side and rejects names it
// cannot resolve.
func (w *Waiter) WaitForCNAME(ctx context.Context, name, target string) error {
	return w.poll(ctx, name, target, w.lookupCNAME, func(got, want string) bool {
		return strings.EqualFold(strings.TrimSuffix(got, "."), strings.TrimSuffix(want, "."))
	})
}

func (w *Waiter) poll(ctx context.Context, name, want string, lookup lookupFunc, match func(got, want string) bool) error {
	deadline := time.Now().Add(w.Timeout)
	var lastErr error

	for attempt := 1; ; attempt++ {
		for _, resolver := range w.Resolvers {
			values, err := lookup(ctx, resolver, name)
			if err != nil {
				lastErr = err
				continue
			}
			for _, v := range values {
				if match(v, want) {
					log.Printf("[DNSWait] %s resolved to %s via %s (attempt %d)", name, v, resolver, attempt)
					return nil
				}
			}
		}

		if time.Now().After(deadline) {
			return &TimeoutError{Name: name, Value: want, Waited: w.Timeout, LastErr: lastErr}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.Interval):
		}
	}
}

// queryA asks a single resolver directly for A records, bypassing the
// local stub resolver and its cache.
func queryA(ctx context.Context, resolver, name string) ([]string, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), mdns.TypeA)
	m.RecursionDesired = true

	c := &mdns.Client{Timeout: 5 * time.Second}
	resp, _, err := c.ExchangeContext(ctx, m, resolver)
	if err != nil {
		return nil, fmt.Errorf("query %s against %s: %w", name, resolver, err)
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return nil, fmt.Errorf("query %s against %s: rcode %s", name, resolver, mdns.RcodeToString[resp.Rcode])
	}

	var ips []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*mdns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips, nil
}

// queryCNAME asks a single resolver directly for the CNAME target of name
func queryCNAME(ctx context.Context, resolver, name string) ([]string, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), mdns.TypeCNAME)
	m.RecursionDesired = true

	c := &mdns.Client{Timeout: 5 * time.Second}
	resp, _, err := c.ExchangeContext(ctx, m, resolver)
	if err != nil {
		return nil, fmt.Errorf("query %s against %s: %w", name, resolver, err)
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return nil, fmt.Errorf("query %s against %s: rcode %s", name, resolver, mdns.RcodeToString[resp.Rcode])
	}

	var targets []string
	for _, rr := range resp.Answer {
		if cname, ok := rr.(*mdns.CNAME); ok {
			targets = append(targets, cname.Target)
		}
	}
	return targets, nil
}
