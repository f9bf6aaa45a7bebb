// Package domainutil normalizes and validates landing domain names
// before they reach the DNS provider.
package domainutil

import (
	"fmt"
	"regexp"
	"strings"
)

var labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Normalize canonicalizes a domain name: trims whitespace, lowercases,
// and strips a trailing dot. It does not validate.
func Normalize(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.ToLower(domain)
	domain = strings.TrimSuffix(domain, ".")
	return domain
}

// Validate checks that a normalized domain is a plain registrable name:
// no protocol prefix, no path, at least two labels, each label valid DNS.
func Validate(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain is empty")
	}
	if strings.Contains(domain, "://") || strings.Contains(domain, "/") {
		return fmt.Errorf("domain must not contain a protocol or path: %s", domain)
	}
	if strings.ContainsAny(domain, " \t") {
		return fmt.Errorf("domain must not contain whitespace: %s", domain)
	}
	if len(domain) > 253 {
		return fmt.Errorf("domain too long: %d characters", len(domain))
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return fmt.Errorf("domain must have at least two labels: %s", domain)
	}
	for _, label := range labels {
		if label == "" {
			return fmt.Errorf("domain has an empty label: %s", domain)
		}
		if len(label) > 63 {
			return fmt.Errorf("domain label too long: %s", label)
		}
		if !labelRe.MatchString(label) {
			return fmt.Errorf("invalid domain label: %s", label)
		}
	}

	return nil
}

// NormalizePath canonicalizes a routing path segment: trims whitespace
// and surrounding slashes, lowercases.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return strings.ToLower(path)
}
