// Package nginx renders and publishes per-domain routing fragments for
// the origin host's nginx.
package nginx

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"landingops/internal/model"
)

// Renderer generates nginx server fragments for a landing domain
type Renderer struct {
	certDir string
	webroot string
}

// NewRenderer creates a fragment renderer. certDir is where issued
// certificate material lives on the origin host; webroot serves ACME
// HTTP-01 challenges.
func NewRenderer(certDir, webroot string) *Renderer {
	return &Renderer{certDir: certDir, webroot: webroot}
}

// RenderHTTP renders the pre-issuance fragment: HTTP only, with the
// ACME challenge location exposed so certbot's webroot mode works.
func (r *Renderer) RenderHTTP(domain string, routes []model.Route) string {
	var sb strings.Builder
	sb.WriteString("server {\n")
	sb.WriteString("    listen 80;\n")
	sb.WriteString(fmt.Sprintf("    server_name %s *.%s;\n", domain, domain))
	sb.WriteString("\n")
	sb.WriteString("    location /.well-known/acme-challenge/ {\n")
	sb.WriteString(fmt.Sprintf("        root %s;\n", r.webroot))
	sb.WriteString("    }\n")
	sb.WriteString("\n")
	r.writeRoutes(&sb, routes)
	sb.WriteString("}\n")
	return sb.String()
}

// RenderHTTPS renders the post-issuance fragment: HTTPS with the issued
// certificate, plus an HTTP server that redirects everything except the
// ACME challenge path.
func (r *Renderer) RenderHTTPS(domain string, routes []model.Route) string {
	var sb strings.Builder

	sb.WriteString("server {\n")
	sb.WriteString("    listen 80;\n")
	sb.WriteString(fmt.Sprintf("    server_name %s *.%s;\n", domain, domain))
	sb.WriteString("\n")
	sb.WriteString("    location /.well-known/acme-challenge/ {\n")
	sb.WriteString(fmt.Sprintf("        root %s;\n", r.webroot))
	sb.WriteString("    }\n")
	sb.WriteString("\n")
	sb.WriteString("    location / {\n")
	sb.WriteString("        return 301 https://$host$request_uri;\n")
	sb.WriteString("    }\n")
	sb.WriteString("}\n")
	sb.WriteString("\n")

	sb.WriteString("server {\n")
	sb.WriteString("    listen 443 ssl;\n")
	sb.WriteString("    http2 on;\n")
	sb.WriteString(fmt.Sprintf("    server_name %s *.%s;\n", domain, domain))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("    ssl_certificate %s/%s/fullchain.pem;\n", r.certDir, domain))
	sb.WriteString(fmt.Sprintf("    ssl_certificate_key %s/%s/privkey.pem;\n", r.certDir, domain))
	sb.WriteString("\n")
	r.writeRoutes(&sb, routes)
	sb.WriteString("}\n")

	return sb.String()
}

// writeRoutes emits one location block per configured route, plus the
// catch-all root handler
func (r *Renderer) writeRoutes(sb *strings.Builder, routes []model.Route) {
	for _, route := range routes {
		sb.WriteString(fmt.Sprintf("    location /%s/ {\n", route.PathSegment))
		sb.WriteString(fmt.Sprintf("        root /var/www/landers/%s;\n", route.TemplateName))
		sb.WriteString("        try_files $uri $uri/ /index.html;\n")
		sb.WriteString("    }\n")
		sb.WriteString("\n")
	}

	sb.WriteString("    location / {\n")
	sb.WriteString("        root /var/www/landers/default;\n")
	sb.WriteString("        try_files $uri $uri/ /index.html;\n")
	sb.WriteString("    }\n")
}

// FragmentName returns the conf filename for a domain
func FragmentName(domain string) string {
	return fmt.Sprintf("ld-%s.conf", domain)
}

// ContentHash returns a short content hash, logged alongside publishes
// so operators can match what a host is actually running.
func ContentHash(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))[:12]
}
