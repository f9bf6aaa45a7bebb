// Package provision orchestrates the landing domain lifecycle: DNS
// records, certificate issuance, routing config, tracking registration
// and the compensating cleanup when any fatal step fails.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"landingops/internal/certissuer"
	"landingops/internal/config"
	dnswait "landingops/internal/dns"
	"landingops/internal/dns/cloudflare"
	"landingops/internal/domainutil"
	"landingops/internal/model"
	"landingops/internal/nginx"
	"landingops/internal/tracking"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DNSProvider is the zone/record surface of the Cloudflare client
type DNSProvider interface {
	GetOrCreateZone(ctx context.Context, domain string) (*cloudflare.Zone, error)
	EnsureARecords(ctx context.Context, zoneID, domain, ip string) (*cloudflare.EnsureARecordsResult, error)
	EnsureTrackingCNAME(ctx context.Context, zoneID, domain, target string) (*cloudflare.CNAMEResult, error)
	SetProxied(ctx context.Context, zoneID, domain, originIP string, proxied bool) (int, error)
	SetZoneTLSMode(ctx context.Context, zoneID, mode string) error
	DeleteRecord(ctx context.Context, zoneID, recordID string) error
	DeleteOriginRecords(ctx context.Context, zoneID, domain, originIP string) error
	DeleteTrackingCNAME(ctx context.Context, zoneID, domain string) error
}

// PropagationWaiter blocks until a record is publicly resolvable
type PropagationWaiter interface {
	WaitForA(ctx context.Context, name, expectIP string) error
	WaitForCNAME(ctx context.Context, name, target string) error
}

// Tracker registers domains with the tracking SaaS
type Tracker interface {
	Register(ctx context.Context, domain string) *tracking.Result
	Delete(ctx context.Context, registrationID string) error
}

// CertVerifier probes the live endpoint after issuance
type CertVerifier interface {
	Wait(ctx context.Context, domain string) (*certissuer.VerifyResult, error)
}

// DomainLocker serializes provisioning runs per domain
type DomainLocker interface {
	Acquire(ctx context.Context, domain string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, domain string) error
}

// Options are the static knobs of the orchestrator
type Options struct {
	OriginIP    string
	IssuerMode  string
	EdgeTLSMode string
	CNAMETarget string
	LockTTL     time.Duration
}

// Orchestrator runs the provisioning pipeline
type Orchestrator struct {
	store     Store
	locker    DomainLocker
	provider  DNSProvider
	waiter    PropagationWaiter
	issuer    certissuer.Issuer
	tracker   Tracker
	renderer  *nginx.Renderer
	publisher nginx.Publisher
	verifier  CertVerifier
	opts      Options
}

// NewOrchestrator wires the pipeline's collaborators together
func NewOrchestrator(store Store, locker DomainLocker, provider DNSProvider, waiter PropagationWaiter,
	issuer certissuer.Issuer, tracker Tracker, renderer *nginx.Renderer, publisher nginx.Publisher,
	verifier CertVerifier, opts Options) *Orchestrator {
	if opts.LockTTL == 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Orchestrator{
		store:     store,
		locker:    locker,
		provider:  provider,
		waiter:    waiter,
		issuer:    issuer,
		tracker:   tracker,
		renderer:  renderer,
		publisher: publisher,
		verifier:  verifier,
		opts:      opts,
	}
}

// RouteSpec describes one requested route
type RouteSpec struct {
	PathSegment     string
	TemplateName    string
	OrganizationTag string
	ExternalCallID  *string
	PhoneNumber     *string
	PlatformTag     string
}

// Request describes one provisioning run
type Request struct {
	DomainName      string
	Owner           string
	OrganizationTag string
	ExternalID      string
	PlatformTag     string
	Tags            []string
	Routes          []RouteSpec
}

// Outcome is the result of a successful provisioning run
type Outcome struct {
	Record      *model.LandingDomain
	NameServers []string
	Warnings    []string
	Tracking    *tracking.Result
}

// Provision runs the full pipeline for one domain. Fatal steps (DNS
// records, certificate) roll back everything created in this run; the
// tracking registration and routing publish degrade to warnings.
// Nothing is written to the store until every fatal step succeeded.
func (o *Orchestrator) Provision(ctx context.Context, req Request) (*Outcome, error) {
	// run ID ties together the log lines of one provisioning run
	runID := uuid.NewString()[:8]
	domain := domainutil.Normalize(req.DomainName)
	log.Printf("[Provision] run %s: %s requested by %s", runID, domain, req.Owner)

	if err := o.validate(domain, &req); err != nil {
		return nil, err
	}

	if _, err := o.store.GetByDomain(domain); err == nil {
		return nil, newError(KindConflict, domain, "domain is already provisioned", nil)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, newError(KindInternal, domain, "failed to check existing domain", err)
	}

	if o.locker != nil {
		ok, err := o.locker.Acquire(ctx, domain, o.opts.LockTTL)
		if err != nil {
			// Advisory only: the unique index still guards duplicates
			log.Printf("[Provision] lock acquire failed for %s, continuing: %v", domain, err)
		} else if !ok {
			return nil, newError(KindLocked, domain, "another provisioning run is in progress for this domain", nil)
		} else {
			defer func() {
				if err := o.locker.Release(context.Background(), domain); err != nil {
					log.Printf("[Provision] lock release failed for %s: %v", domain, err)
				}
			}()
		}
	}

	var (
		warnings         []string
		createdRecordIDs []string
		zoneID           string
		fragmentLive     bool
		recPersisted     bool
		rec              *model.LandingDomain
	)

	// rollback undoes everything this run created: the pending record
	// first, then the DNS records, then the routing fragment. The zone
	// itself is kept: zones are reusable and deleting one breaks
	// unrelated records.
	rollback := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if recPersisted {
			if err := o.store.Delete(rec.ID); err != nil {
				log.Printf("[Provision] rollback: failed to delete pending record for %s: %v", domain, err)
			}
		}
		for _, id := range createdRecordIDs {
			if err := o.provider.DeleteRecord(rctx, zoneID, id); err != nil {
				log.Printf("[Provision] rollback: failed to delete record %s for %s: %v", id, domain, err)
			}
		}
		if fragmentLive {
			if err := o.publisher.Remove(rctx, domain); err != nil {
				log.Printf("[Provision] rollback: failed to remove routing config for %s: %v", domain, err)
			}
		}
		log.Printf("[Provision] run %s: rolled back %s (%d records)", runID, domain, len(createdRecordIDs))
	}

	zone, err := o.provider.GetOrCreateZone(ctx, domain)
	if err != nil {
		return nil, o.classifyProvider(domain, "failed to ensure DNS zone", err)
	}
	zoneID = zone.ID
	log.Printf("[Provision] %s: zone %s (status=%s)", domain, zone.ID, zone.Status)

	aRes, err := o.provider.EnsureARecords(ctx, zoneID, domain, o.opts.OriginIP)
	if err != nil {
		rollback()
		return nil, o.classifyProvider(domain, "failed to create origin records", err)
	}
	createdRecordIDs = append(createdRecordIDs, aRes.CreatedIDs...)

	if o.opts.CNAMETarget != "" {
		cnameRes, err := o.provider.EnsureTrackingCNAME(ctx, zoneID, domain, o.opts.CNAMETarget)
		if err != nil {
			rollback()
			return nil, o.classifyProvider(domain, "failed to create tracking record", err)
		}
		if cnameRes.Created {
			createdRecordIDs = append(createdRecordIDs, cnameRes.RecordID)
		}
	}

	routes := buildRoutes(req.Routes, req.Owner)

	// Pending checkpoint: the record exists in the store for the whole
	// duration of the long-running external steps, and the unique index
	// closes the duplicate race before any of them start. Rollback
	// deletes this row.
	rec = &model.LandingDomain{
		DomainName:      domain,
		Owner:           req.Owner,
		OrganizationTag: req.OrganizationTag,
		ExternalID:      req.ExternalID,
		PlatformTag:     req.PlatformTag,
		Tags:            tagsJSON(req.Tags),
		ZoneID:          zoneID,
		OriginIP:        o.opts.OriginIP,
		SSLStatus:       model.SSLStatusPending,
		ProxyStatus:     model.ProxyStatusDisabled,
		Routes:          routes,
	}
	if err := o.store.Create(rec); err != nil {
		rollback()
		if isDuplicateErr(err) {
			return nil, newError(KindConflict, domain, "domain is already provisioned", err)
		}
		return nil, newError(KindInternal, domain, "failed to persist pending domain record", err)
	}
	recPersisted = true

	// certbot answers HTTP-01 through nginx, so the plain-HTTP fragment
	// must be live before issuance
	if o.opts.IssuerMode == config.IssuerCertbot {
		if err := o.publisher.Publish(ctx, domain, o.renderer.RenderHTTP(domain, routes)); err != nil {
			rollback()
			return nil, newError(KindInternal, domain, "failed to publish routing config for issuance", err)
		}
		fragmentLive = true
	}

	if o.opts.IssuerMode != config.IssuerEdge {
		if err := o.waiter.WaitForA(ctx, domain, o.opts.OriginIP); err != nil {
			rollback()
			var te *dnswait.TimeoutError
			if errors.As(err, &te) {
				msg := fmt.Sprintf("DNS did not propagate; verify the registrar delegates to: %s", strings.Join(zone.NameServers, ", "))
				return nil, newError(KindTimeout, domain, msg, err)
			}
			return nil, newError(KindInternal, domain, "DNS propagation check failed", err)
		}
	}

	issueRes, err := o.issuer.Issue(ctx, domain)
	if err != nil {
		rollback()
		if errors.Is(err, certissuer.ErrRateLimited) {
			return nil, newError(KindIssuer, domain, "certificate authority rate limit reached, do not retry immediately", err)
		}
		return nil, newError(KindIssuer, domain, "certificate issuance failed", err)
	}

	sslStatus := model.SSLStatusActive
	var activatedAt *time.Time
	if issueRes.Status == certissuer.StatusSkipped {
		sslStatus = model.SSLStatusEdge
	} else {
		// The cert must actually serve before traffic is proxied to the
		// origin. A handshake that never checks out is as fatal as a
		// failed issuance.
		if o.verifier != nil {
			vres, err := o.verifier.Wait(ctx, domain)
			if err != nil {
				rollback()
				return nil, newError(KindIssuer, domain, "certificate verification failed", err)
			}
			log.Printf("[Provision] %s: certificate verified (issuer=%s, expires=%s)", domain, vres.Issuer, vres.NotAfter.Format(time.RFC3339))
		}
		now := time.Now()
		activatedAt = &now
	}

	n, err := o.provider.SetProxied(ctx, zoneID, domain, o.opts.OriginIP, true)
	if err != nil {
		rollback()
		return nil, o.classifyProvider(domain, "failed to enable edge proxy", err)
	}
	log.Printf("[Provision] %s: proxied %d records", domain, n)

	if sslStatus == model.SSLStatusEdge && o.opts.EdgeTLSMode != "" {
		if err := o.provider.SetZoneTLSMode(ctx, zoneID, o.opts.EdgeTLSMode); err != nil {
			warnings = append(warnings, fmt.Sprintf("edge TLS mode not set: %v", err))
		}
	}

	// Final routing config. Non-fatal from here on: the domain works
	// without it and a republish can be triggered via the routes API.
	finalFragment := o.renderer.RenderHTTPS(domain, routes)
	if sslStatus == model.SSLStatusEdge {
		finalFragment = o.renderer.RenderHTTP(domain, routes)
	}
	if err := o.publisher.Publish(ctx, domain, finalFragment); err != nil {
		warnings = append(warnings, fmt.Sprintf("routing config not published: %v", err))
	} else {
		fragmentLive = true
	}

	// The SaaS validates DNS on its side, so registration waits until
	// the tracking CNAME is publicly visible. Like registration itself,
	// a wait timeout degrades to a skip.
	var trackRes *tracking.Result
	if o.opts.CNAMETarget != "" {
		trackingName := cloudflare.TrackingName(domain)
		if err := o.waiter.WaitForCNAME(ctx, trackingName, o.opts.CNAMETarget); err != nil {
			trackRes = &tracking.Result{Status: tracking.StatusSkipped, Reason: fmt.Sprintf("%s not publicly resolvable: %v", trackingName, err)}
		} else {
			trackRes = o.tracker.Register(ctx, domain)
		}
	} else {
		trackRes = o.tracker.Register(ctx, domain)
	}
	if trackRes.Status == tracking.StatusSkipped && trackRes.Reason != "" {
		warnings = append(warnings, "tracking registration skipped: "+trackRes.Reason)
	}

	// Commit: one write flips the pending row to its final state
	rec.SSLStatus = sslStatus
	rec.ProxyStatus = model.ProxyStatusEnabled
	rec.SSLActivatedAt = activatedAt
	if trackRes.Status == tracking.StatusRegistered {
		rec.TrackingID = &trackRes.ID
		rec.TrackingDomain = &trackRes.DomainName
	}
	if err := o.store.Update(rec); err != nil {
		rollback()
		return nil, newError(KindInternal, domain, "failed to finalize domain record", err)
	}

	log.Printf("[Provision] run %s: %s provisioned (ssl=%s warnings=%d)", runID, domain, sslStatus, len(warnings))
	return &Outcome{
		Record:      rec,
		NameServers: zone.NameServers,
		Warnings:    warnings,
		Tracking:    trackRes,
	}, nil
}

// CleanupStep records one step of the deprovisioning sweep
type CleanupStep struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// CleanupSummary reports what Delete managed to undo
type CleanupSummary struct {
	Domain string        `json:"domain"`
	Steps  []CleanupStep `json:"steps"`
}

// Delete deprovisions a domain: external resources first, best-effort
// with a per-step summary, then the database row.
func (o *Orchestrator) Delete(ctx context.Context, domainName string) (*CleanupSummary, error) {
	domain := domainutil.Normalize(domainName)

	rec, err := o.store.GetByDomain(domain)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindNotFound, domain, "domain not found", nil)
	}
	if err != nil {
		return nil, newError(KindInternal, domain, "failed to load domain", err)
	}

	summary := &CleanupSummary{Domain: domain}
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			log.Printf("[Provision] cleanup %s failed for %s: %v", name, domain, err)
			summary.Steps = append(summary.Steps, CleanupStep{Step: name, Status: "failed", Detail: err.Error()})
			return
		}
		summary.Steps = append(summary.Steps, CleanupStep{Step: name, Status: "ok"})
	}

	step("routing-config", func() error {
		return o.publisher.Remove(ctx, domain)
	})
	step("origin-records", func() error {
		return o.provider.DeleteOriginRecords(ctx, rec.ZoneID, domain, rec.OriginIP)
	})
	step("tracking-record", func() error {
		return o.provider.DeleteTrackingCNAME(ctx, rec.ZoneID, domain)
	})
	step("tracking-registration", func() error {
		if rec.TrackingID == nil {
			return nil
		}
		return o.tracker.Delete(ctx, *rec.TrackingID)
	})

	if err := o.store.Delete(rec.ID); err != nil {
		return summary, newError(KindInternal, domain, "failed to delete domain record", err)
	}
	summary.Steps = append(summary.Steps, CleanupStep{Step: "database", Status: "ok"})

	log.Printf("[Provision] %s: deprovisioned", domain)
	return summary, nil
}

// RequestSSL re-runs issuance for an existing domain, typically after
// a failed verification or an expired certificate.
func (o *Orchestrator) RequestSSL(ctx context.Context, domainName string) (*model.LandingDomain, error) {
	domain := domainutil.Normalize(domainName)

	rec, err := o.store.GetByDomain(domain)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindNotFound, domain, "domain not found", nil)
	}
	if err != nil {
		return nil, newError(KindInternal, domain, "failed to load domain", err)
	}
	if rec.SSLStatus == model.SSLStatusEdge {
		return nil, newError(KindValidation, domain, "TLS for this domain terminates at the proxy edge", nil)
	}

	routes, err := o.store.GetRoutes(rec.ID)
	if err != nil {
		return nil, newError(KindInternal, domain, "failed to load routes", err)
	}

	// HTTP-01 needs the challenge location reachable over plain HTTP
	if o.opts.IssuerMode == config.IssuerCertbot {
		if err := o.publisher.Publish(ctx, domain, o.renderer.RenderHTTP(domain, routes)); err != nil {
			return nil, newError(KindInternal, domain, "failed to publish routing config for issuance", err)
		}
	}

	issueRes, err := o.issuer.Issue(ctx, domain)
	if err != nil {
		msg := "certificate issuance failed"
		if errors.Is(err, certissuer.ErrRateLimited) {
			msg = "certificate authority rate limit reached, do not retry immediately"
		}
		if uErr := o.store.UpdateSSL(domain, model.SSLStatusFailed, truncate(err.Error(), 255), nil); uErr != nil {
			log.Printf("[Provision] failed to record issuance failure for %s: %v", domain, uErr)
		}
		return nil, newError(KindIssuer, domain, msg, err)
	}

	if err := o.publisher.Publish(ctx, domain, o.renderer.RenderHTTPS(domain, routes)); err != nil {
		log.Printf("[Provision] routing config republish failed for %s: %v", domain, err)
	}

	if o.verifier != nil {
		if _, err := o.verifier.Wait(ctx, domain); err != nil {
			if uErr := o.store.UpdateSSL(domain, model.SSLStatusFailed, truncate(err.Error(), 255), nil); uErr != nil {
				log.Printf("[Provision] failed to record verification failure for %s: %v", domain, uErr)
			}
			return nil, newError(KindIssuer, domain, "certificate verification failed", err)
		}
	}

	now := time.Now()
	if err := o.store.UpdateSSL(domain, model.SSLStatusActive, "", &now); err != nil {
		return nil, newError(KindInternal, domain, "failed to update domain record", err)
	}

	log.Printf("[Provision] %s: certificate renewed (%s)", domain, issueRes.Status)
	return o.store.GetByDomain(domain)
}

// AddRoute creates a route under an existing domain and republishes
// the routing config. Only the domain owner (or an admin) may add.
func (o *Orchestrator) AddRoute(ctx context.Context, domainName string, spec RouteSpec, actor string, isAdmin bool) (*model.Route, []string, error) {
	domain := domainutil.Normalize(domainName)

	rec, err := o.store.GetByDomain(domain)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, newError(KindNotFound, domain, "domain not found", nil)
	}
	if err != nil {
		return nil, nil, newError(KindInternal, domain, "failed to load domain", err)
	}
	if !isAdmin && rec.Owner != actor {
		return nil, nil, newError(KindForbidden, domain, "only the domain owner can manage routes", nil)
	}

	path := domainutil.NormalizePath(spec.PathSegment)
	if path == "" {
		return nil, nil, newError(KindValidation, domain, "pathSegment is required", nil)
	}
	if spec.TemplateName == "" {
		return nil, nil, newError(KindValidation, domain, "templateName is required", nil)
	}
	if !model.ValidOrganization(spec.OrganizationTag) {
		return nil, nil, newError(KindValidation, domain, "invalid organizationTag: "+spec.OrganizationTag, nil)
	}

	existing, err := o.store.GetRoutes(rec.ID)
	if err != nil {
		return nil, nil, newError(KindInternal, domain, "failed to load routes", err)
	}
	for _, r := range existing {
		if r.PathSegment == path {
			return nil, nil, newError(KindConflict, domain, "route path already exists: "+path, nil)
		}
	}

	route := &model.Route{
		LandingDomainID: rec.ID,
		PathSegment:     path,
		TemplateName:    spec.TemplateName,
		OrganizationTag: spec.OrganizationTag,
		ExternalCallID:  spec.ExternalCallID,
		PhoneNumber:     spec.PhoneNumber,
		Creator:         actor,
		PlatformTag:     spec.PlatformTag,
	}
	if err := o.store.CreateRoute(route); err != nil {
		if isDuplicateErr(err) {
			return nil, nil, newError(KindConflict, domain, "route path already exists: "+path, err)
		}
		return nil, nil, newError(KindInternal, domain, "failed to create route", err)
	}

	var warnings []string
	if err := o.republish(ctx, rec); err != nil {
		warnings = append(warnings, fmt.Sprintf("routing config not republished: %v", err))
	}

	return route, warnings, nil
}

// UpdateRoute replaces the mutable fields of an existing route and
// republishes the routing config. The path itself is the route's
// identity and cannot change.
func (o *Orchestrator) UpdateRoute(ctx context.Context, domainName, pathSegment string, spec RouteSpec, actor string, isAdmin bool) (*model.Route, []string, error) {
	domain := domainutil.Normalize(domainName)

	rec, err := o.store.GetByDomain(domain)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, newError(KindNotFound, domain, "domain not found", nil)
	}
	if err != nil {
		return nil, nil, newError(KindInternal, domain, "failed to load domain", err)
	}
	if !isAdmin && rec.Owner != actor {
		return nil, nil, newError(KindForbidden, domain, "only the domain owner can manage routes", nil)
	}

	if spec.TemplateName == "" {
		return nil, nil, newError(KindValidation, domain, "templateName is required", nil)
	}
	if !model.ValidOrganization(spec.OrganizationTag) {
		return nil, nil, newError(KindValidation, domain, "invalid organizationTag: "+spec.OrganizationTag, nil)
	}

	path := domainutil.NormalizePath(pathSegment)
	routes, err := o.store.GetRoutes(rec.ID)
	if err != nil {
		return nil, nil, newError(KindInternal, domain, "failed to load routes", err)
	}

	var route *model.Route
	for i := range routes {
		if routes[i].PathSegment == path {
			route = &routes[i]
			break
		}
	}
	if route == nil {
		return nil, nil, newError(KindNotFound, domain, "route not found: "+path, nil)
	}

	route.TemplateName = spec.TemplateName
	route.OrganizationTag = spec.OrganizationTag
	route.ExternalCallID = spec.ExternalCallID
	route.PhoneNumber = spec.PhoneNumber
	route.PlatformTag = spec.PlatformTag
	if err := o.store.UpdateRoute(route); err != nil {
		return nil, nil, newError(KindInternal, domain, "failed to update route", err)
	}

	var warnings []string
	if err := o.republish(ctx, rec); err != nil {
		warnings = append(warnings, fmt.Sprintf("routing config not republished: %v", err))
	}
	return route, warnings, nil
}

// RemoveRoute deletes a route and republishes the routing config
func (o *Orchestrator) RemoveRoute(ctx context.Context, domainName, pathSegment, actor string, isAdmin bool) ([]string, error) {
	domain := domainutil.Normalize(domainName)

	rec, err := o.store.GetByDomain(domain)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindNotFound, domain, "domain not found", nil)
	}
	if err != nil {
		return nil, newError(KindInternal, domain, "failed to load domain", err)
	}
	if !isAdmin && rec.Owner != actor {
		return nil, newError(KindForbidden, domain, "only the domain owner can manage routes", nil)
	}

	path := domainutil.NormalizePath(pathSegment)
	affected, err := o.store.DeleteRoute(rec.ID, path)
	if err != nil {
		return nil, newError(KindInternal, domain, "failed to delete route", err)
	}
	if affected == 0 {
		return nil, newError(KindNotFound, domain, "route not found: "+path, nil)
	}

	var warnings []string
	if err := o.republish(ctx, rec); err != nil {
		warnings = append(warnings, fmt.Sprintf("routing config not republished: %v", err))
	}
	return warnings, nil
}

// republish rerenders and pushes the fragment matching the domain's
// current TLS state
func (o *Orchestrator) republish(ctx context.Context, rec *model.LandingDomain) error {
	routes, err := o.store.GetRoutes(rec.ID)
	if err != nil {
		return err
	}

	var content string
	if rec.SSLStatus == model.SSLStatusActive {
		content = o.renderer.RenderHTTPS(rec.DomainName, routes)
	} else {
		content = o.renderer.RenderHTTP(rec.DomainName, routes)
	}
	return o.publisher.Publish(ctx, rec.DomainName, content)
}

func (o *Orchestrator) validate(domain string, req *Request) error {
	if err := domainutil.Validate(domain); err != nil {
		return newError(KindValidation, domain, err.Error(), nil)
	}
	if req.Owner == "" {
		return newError(KindValidation, domain, "owner is required", nil)
	}
	if !model.ValidOrganization(req.OrganizationTag) {
		return newError(KindValidation, domain, "invalid organizationTag: "+req.OrganizationTag, nil)
	}
	if req.PlatformTag != "" && !model.ValidPlatform(req.PlatformTag) {
		return newError(KindValidation, domain, "invalid platformTag: "+req.PlatformTag, nil)
	}

	seen := make(map[string]bool)
	for i := range req.Routes {
		r := &req.Routes[i]
		r.PathSegment = domainutil.NormalizePath(r.PathSegment)
		if r.PathSegment == "" {
			return newError(KindValidation, domain, "route pathSegment is required", nil)
		}
		if r.TemplateName == "" {
			return newError(KindValidation, domain, "route templateName is required", nil)
		}
		if seen[r.PathSegment] {
			return newError(KindValidation, domain, "duplicate route path: "+r.PathSegment, nil)
		}
		seen[r.PathSegment] = true
	}
	return nil
}

// classifyProvider maps Cloudflare client errors onto the provisioning
// error taxonomy
func (o *Orchestrator) classifyProvider(domain, message string, err error) *Error {
	switch {
	case errors.Is(err, cloudflare.ErrAuth):
		return newError(KindAuth, domain, "DNS provider rejected credentials", err)
	case errors.Is(err, cloudflare.ErrRecordConflict):
		return newError(KindConflict, domain, message+": a conflicting record exists and will not be overwritten", err)
	}

	e := newError(KindProvider, domain, message, err)
	var apiErr *cloudflare.APIError
	if errors.As(err, &apiErr) {
		e.Details = apiErr.RawBody
	}
	return e
}

func buildRoutes(specs []RouteSpec, creator string) []model.Route {
	routes := make([]model.Route, 0, len(specs))
	for _, s := range specs {
		routes = append(routes, model.Route{
			PathSegment:     s.PathSegment,
			TemplateName:    s.TemplateName,
			OrganizationTag: s.OrganizationTag,
			ExternalCallID:  s.ExternalCallID,
			PhoneNumber:     s.PhoneNumber,
			Creator:         creator,
			PlatformTag:     s.PlatformTag,
		})
	}
	return routes
}

func tagsJSON(tags []string) datatypes.JSON {
	if len(tags) == 0 {
		return datatypes.JSON([]byte("[]"))
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}

func isDuplicateErr(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "Duplicate entry")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
