package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"landingops/internal/certissuer"
	"landingops/internal/config"
	dnswait "landingops/internal/dns"
	"landingops/internal/dns/cloudflare"
	"landingops/internal/model"
	"landingops/internal/nginx"
	"landingops/internal/tracking"
)

// --- fakes ---

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*model.LandingDomain
	routes  map[int][]model.Route
	nextID  int
	creates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*model.LandingDomain),
		routes:  make(map[int][]model.Route),
	}
}

func (s *fakeStore) GetByDomain(name string) (*model.LandingDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[name]; ok {
		// Return a copy like the gorm-backed store does: callers must not
		// observe later mutations of the orchestrator's own struct.
		c := *rec
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStore) List(filter ListFilter) ([]model.LandingDomain, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LandingDomain
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) Create(rec *model.LandingDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if _, ok := s.records[rec.DomainName]; ok {
		return fmt.Errorf("Error 1062: Duplicate entry '%s'", rec.DomainName)
	}
	s.nextID++
	rec.ID = s.nextID
	s.records[rec.DomainName] = rec
	for _, r := range rec.Routes {
		r.LandingDomainID = rec.ID
		s.routes[rec.ID] = append(s.routes[rec.ID], r)
	}
	return nil
}

func (s *fakeStore) Update(rec *model.LandingDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.DomainName] = rec
	return nil
}

func (s *fakeStore) UpdateSSL(domainName string, status model.SSLStatus, sslError string, activatedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[domainName]
	if !ok {
		return ErrNotFound
	}
	rec.SSLStatus = status
	rec.SSLError = sslError
	if activatedAt != nil {
		rec.SSLActivatedAt = activatedAt
	}
	return nil
}

func (s *fakeStore) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, rec := range s.records {
		if rec.ID == id {
			delete(s.records, name)
			delete(s.routes, id)
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) CreateRoute(route *model.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route.LandingDomainID] = append(s.routes[route.LandingDomainID], *route)
	return nil
}

func (s *fakeStore) UpdateRoute(route *model.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	routes := s.routes[route.LandingDomainID]
	for i, r := range routes {
		if r.PathSegment == route.PathSegment {
			routes[i] = *route
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) DeleteRoute(domainID int, pathSegment string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	routes := s.routes[domainID]
	for i, r := range routes {
		if r.PathSegment == pathSegment {
			s.routes[domainID] = append(routes[:i], routes[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *fakeStore) GetRoutes(domainID int) ([]model.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Route(nil), s.routes[domainID]...), nil
}

func (s *fakeStore) ListBySSLStatus(status model.SSLStatus, limit int) ([]model.LandingDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LandingDomain
	for _, rec := range s.records {
		if rec.SSLStatus == status {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakeProvider struct {
	mu         sync.Mutex
	nextID     int
	existing   map[string]string // record name -> id pre-seeded
	created    []string
	deleted    []string
	calls      []string
	failOn     string
	failErr    error
	tlsModeSet string
	proxied    bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{existing: make(map[string]string)}
}

func (p *fakeProvider) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if p.failOn != "" && strings.HasPrefix(call, p.failOn) {
		if p.failErr != nil {
			return p.failErr
		}
		return fmt.Errorf("injected failure at %s", call)
	}
	return nil
}

func (p *fakeProvider) newID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("rec-%d", p.nextID)
	p.created = append(p.created, id)
	return id
}

func (p *fakeProvider) GetOrCreateZone(ctx context.Context, domain string) (*cloudflare.Zone, error) {
	if err := p.record("zone"); err != nil {
		return nil, err
	}
	return &cloudflare.Zone{
		ID:          "zone-1",
		Name:        domain,
		Status:      "active",
		NameServers: []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"},
	}, nil
}

func (p *fakeProvider) EnsureARecords(ctx context.Context, zoneID, domain, ip string) (*cloudflare.EnsureARecordsResult, error) {
	if err := p.record("a-records"); err != nil {
		return nil, err
	}
	res := &cloudflare.EnsureARecordsResult{}
	for _, name := range []string{domain, "*." + domain} {
		if id, ok := p.existing[name]; ok {
			res.ExistingIDs = append(res.ExistingIDs, id)
			continue
		}
		res.CreatedIDs = append(res.CreatedIDs, p.newID())
	}
	return res, nil
}

func (p *fakeProvider) EnsureTrackingCNAME(ctx context.Context, zoneID, domain, target string) (*cloudflare.CNAMEResult, error) {
	if err := p.record("cname"); err != nil {
		return nil, err
	}
	if id, ok := p.existing["trk."+domain]; ok {
		return &cloudflare.CNAMEResult{RecordID: id, Created: false}, nil
	}
	return &cloudflare.CNAMEResult{RecordID: p.newID(), Created: true}, nil
}

func (p *fakeProvider) SetProxied(ctx context.Context, zoneID, domain, originIP string, proxied bool) (int, error) {
	if err := p.record("proxy"); err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.proxied = proxied
	p.mu.Unlock()
	return 3, nil
}

func (p *fakeProvider) SetZoneTLSMode(ctx context.Context, zoneID, mode string) error {
	if err := p.record("tls-mode"); err != nil {
		return err
	}
	p.mu.Lock()
	p.tlsModeSet = mode
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	if err := p.record("delete-record"); err != nil {
		return err
	}
	p.mu.Lock()
	p.deleted = append(p.deleted, recordID)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) DeleteOriginRecords(ctx context.Context, zoneID, domain, originIP string) error {
	return p.record("delete-origin")
}

func (p *fakeProvider) DeleteTrackingCNAME(ctx context.Context, zoneID, domain string) error {
	return p.record("delete-cname")
}

type fakeWaiter struct {
	err      error
	cnameErr error
	onWait   func()
}

func (w *fakeWaiter) WaitForA(ctx context.Context, name, expectIP string) error {
	if w.onWait != nil {
		w.onWait()
	}
	return w.err
}

func (w *fakeWaiter) WaitForCNAME(ctx context.Context, name, target string) error {
	return w.cnameErr
}

type fakeVerifier struct {
	err   error
	calls int
}

func (v *fakeVerifier) Wait(ctx context.Context, domain string) (*certissuer.VerifyResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return &certissuer.VerifyResult{Issuer: "Fake CA", NotAfter: time.Now().Add(80 * 24 * time.Hour)}, nil
}

type fakeIssuer struct {
	result *certissuer.Result
	err    error
	calls  int
}

func (i *fakeIssuer) Issue(ctx context.Context, domain string) (*certissuer.Result, error) {
	i.calls++
	if i.err != nil {
		return nil, i.err
	}
	if i.result != nil {
		return i.result, nil
	}
	return &certissuer.Result{Status: certissuer.StatusIssued}, nil
}

type fakeTracker struct {
	result  *tracking.Result
	deleted []string
	calls   int
}

func (t *fakeTracker) Register(ctx context.Context, domain string) *tracking.Result {
	t.calls++
	if t.result != nil {
		return t.result
	}
	return &tracking.Result{Status: tracking.StatusRegistered, ID: "rt-1", DomainName: "trk." + domain}
}

func (t *fakeTracker) Delete(ctx context.Context, registrationID string) error {
	t.deleted = append(t.deleted, registrationID)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[string]string
	removed   []string
	failPub   bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string]string)}
}

func (p *fakePublisher) Publish(ctx context.Context, domain, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPub {
		return fmt.Errorf("reload failed")
	}
	p.published[domain] = content
	return nil
}

func (p *fakePublisher) Remove(ctx context.Context, domain string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, domain)
	delete(p.published, domain)
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	acquired []string
	released []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]bool)} }

func (l *fakeLocker) Acquire(ctx context.Context, domain string, ttl time.Duration) (bool, error) {
	if l.held[domain] {
		return false, nil
	}
	l.held[domain] = true
	l.acquired = append(l.acquired, domain)
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, domain string) error {
	delete(l.held, domain)
	l.released = append(l.released, domain)
	return nil
}

// --- harness ---

type harness struct {
	store     *fakeStore
	locker    *fakeLocker
	provider  *fakeProvider
	waiter    *fakeWaiter
	issuer    *fakeIssuer
	tracker   *fakeTracker
	publisher *fakePublisher
	verifier  *fakeVerifier
	orch      *Orchestrator
}

func newHarness(issuerMode string) *harness {
	h := &harness{
		store:     newFakeStore(),
		locker:    newFakeLocker(),
		provider:  newFakeProvider(),
		waiter:    &fakeWaiter{},
		issuer:    &fakeIssuer{},
		tracker:   &fakeTracker{},
		publisher: newFakePublisher(),
		verifier:  &fakeVerifier{},
	}
	h.orch = NewOrchestrator(
		h.store, h.locker, h.provider, h.waiter, h.issuer, h.tracker,
		nginx.NewRenderer("/etc/letsencrypt/live", "/var/www/letsencrypt"),
		h.publisher, h.verifier,
		Options{
			OriginIP:    "10.0.0.1",
			IssuerMode:  issuerMode,
			EdgeTLSMode: "full",
			CNAMETarget: "track.vendor.net",
			LockTTL:     time.Minute,
		},
	)
	return h
}

func baseRequest() Request {
	return Request{
		DomainName:      "Shop.Example.COM",
		Owner:           "alice",
		OrganizationTag: "media",
		PlatformTag:     "Google",
		Tags:            []string{"q3-campaign"},
		Routes: []RouteSpec{
			{PathSegment: "promo", TemplateName: "summer-sale"},
		},
	}
}

// --- tests ---

func TestProvision_Success(t *testing.T) {
	h := newHarness(config.IssuerCertbot)

	out, err := h.orch.Provision(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	rec := out.Record
	if rec.DomainName != "shop.example.com" {
		t.Errorf("domain not normalized: %s", rec.DomainName)
	}
	if rec.SSLStatus != model.SSLStatusActive {
		t.Errorf("expected sslStatus active, got %s", rec.SSLStatus)
	}
	if rec.ProxyStatus != model.ProxyStatusEnabled {
		t.Errorf("expected proxyStatus enabled, got %s", rec.ProxyStatus)
	}
	if rec.SSLActivatedAt == nil {
		t.Error("sslActivatedAt not set")
	}
	if rec.TrackingID == nil || *rec.TrackingID != "rt-1" {
		t.Errorf("tracking registration not recorded: %v", rec.TrackingID)
	}
	if len(out.NameServers) != 2 {
		t.Errorf("nameservers not surfaced: %v", out.NameServers)
	}
	if h.verifier.calls != 1 {
		t.Errorf("expected 1 verification before proxy enable, got %d", h.verifier.calls)
	}

	// Final fragment is the HTTPS one
	frag := h.publisher.published["shop.example.com"]
	if !strings.Contains(frag, "listen 443 ssl;") {
		t.Errorf("final fragment is not HTTPS:\n%s", frag)
	}
	if !strings.Contains(frag, "location /promo/") {
		t.Errorf("route missing from fragment:\n%s", frag)
	}

	// Lock released after the run
	if len(h.locker.released) != 1 {
		t.Errorf("lock not released: %v", h.locker.released)
	}
}

func TestProvision_DuplicateDomainConflict(t *testing.T) {
	h := newHarness(config.IssuerCertbot)

	if _, err := h.orch.Provision(context.Background(), baseRequest()); err != nil {
		t.Fatalf("first Provision failed: %v", err)
	}

	_, err := h.orch.Provision(context.Background(), baseRequest())
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestProvision_ValidationRejectsBadInput(t *testing.T) {
	h := newHarness(config.IssuerCertbot)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"bad domain", func(r *Request) { r.DomainName = "https://shop.example.com" }},
		{"missing owner", func(r *Request) { r.Owner = "" }},
		{"bad organization", func(r *Request) { r.OrganizationTag = "warehouse" }},
		{"bad platform", func(r *Request) { r.PlatformTag = "MySpace" }},
		{"duplicate route path", func(r *Request) {
			r.Routes = append(r.Routes, RouteSpec{PathSegment: "promo", TemplateName: "other"})
		}},
		{"route without template", func(r *Request) {
			r.Routes = []RouteSpec{{PathSegment: "promo"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := h.orch.Provision(context.Background(), req)
			var pErr *Error
			if !errors.As(err, &pErr) || pErr.Kind != KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			// Nothing may have been attempted
			if len(h.provider.calls) != 0 {
				t.Errorf("provider touched on invalid input: %v", h.provider.calls)
			}
		})
	}
}

func TestProvision_CertFailureRollsBack(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.issuer.err = fmt.Errorf("challenge failed")

	_, err := h.orch.Provision(context.Background(), baseRequest())
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindIssuer {
		t.Fatalf("expected issuer error, got %v", err)
	}

	// Every record created in this run deleted, by ID
	if len(h.provider.deleted) != len(h.provider.created) {
		t.Errorf("rollback incomplete: created %v, deleted %v", h.provider.created, h.provider.deleted)
	}

	// Pre-issuance fragment removed
	if len(h.publisher.removed) != 1 {
		t.Errorf("routing config not removed on rollback: %v", h.publisher.removed)
	}

	// The pending checkpoint was written, then removed by rollback
	if h.store.creates != 1 {
		t.Errorf("expected exactly 1 pending insert, got %d", h.store.creates)
	}
	if _, err := h.store.GetByDomain("shop.example.com"); !errors.Is(err, ErrNotFound) {
		t.Error("record persisted despite failure")
	}
}

func TestProvision_RollbackSparesPreexistingRecords(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.provider.existing["shop.example.com"] = "pre-root"
	h.provider.existing["trk.shop.example.com"] = "pre-trk"
	h.issuer.err = fmt.Errorf("challenge failed")

	_, err := h.orch.Provision(context.Background(), baseRequest())
	if err == nil {
		t.Fatal("expected failure")
	}

	for _, id := range h.provider.deleted {
		if id == "pre-root" || id == "pre-trk" {
			t.Errorf("pre-existing record %s deleted during rollback", id)
		}
	}
	// Only the wildcard was created, only it is deleted
	if len(h.provider.deleted) != 1 {
		t.Errorf("expected exactly 1 deletion, got %v", h.provider.deleted)
	}
}

func TestProvision_PropagationTimeout(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.waiter.err = &dnswait.TimeoutError{Name: "shop.example.com", Waited: 2 * time.Minute}

	_, err := h.orch.Provision(context.Background(), baseRequest())
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !strings.Contains(pErr.Message, "ada.ns.cloudflare.com") {
		t.Errorf("nameserver guidance missing from message: %s", pErr.Message)
	}
	if h.issuer.calls != 0 {
		t.Error("issuance attempted despite propagation timeout")
	}
	if len(h.provider.deleted) == 0 {
		t.Error("records not rolled back after timeout")
	}
}

func TestProvision_PendingRecordVisibleDuringWait(t *testing.T) {
	h := newHarness(config.IssuerCertbot)

	var seen *model.LandingDomain
	h.waiter.onWait = func() {
		rec, err := h.store.GetByDomain("shop.example.com")
		if err != nil {
			t.Errorf("no record in store during propagation wait: %v", err)
			return
		}
		seen = rec
	}

	if _, err := h.orch.Provision(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if seen == nil {
		t.Fatal("propagation wait never observed the store")
	}
	if seen.SSLStatus != model.SSLStatusPending {
		t.Errorf("checkpoint sslStatus = %s, want pending", seen.SSLStatus)
	}
	if seen.ProxyStatus != model.ProxyStatusDisabled {
		t.Errorf("checkpoint proxyStatus = %s, want disabled", seen.ProxyStatus)
	}
}

func TestProvision_VerifyFailureRollsBack(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.verifier.err = fmt.Errorf("handshake timeout")

	_, err := h.orch.Provision(context.Background(), baseRequest())
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindIssuer {
		t.Fatalf("expected issuer error, got %v", err)
	}

	// Proxy must never have been enabled for an unverified certificate
	for _, call := range h.provider.calls {
		if call == "proxy" {
			t.Error("proxy enabled despite failed verification")
		}
	}
	if len(h.provider.deleted) != len(h.provider.created) {
		t.Errorf("rollback incomplete: created %v, deleted %v", h.provider.created, h.provider.deleted)
	}
	if _, err := h.store.GetByDomain("shop.example.com"); !errors.Is(err, ErrNotFound) {
		t.Error("record persisted despite failed verification")
	}
}

func TestProvision_ProxyEnableFailureRollsBack(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.provider.failOn = "proxy"

	_, err := h.orch.Provision(context.Background(), baseRequest())
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindProvider {
		t.Fatalf("expected provider error, got %v", err)
	}

	if len(h.provider.deleted) != len(h.provider.created) {
		t.Errorf("rollback incomplete: created %v, deleted %v", h.provider.created, h.provider.deleted)
	}
	if _, err := h.store.GetByDomain("shop.example.com"); !errors.Is(err, ErrNotFound) {
		t.Error("record committed with proxy disabled")
	}
}

func TestProvision_TrackingWaitTimeoutSkipsRegistration(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.waiter.cnameErr = &dnswait.TimeoutError{Name: "trk.shop.example.com", Waited: 2 * time.Minute}

	out, err := h.orch.Provision(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if h.tracker.calls != 0 {
		t.Error("registration attempted before the tracking CNAME was resolvable")
	}
	if out.Record.TrackingID != nil {
		t.Error("tracking fields must stay empty on skip")
	}
	found := false
	for _, w := range out.Warnings {
		if strings.Contains(w, "trk.shop.example.com") {
			found = true
		}
	}
	if !found {
		t.Errorf("skip reason not surfaced in warnings: %v", out.Warnings)
	}
}

func TestProvision_TrackingFailureDoesNotBlock(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.tracker.result = &tracking.Result{Status: tracking.StatusSkipped, Reason: "tracking SaaS unreachable"}

	out, err := h.orch.Provision(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if out.Record.TrackingID != nil {
		t.Error("tracking fields must stay empty on skip")
	}
	found := false
	for _, w := range out.Warnings {
		if strings.Contains(w, "tracking registration skipped") {
			found = true
		}
	}
	if !found {
		t.Errorf("skip reason not surfaced in warnings: %v", out.Warnings)
	}
}

func TestProvision_PublishFailureIsWarning(t *testing.T) {
	h := newHarness(config.IssuerACME)
	h.publisher.failPub = true

	out, err := h.orch.Provision(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Provision must succeed despite publish failure: %v", err)
	}
	if len(out.Warnings) == 0 {
		t.Error("publish failure not reported as warning")
	}
}

func TestProvision_EdgeModeSkipsIssuance(t *testing.T) {
	h := newHarness(config.IssuerEdge)
	h.issuer.result = &certissuer.Result{Status: certissuer.StatusSkipped}

	out, err := h.orch.Provision(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if out.Record.SSLStatus != model.SSLStatusEdge {
		t.Errorf("expected cf-universal, got %s", out.Record.SSLStatus)
	}
	if out.Record.SSLActivatedAt != nil {
		t.Error("sslActivatedAt must be empty for edge-terminated TLS")
	}
	if h.verifier.calls != 0 {
		t.Error("origin certificate verification attempted in edge mode")
	}
	if h.provider.tlsModeSet != "full" {
		t.Errorf("edge TLS mode not applied: %q", h.provider.tlsModeSet)
	}

	// Origin serves plain HTTP behind the edge
	frag := h.publisher.published["shop.example.com"]
	if strings.Contains(frag, "listen 443") {
		t.Errorf("edge mode fragment must be HTTP only:\n%s", frag)
	}
}

func TestProvision_LockedDomainRejected(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.locker.held["shop.example.com"] = true

	_, err := h.orch.Provision(context.Background(), baseRequest())
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindLocked {
		t.Fatalf("expected locked error, got %v", err)
	}
}

func TestProvision_ProviderAuthError(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.provider.failOn = "zone"
	h.provider.failErr = fmt.Errorf("%w: status 403", cloudflare.ErrAuth)

	_, err := h.orch.Provision(context.Background(), baseRequest())
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindAuth {
		t.Fatalf("expected provider-auth error, got %v", err)
	}
}

func TestProvision_TrackingCNAMEConflict(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	h.provider.failOn = "cname"
	h.provider.failErr = fmt.Errorf("%w: A 203.0.113.5 at trk.shop.example.com", cloudflare.ErrRecordConflict)

	_, err := h.orch.Provision(context.Background(), baseRequest())
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
	// A records created before the conflict are rolled back
	if len(h.provider.deleted) != 2 {
		t.Errorf("expected 2 rolled-back records, got %v", h.provider.deleted)
	}
}

func TestDelete_CleanupSummary(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	if _, err := h.orch.Provision(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	summary, err := h.orch.Delete(context.Background(), "shop.example.com")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	steps := make(map[string]string)
	for _, s := range summary.Steps {
		steps[s.Step] = s.Status
	}
	for _, want := range []string{"routing-config", "origin-records", "tracking-record", "tracking-registration", "database"} {
		if steps[want] != "ok" {
			t.Errorf("step %s not ok: %v", want, summary.Steps)
		}
	}

	if len(h.tracker.deleted) != 1 || h.tracker.deleted[0] != "rt-1" {
		t.Errorf("tracking registration not deleted: %v", h.tracker.deleted)
	}
	if _, err := h.store.GetByDomain("shop.example.com"); !errors.Is(err, ErrNotFound) {
		t.Error("record still present after delete")
	}
}

func TestDelete_NotFound(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	_, err := h.orch.Delete(context.Background(), "missing.example.com")
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestAddRoute_OwnershipAndUniqueness(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	if _, err := h.orch.Provision(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	t.Run("non-owner rejected", func(t *testing.T) {
		_, _, err := h.orch.AddRoute(context.Background(), "shop.example.com",
			RouteSpec{PathSegment: "vip", TemplateName: "vip"}, "mallory", false)
		var pErr *Error
		if !errors.As(err, &pErr) || pErr.Kind != KindForbidden {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})

	t.Run("duplicate path rejected", func(t *testing.T) {
		_, _, err := h.orch.AddRoute(context.Background(), "shop.example.com",
			RouteSpec{PathSegment: "/Promo/", TemplateName: "other"}, "alice", false)
		var pErr *Error
		if !errors.As(err, &pErr) || pErr.Kind != KindConflict {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("admin can add", func(t *testing.T) {
		route, warnings, err := h.orch.AddRoute(context.Background(), "shop.example.com",
			RouteSpec{PathSegment: "vip", TemplateName: "vip-lander"}, "admin", true)
		if err != nil {
			t.Fatalf("AddRoute failed: %v", err)
		}
		if len(warnings) != 0 {
			t.Errorf("unexpected warnings: %v", warnings)
		}
		if route.Creator != "admin" {
			t.Errorf("creator not recorded: %s", route.Creator)
		}

		// Fragment republished with the new route
		frag := h.publisher.published["shop.example.com"]
		if !strings.Contains(frag, "location /vip/") {
			t.Errorf("new route missing from republished fragment:\n%s", frag)
		}
	})
}

func TestUpdateRoute(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	if _, err := h.orch.Provision(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	t.Run("non-owner rejected", func(t *testing.T) {
		_, _, err := h.orch.UpdateRoute(context.Background(), "shop.example.com", "promo",
			RouteSpec{TemplateName: "winter-sale"}, "mallory", false)
		var pErr *Error
		if !errors.As(err, &pErr) || pErr.Kind != KindForbidden {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		_, _, err := h.orch.UpdateRoute(context.Background(), "shop.example.com", "nope",
			RouteSpec{TemplateName: "winter-sale"}, "alice", false)
		var pErr *Error
		if !errors.As(err, &pErr) || pErr.Kind != KindNotFound {
			t.Fatalf("expected not-found, got %v", err)
		}
	})

	t.Run("template replaced and republished", func(t *testing.T) {
		route, _, err := h.orch.UpdateRoute(context.Background(), "shop.example.com", "/Promo/",
			RouteSpec{TemplateName: "winter-sale"}, "alice", false)
		if err != nil {
			t.Fatalf("UpdateRoute failed: %v", err)
		}
		if route.TemplateName != "winter-sale" {
			t.Errorf("template not updated: %s", route.TemplateName)
		}

		frag := h.publisher.published["shop.example.com"]
		if !strings.Contains(frag, "root /var/www/landers/winter-sale;") {
			t.Errorf("updated template missing from fragment:\n%s", frag)
		}
	})
}

func TestRemoveRoute(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	if _, err := h.orch.Provision(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if _, err := h.orch.RemoveRoute(context.Background(), "shop.example.com", "promo", "alice", false); err != nil {
		t.Fatalf("RemoveRoute failed: %v", err)
	}

	frag := h.publisher.published["shop.example.com"]
	if strings.Contains(frag, "location /promo/") {
		t.Errorf("removed route still in fragment:\n%s", frag)
	}

	_, err := h.orch.RemoveRoute(context.Background(), "shop.example.com", "promo", "alice", false)
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindNotFound {
		t.Fatalf("expected not-found for repeat removal, got %v", err)
	}
}

func TestRequestSSL(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	if _, err := h.orch.Provision(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	// Simulate a failed verification
	if err := h.store.UpdateSSL("shop.example.com", model.SSLStatusFailed, "handshake timeout", nil); err != nil {
		t.Fatal(err)
	}

	rec, err := h.orch.RequestSSL(context.Background(), "shop.example.com")
	if err != nil {
		t.Fatalf("RequestSSL failed: %v", err)
	}
	if rec.SSLStatus != model.SSLStatusActive {
		t.Errorf("expected active after reissue, got %s", rec.SSLStatus)
	}
	if rec.SSLError != "" {
		t.Errorf("stale error not cleared: %s", rec.SSLError)
	}
}

func TestRequestSSL_FailureRecorded(t *testing.T) {
	h := newHarness(config.IssuerCertbot)
	if _, err := h.orch.Provision(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	h.issuer.err = certissuer.ErrRateLimited
	_, err := h.orch.RequestSSL(context.Background(), "shop.example.com")
	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindIssuer {
		t.Fatalf("expected issuer error, got %v", err)
	}

	rec, _ := h.store.GetByDomain("shop.example.com")
	if rec.SSLStatus != model.SSLStatusFailed {
		t.Errorf("failure not recorded, status %s", rec.SSLStatus)
	}
}
