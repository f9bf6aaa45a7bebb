package provision

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"landingops/internal/model"
)

// Monitor periodically re-verifies active domains against their live
// endpoints, catching certificates that expired or were replaced out
// of band. Domains whose certificate no longer checks out are flipped
// to failed so the SSL status API reflects reality.
type Monitor struct {
	ctx         context.Context
	cancel      context.CancelFunc
	store       Store
	verifier    CertVerifier
	logger      *logrus.Entry
	interval    time.Duration
	batchSize   int
	concurrency int
}

// MonitorConfig holds the configuration for the certificate monitor
type MonitorConfig struct {
	Store       Store
	Verifier    CertVerifier
	Logger      *logrus.Entry
	IntervalSec int
	BatchSize   int
	Concurrency int
}

// NewMonitor creates a certificate monitor
func NewMonitor(cfg *MonitorConfig) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.IntervalSec <= 0 {
		cfg.IntervalSec = 21600
	}
	return &Monitor{
		ctx:         ctx,
		cancel:      cancel,
		store:       cfg.Store,
		verifier:    cfg.Verifier,
		logger:      cfg.Logger.WithField("component", "cert-monitor"),
		interval:    time.Duration(cfg.IntervalSec) * time.Second,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}
}

// Start begins the periodic verification sweep
func (m *Monitor) Start() {
	m.logger.Info("Starting certificate monitor...")
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.runSweep()
			case <-m.ctx.Done():
				m.logger.Info("Stopping certificate monitor...")
				return
			}
		}
	}()
}

// Stop gracefully stops the monitor
func (m *Monitor) Stop() {
	m.cancel()
}

func (m *Monitor) runSweep() {
	domains, err := m.store.ListBySSLStatus(model.SSLStatusActive, m.batchSize)
	if err != nil {
		m.logger.Errorf("Failed to fetch domains for verification: %v", err)
		return
	}
	if len(domains) == 0 {
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, m.concurrency)

	for _, domain := range domains {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(d model.LandingDomain) {
			defer wg.Done()
			defer func() { <-semaphore }()
			m.checkDomain(&d)
		}(domain)
	}

	wg.Wait()
}

func (m *Monitor) checkDomain(rec *model.LandingDomain) {
	res, err := m.verifier.Wait(m.ctx, rec.DomainName)
	if err != nil {
		m.logger.Warnf("Certificate check failed for %s: %v", rec.DomainName, err)
		if uErr := m.store.UpdateSSL(rec.DomainName, model.SSLStatusFailed, truncate(err.Error(), 255), nil); uErr != nil {
			m.logger.Errorf("Failed to update %s after failed check: %v", rec.DomainName, uErr)
		}
		return
	}

	m.logger.Debugf("Certificate for %s verified (expires %s)", rec.DomainName, res.NotAfter.Format(time.RFC3339))
}
