package main

import (
	"log"
	"time"

	v1 "landingops/api/v1"
	"landingops/internal/auth"
	"landingops/internal/cache"
	"landingops/internal/certissuer"
	"landingops/internal/config"
	"landingops/internal/db"
	dnswait "landingops/internal/dns"
	"landingops/internal/dns/cloudflare"
	"landingops/internal/nginx"
	"landingops/internal/provision"
	"landingops/internal/sshx"
	"landingops/internal/tracking"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	auth.InitJWT(cfg.JWT.Secret)

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.Get()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Println("✓ Database migrated")
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// 4. Wire the provisioning pipeline
	cf := cloudflare.NewClient(cfg.Cloudflare.Email, cfg.Cloudflare.APIToken, cfg.Cloudflare.AccountID)

	runner := sshx.NewClient(sshx.Config{
		Host:    cfg.SSH.Host,
		Port:    cfg.SSH.Port,
		User:    cfg.SSH.User,
		KeyFile: cfg.SSH.KeyFile,
		Timeout: time.Duration(cfg.SSH.TimeoutSec) * time.Second,
	})

	var issuer certissuer.Issuer
	switch cfg.Provision.Issuer {
	case config.IssuerACME:
		issuer = certissuer.NewACMEIssuer(cf, runner, cfg.ACME.DirectoryURL, cfg.ACME.Email, cfg.ACME.CertDir)
	case config.IssuerEdge:
		issuer = certissuer.NewEdgeIssuer()
	default:
		issuer = certissuer.NewCertbotIssuer(runner, cfg.Certbot.Email, cfg.Certbot.Webroot)
	}

	certDir := "/etc/letsencrypt/live"
	if cfg.Provision.Issuer == config.IssuerACME {
		certDir = cfg.ACME.CertDir
	}
	renderer := nginx.NewRenderer(certDir, cfg.Certbot.Webroot)

	var publisher nginx.Publisher
	if cfg.Nginx.Mode == "remote" {
		publisher = nginx.NewRemotePublisher(cfg.Nginx.ApplyURL, cfg.Nginx.ApplyToken)
	} else {
		publisher = nginx.NewSSHPublisher(runner, cfg.Nginx.ConfDir, cfg.Nginx.ReloadCmd)
	}

	waiter := dnswait.NewWaiter(
		time.Duration(cfg.Provision.PropagationTimeoutSec)*time.Second,
		time.Duration(cfg.Provision.PropagationIntervalSec)*time.Second,
	)
	verifier := certissuer.NewVerifier(
		time.Duration(cfg.Provision.CertTimeoutSec)*time.Second,
		time.Duration(cfg.Provision.CertIntervalSec)*time.Second,
	)

	tracker := tracking.NewClient(cfg.RedTrack.BaseURL, cfg.RedTrack.APIKey)
	store := provision.NewGormStore(db.Get())
	locker := cache.NewLocker(cache.Client)

	orch := provision.NewOrchestrator(store, locker, cf, waiter, issuer, tracker, renderer, publisher, verifier,
		provision.Options{
			OriginIP:    cfg.Origin.IP,
			IssuerMode:  cfg.Provision.Issuer,
			EdgeTLSMode: cfg.Provision.EdgeTLSMode,
			CNAMETarget: cfg.RedTrack.CNAMETarget,
			LockTTL:     time.Duration(cfg.Provision.LockTTLSec) * time.Second,
		})

	// 5. Certificate monitor
	if cfg.CertMonitor.Enabled {
		logger := logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		monitor := provision.NewMonitor(&provision.MonitorConfig{
			Store:       store,
			Verifier:    verifier,
			Logger:      logrus.NewEntry(logger),
			IntervalSec: cfg.CertMonitor.IntervalSec,
			BatchSize:   cfg.CertMonitor.BatchSize,
		})
		monitor.Start()
		defer monitor.Stop()
	}

	// 6. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	v1.SetupRouter(r, db.Get(), cfg, orch, store)

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)

	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
