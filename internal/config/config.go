package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Issuer modes for certificate provisioning
const (
	IssuerCertbot = "certbot"
	IssuerACME    = "acme"
	IssuerEdge    = "edge"
)

// Config holds all configuration
type Config struct {
	MySQL       MySQLConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Migrate     bool
	HTTPAddr    string
	Cloudflare  CloudflareConfig
	Origin      OriginConfig
	SSH         SSHConfig
	Certbot     CertbotConfig
	ACME        ACMEConfig
	RedTrack    RedTrackConfig
	Nginx       NginxConfig
	Provision   ProvisionConfig
	CertMonitor CertMonitorConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// CloudflareConfig holds Cloudflare API credentials
type CloudflareConfig struct {
	Email     string
	APIToken  string
	AccountID string
}

// OriginConfig identifies the origin server new domains point at
type OriginConfig struct {
	IP string
}

// SSHConfig holds the remote-execution channel to the origin host
type SSHConfig struct {
	Host       string
	Port       int
	User       string
	KeyFile    string
	TimeoutSec int
}

// CertbotConfig holds certbot settings on the origin host
type CertbotConfig struct {
	Email   string
	Webroot string
}

// ACMEConfig holds in-process ACME (lego) settings
type ACMEConfig struct {
	DirectoryURL string
	Email        string
	CertDir      string // where cert/key are installed on the origin host
}

// RedTrackConfig holds tracking SaaS settings
type RedTrackConfig struct {
	BaseURL     string
	APIKey      string
	CNAMETarget string
}

// NginxConfig holds routing-config publisher settings
type NginxConfig struct {
	Mode       string // local | remote
	ConfDir    string
	ReloadCmd  string
	ApplyURL   string
	ApplyToken string
}

// ProvisionConfig holds orchestrator settings
type ProvisionConfig struct {
	Issuer                 string // certbot | acme | edge
	EdgeTLSMode            string // Cloudflare zone ssl setting, e.g. "full"
	PropagationTimeoutSec  int
	PropagationIntervalSec int
	CertTimeoutSec         int
	CertIntervalSec        int
	LockTTLSec             int
}

// CertMonitorConfig holds certificate health monitor configuration
type CertMonitorConfig struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "landingops"),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Cloudflare: CloudflareConfig{
			Email:     getEnv("CF_EMAIL", ""),
			APIToken:  getEnv("CF_API_TOKEN", ""),
			AccountID: getEnv("CF_ACCOUNT_ID", ""),
		},
		Origin: OriginConfig{
			IP: getEnv("ORIGIN_IP", ""),
		},
		SSH: SSHConfig{
			Host:       getEnv("ORIGIN_SSH_HOST", ""),
			Port:       getEnvInt("ORIGIN_SSH_PORT", 22),
			User:       getEnv("ORIGIN_SSH_USER", "root"),
			KeyFile:    getEnv("ORIGIN_SSH_KEY", ""),
			TimeoutSec: getEnvInt("ORIGIN_SSH_TIMEOUT_SEC", 120),
		},
		Certbot: CertbotConfig{
			Email:   getEnv("CERTBOT_EMAIL", ""),
			Webroot: getEnv("CERTBOT_WEBROOT", "/var/www/letsencrypt"),
		},
		ACME: ACMEConfig{
			DirectoryURL: getEnv("ACME_DIRECTORY_URL", "https://acme-v02.api.letsencrypt.org/directory"),
			Email:        getEnv("ACME_EMAIL", ""),
			CertDir:      getEnv("ACME_CERT_DIR", "/etc/ssl/landing"),
		},
		RedTrack: RedTrackConfig{
			BaseURL:     getEnv("REDTRACK_BASE_URL", "https://api.redtrack.io"),
			APIKey:      getEnv("REDTRACK_API_KEY", ""),
			CNAMETarget: getEnv("REDTRACK_CNAME_TARGET", "track.redtrack.io"),
		},
		Nginx: NginxConfig{
			Mode:       getEnv("NGINX_PUBLISH_MODE", "local"),
			ConfDir:    getEnv("NGINX_CONF_DIR", "/etc/nginx/landing.d"),
			ReloadCmd:  getEnv("NGINX_RELOAD_CMD", "nginx -s reload"),
			ApplyURL:   getEnv("NGINX_APPLY_URL", ""),
			ApplyToken: getEnv("NGINX_APPLY_TOKEN", ""),
		},
		Provision: ProvisionConfig{
			Issuer:                 getEnv("CERT_ISSUER", IssuerCertbot),
			EdgeTLSMode:            getEnv("CF_EDGE_TLS_MODE", "full"),
			PropagationTimeoutSec:  getEnvInt("DNS_PROPAGATION_TIMEOUT_SEC", 120),
			PropagationIntervalSec: getEnvInt("DNS_PROPAGATION_INTERVAL_SEC", 5),
			CertTimeoutSec:         getEnvInt("CERT_VERIFY_TIMEOUT_SEC", 300),
			CertIntervalSec:        getEnvInt("CERT_VERIFY_INTERVAL_SEC", 10),
			LockTTLSec:             getEnvInt("PROVISION_LOCK_TTL_SEC", 600),
		},
		CertMonitor: CertMonitorConfig{
			Enabled:     getEnv("CERT_MONITOR_ENABLED", "1") == "1",
			IntervalSec: getEnvInt("CERT_MONITOR_INTERVAL_SEC", 21600),
			BatchSize:   getEnvInt("CERT_MONITOR_BATCH_SIZE", 20),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("MYSQL_DSN is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Provision.Issuer {
	case IssuerCertbot, IssuerACME, IssuerEdge:
	default:
		return fmt.Errorf("CERT_ISSUER must be one of certbot, acme, edge (got %q)", c.Provision.Issuer)
	}
	switch c.Nginx.Mode {
	case "local", "remote":
	default:
		return fmt.Errorf("NGINX_PUBLISH_MODE must be local or remote (got %q)", c.Nginx.Mode)
	}
	if c.Nginx.Mode == "remote" && c.Nginx.ApplyURL == "" {
		return fmt.Errorf("NGINX_APPLY_URL is required in remote publish mode")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Helper function: get value with priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "landingops"),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		Cloudflare: CloudflareConfig{
			Email:     getValue("CF_EMAIL", "cloudflare", "email", ""),
			APIToken:  getValue("CF_API_TOKEN", "cloudflare", "api_token", ""),
			AccountID: getValue("CF_ACCOUNT_ID", "cloudflare", "account_id", ""),
		},
		Origin: OriginConfig{
			IP: getValue("ORIGIN_IP", "origin", "ip", ""),
		},
		SSH: SSHConfig{
			Host:       getValue("ORIGIN_SSH_HOST", "ssh", "host", ""),
			Port:       getValueInt("ORIGIN_SSH_PORT", "ssh", "port", 22),
			User:       getValue("ORIGIN_SSH_USER", "ssh", "user", "root"),
			KeyFile:    getValue("ORIGIN_SSH_KEY", "ssh", "key_file", ""),
			TimeoutSec: getValueInt("ORIGIN_SSH_TIMEOUT_SEC", "ssh", "timeout_sec", 120),
		},
		Certbot: CertbotConfig{
			Email:   getValue("CERTBOT_EMAIL", "certbot", "email", ""),
			Webroot: getValue("CERTBOT_WEBROOT", "certbot", "webroot", "/var/www/letsencrypt"),
		},
		ACME: ACMEConfig{
			DirectoryURL: getValue("ACME_DIRECTORY_URL", "acme", "directory_url", "https://acme-v02.api.letsencrypt.org/directory"),
			Email:        getValue("ACME_EMAIL", "acme", "email", ""),
			CertDir:      getValue("ACME_CERT_DIR", "acme", "cert_dir", "/etc/ssl/landing"),
		},
		RedTrack: RedTrackConfig{
			BaseURL:     getValue("REDTRACK_BASE_URL", "redtrack", "base_url", "https://api.redtrack.io"),
			APIKey:      getValue("REDTRACK_API_KEY", "redtrack", "api_key", ""),
			CNAMETarget: getValue("REDTRACK_CNAME_TARGET", "redtrack", "cname_target", "track.redtrack.io"),
		},
		Nginx: NginxConfig{
			Mode:       getValue("NGINX_PUBLISH_MODE", "nginx", "publish_mode", "local"),
			ConfDir:    getValue("NGINX_CONF_DIR", "nginx", "conf_dir", "/etc/nginx/landing.d"),
			ReloadCmd:  getValue("NGINX_RELOAD_CMD", "nginx", "reload_cmd", "nginx -s reload"),
			ApplyURL:   getValue("NGINX_APPLY_URL", "nginx", "apply_url", ""),
			ApplyToken: getValue("NGINX_APPLY_TOKEN", "nginx", "apply_token", ""),
		},
		Provision: ProvisionConfig{
			Issuer:                 getValue("CERT_ISSUER", "provision", "issuer", IssuerCertbot),
			EdgeTLSMode:            getValue("CF_EDGE_TLS_MODE", "provision", "edge_tls_mode", "full"),
			PropagationTimeoutSec:  getValueInt("DNS_PROPAGATION_TIMEOUT_SEC", "provision", "propagation_timeout_sec", 120),
			PropagationIntervalSec: getValueInt("DNS_PROPAGATION_INTERVAL_SEC", "provision", "propagation_interval_sec", 5),
			CertTimeoutSec:         getValueInt("CERT_VERIFY_TIMEOUT_SEC", "provision", "cert_timeout_sec", 300),
			CertIntervalSec:        getValueInt("CERT_VERIFY_INTERVAL_SEC", "provision", "cert_interval_sec", 10),
			LockTTLSec:             getValueInt("PROVISION_LOCK_TTL_SEC", "provision", "lock_ttl_sec", 600),
		},
		CertMonitor: CertMonitorConfig{
			Enabled:     getValueBool("CERT_MONITOR_ENABLED", "cert_monitor", "enabled", true),
			IntervalSec: getValueInt("CERT_MONITOR_INTERVAL_SEC", "cert_monitor", "interval_sec", 21600),
			BatchSize:   getValueInt("CERT_MONITOR_BATCH_SIZE", "cert_monitor", "batch_size", 20),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
