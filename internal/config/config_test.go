package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Setenv("JWT_SECRET", "test-secret")
	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN == "" {
		t.Error("MySQL DSN should not be empty")
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}

	if cfg.Provision.Issuer != IssuerCertbot {
		t.Errorf("Expected default issuer certbot, got %s", cfg.Provision.Issuer)
	}

	if cfg.Provision.PropagationTimeoutSec != 120 {
		t.Errorf("Expected propagation timeout 120, got %d", cfg.Provision.PropagationTimeoutSec)
	}
}

func TestLoad_MissingMySQLDSN(t *testing.T) {
	os.Unsetenv("MYSQL_DSN")
	os.Setenv("JWT_SECRET", "test-secret")
	defer os.Unsetenv("JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when MYSQL_DSN is missing")
	}
}

func TestLoad_InvalidIssuer(t *testing.T) {
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("CERT_ISSUER", "bogus")
	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("CERT_ISSUER")
	}()

	_, err := Load()
	if err == nil {
		t.Error("Expected error for unknown CERT_ISSUER")
	}
}

func TestLoad_RemoteModeRequiresApplyURL(t *testing.T) {
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("NGINX_PUBLISH_MODE", "remote")
	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("NGINX_PUBLISH_MODE")
	}()

	_, err := Load()
	if err == nil {
		t.Error("Expected error when remote mode has no apply URL")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("MYSQL_DSN", "custom:dsn@tcp(localhost:3306)/custom")
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("ORIGIN_IP", "203.0.113.10")
	os.Setenv("CERT_ISSUER", "edge")
	os.Setenv("DNS_PROPAGATION_TIMEOUT_SEC", "60")

	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("ORIGIN_IP")
		os.Unsetenv("CERT_ISSUER")
		os.Unsetenv("DNS_PROPAGATION_TIMEOUT_SEC")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Origin.IP != "203.0.113.10" {
		t.Errorf("Expected origin IP 203.0.113.10, got %s", cfg.Origin.IP)
	}

	if cfg.Provision.Issuer != IssuerEdge {
		t.Errorf("Expected issuer edge, got %s", cfg.Provision.Issuer)
	}

	if cfg.Provision.PropagationTimeoutSec != 60 {
		t.Errorf("Expected propagation timeout 60, got %d", cfg.Provision.PropagationTimeoutSec)
	}
}
