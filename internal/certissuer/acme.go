package certissuer

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log"
	"path"
	"strings"

	"landingops/internal/dns/cloudflare"
	"landingops/internal/sshx"

	"github.com/go-acme/lego/v4/certificate"
	legodns "github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// ACMEIssuer obtains certificates directly from an ACME CA using the
// DNS-01 challenge through Cloudflare, then installs the material on
// the origin host over SSH. Unlike certbot this covers the wildcard.
type ACMEIssuer struct {
	cf           *cloudflare.Client
	runner       sshx.Runner
	directoryURL string
	email        string
	certDir      string
}

// NewACMEIssuer creates a DNS-01 based issuer
func NewACMEIssuer(cf *cloudflare.Client, runner sshx.Runner, directoryURL, email, certDir string) *ACMEIssuer {
	return &ACMEIssuer{
		cf:           cf,
		runner:       runner,
		directoryURL: directoryURL,
		email:        email,
		certDir:      certDir,
	}
}

// acmeUser implements registration.User for lego
type acmeUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// Issue obtains a certificate for domain and its wildcard, then writes
// fullchain and private key to the origin host.
func (a *ACMEIssuer) Issue(ctx context.Context, domain string) (*Result, error) {
	zone, err := a.cf.GetOrCreateZone(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve zone for %s: %w", domain, err)
	}

	accountKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}

	user := &acmeUser{email: a.email, key: accountKey}
	config := lego.NewConfig(user)
	config.CADirURL = a.directoryURL

	client, err := lego.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create ACME client: %w", err)
	}

	provider := &dnsChallengeProvider{cf: a.cf, zoneID: zone.ID}
	err = client.Challenge.SetDNS01Provider(provider,
		legodns.AddRecursiveNameservers([]string{"1.1.1.1:53", "8.8.8.8:53"}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set DNS provider: %w", err)
	}

	user.registration, err = client.Registration.Register(registration.RegisterOptions{
		TermsOfServiceAgreed: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register ACME account: %w", err)
	}

	request := certificate.ObtainRequest{
		Domains: []string{domain, "*." + domain},
		Bundle:  true,
	}

	certs, err := client.Certificate.Obtain(request)
	if err != nil {
		if strings.Contains(err.Error(), "rateLimited") || strings.Contains(err.Error(), "too many certificates") {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("failed to obtain certificate for %s: %w", domain, err)
	}

	dir := path.Join(a.certDir, domain)
	if err := a.runner.WriteFile(ctx, path.Join(dir, "fullchain.pem"), certs.Certificate, 0644); err != nil {
		return nil, fmt.Errorf("failed to install certificate: %w", err)
	}
	if err := a.runner.WriteFile(ctx, path.Join(dir, "privkey.pem"), certs.PrivateKey, 0600); err != nil {
		return nil, fmt.Errorf("failed to install private key: %w", err)
	}

	log.Printf("[ACME] installed certificate for %s and *.%s under %s", domain, domain, dir)
	return &Result{Status: StatusIssued, Message: "certificate issued via DNS-01"}, nil
}

// dnsChallengeProvider answers DNS-01 challenges through Cloudflare
type dnsChallengeProvider struct {
	cf     *cloudflare.Client
	zoneID string
}

func (p *dnsChallengeProvider) Present(domain, token, keyAuth string) error {
	info := legodns.GetChallengeInfo(domain, keyAuth)
	_, err := p.cf.CreateTXT(context.Background(), p.zoneID, strings.TrimSuffix(info.FQDN, "."), info.Value)
	return err
}

func (p *dnsChallengeProvider) CleanUp(domain, token, keyAuth string) error {
	info := legodns.GetChallengeInfo(domain, keyAuth)
	return p.cf.DeleteTXT(context.Background(), p.zoneID, strings.TrimSuffix(info.FQDN, "."), info.Value)
}
