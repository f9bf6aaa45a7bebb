// Package sshx runs commands and writes files on the origin host over SSH.
package sshx

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config holds origin host connection settings
type Config struct {
	Host    string
	Port    int
	User    string
	KeyFile string
	Timeout time.Duration
}

// Runner executes commands on a remote host. Implemented by Client;
// fakes stand in during tests.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
	WriteFile(ctx context.Context, path string, content []byte, mode os.FileMode) error
}

// Client is an SSH client for the origin host
type Client struct {
	cfg Config
}

// NewClient creates a client for the configured origin host
func NewClient(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{cfg: cfg}
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	key, err := os.ReadFile(c.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key %s: %w", c.cfg.KeyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.cfg.Timeout,
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Run executes a command on the origin host and returns combined output.
// Output is returned even on error: certbot writes its diagnostics to
// stdout/stderr regardless of exit code.
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return out.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			return out.String(), fmt.Errorf("remote command failed: %w", err)
		}
		return out.String(), nil
	}
}

// WriteFile writes content to a remote path via a stdin pipe to tee,
// then chmods it. Avoids depending on SFTP being enabled on the origin.
func (c *Client) WriteFile(ctx context.Context, path string, content []byte, mode os.FileMode) error {
	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(content)

	cmd := fmt.Sprintf("mkdir -p $(dirname %q) && tee %q > /dev/null && chmod %o %q", path, path, mode.Perm(), path)
	var out bytes.Buffer
	session.Stderr = &out

	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("failed to write remote file %s: %w (%s)", path, err, out.String())
	}
	return nil
}
