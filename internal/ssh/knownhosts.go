package ssh

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // OpenSSH hashed hostnames are HMAC-SHA1
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jbweber/anvil/internal/resource"
)

// PurgeHost removes every known_hosts entry for host, hashed or plain.
// A missing known_hosts file is not an error.
func (c *Client) PurgeHost(host string) error {
	path := c.config.KnownHostsPath
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read known_hosts: %w", err)
	}

	target := knownhosts.Normalize(c.addr(host))
	var kept []string
	removed := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if lineMatchesHost(line, target) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return nil
	}

	out := strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0o600); err != nil {
		return fmt.Errorf("failed to write known_hosts: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace known_hosts: %w", err)
	}
	return nil
}

// RecordHost fetches the host key presented by host and appends a hashed
// known_hosts entry for it.
func (c *Client) RecordHost(ctx context.Context, host string) error {
	path := c.config.KnownHostsPath
	if path == "" {
		return nil
	}

	addr := c.addr(host)
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return &resource.TransportError{Addr: addr, Op: "keyscan", Err: err}
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(c.config.DialTimeout))

	var hostKey ssh.PublicKey
	cfg := &ssh.ClientConfig{
		User: c.config.User,
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			hostKey = key
			return nil
		},
		Timeout: c.config.DialTimeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err == nil {
		_ = ssh.NewClient(sshConn, chans, reqs).Close()
	}
	if hostKey == nil {
		if err == nil {
			err = errors.New("no host key presented")
		}
		return &resource.TransportError{Addr: addr, Op: "keyscan", Err: err}
	}

	line := knownhosts.Line([]string{knownhosts.HashHostname(knownhosts.Normalize(addr))}, hostKey)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write known_hosts: %w", err)
	}
	return nil
}

// lineMatchesHost reports whether a known_hosts line lists target, which
// must already be normalized.
func lineMatchesHost(line, target string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return false
	}
	hosts := fields[0]
	if strings.HasPrefix(hosts, "@") {
		if len(fields) < 2 {
			return false
		}
		hosts = fields[1]
	}

	for _, h := range strings.Split(hosts, ",") {
		if strings.HasPrefix(h, "|1|") {
			if hashedHostMatches(h, target) {
				return true
			}
			continue
		}
		if h == target {
			return true
		}
	}
	return false
}

func hashedHostMatches(entry, host string) bool {
	parts := strings.Split(strings.TrimPrefix(entry, "|1|"), "|")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, salt)
	mac.Write([]byte(host))
	return hmac.Equal(mac.Sum(nil), want)
}
