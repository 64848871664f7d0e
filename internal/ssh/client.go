package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/resource"
)

const (
	defaultPort        = 22
	defaultUser        = "root"
	defaultDialTimeout = 10 * time.Second
)

// ErrUnreachable is returned by Probe when no SSH server answered.
var ErrUnreachable = errors.New("ssh endpoint unreachable")

// Config holds SSH client configuration.
type Config struct {
	// User to authenticate as. Defaults to root.
	User string
	// Port to connect to. Defaults to 22.
	Port int
	// PrivateKey is a PEM encoded private key.
	PrivateKey []byte
	// Password enables password authentication when set.
	Password string
	// DialTimeout bounds TCP connect and the SSH handshake.
	DialTimeout time.Duration
	// KnownHostsPath is the known_hosts file maintained by PurgeHost and
	// RecordHost and used to verify host keys. When empty or missing, host
	// keys are not verified.
	KnownHostsPath string
}

// Client talks SSH to provisioned machines.
type Client struct {
	config *Config
	auth   []ssh.AuthMethod
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	configCopy := *cfg
	if configCopy.User == "" {
		configCopy.User = defaultUser
	}
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}

	var auth []ssh.AuthMethod
	if len(configCopy.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if configCopy.Password != "" {
		auth = append(auth, ssh.Password(configCopy.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("either a private key or a password is required")
	}

	return &Client{config: &configCopy, auth: auth}, nil
}

func (c *Client) addr(host string) string {
	return net.JoinHostPort(host, strconv.Itoa(c.config.Port))
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: c.config.DialTimeout}
	return d.DialContext(ctx, "tcp", addr)
}

// Probe reports whether an SSH server answers at host. A refused or timed
// out connection returns an error wrapping ErrUnreachable. Any answer from
// the SSH layer, including a failed handshake or rejected authentication,
// counts as reachable and returns nil.
func (c *Client) Probe(ctx context.Context, host string) error {
	addr := c.addr(host)
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(c.config.DialTimeout))

	cfg := &ssh.ClientConfig{
		User:            c.config.User,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // probe only, no session is opened
		Timeout:         c.config.DialTimeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err == nil {
		_ = ssh.NewClient(sshConn, chans, reqs).Close()
	}
	return nil
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.config.KnownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // no known_hosts configured
	}
	if _, err := os.Stat(c.config.KnownHostsPath); errors.Is(err, os.ErrNotExist) {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // nothing recorded yet
	}
	cb, err := knownhosts.New(c.config.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

func (c *Client) connect(ctx context.Context, host string) (*ssh.Client, error) {
	addr := c.addr(host)

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, &resource.TransportError{Addr: addr, Op: "connect", Err: err}
	}

	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, &resource.TransportError{Addr: addr, Op: "dial", Err: err}
	}
	_ = conn.SetDeadline(time.Now().Add(c.config.DialTimeout))

	cfg := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            c.auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, &resource.TransportError{Addr: addr, Op: "handshake", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// session opens a connection and a session, and closes both when ctx is
// cancelled or the returned cleanup runs.
func (c *Client) session(ctx context.Context, host string) (*ssh.Session, func(), error) {
	client, err := c.connect(ctx, host)
	if err != nil {
		return nil, nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, nil, &resource.TransportError{Addr: c.addr(host), Op: "session", Err: err}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-done:
		}
	}()

	cleanup := func() {
		close(done)
		_ = session.Close()
		_ = client.Close()
	}
	return session, cleanup, nil
}

// Run executes cmd on host. A non-zero remote exit status is reported in
// the Result; the error is reserved for transport failures.
func (c *Client) Run(ctx context.Context, host, cmd string) (command.Result, error) {
	session, cleanup, err := c.session(ctx, host)
	if err != nil {
		return command.Result{}, err
	}
	defer cleanup()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(cmd)
	res := command.Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return res, &resource.TransportError{Addr: c.addr(host), Op: "exec", Err: err}
	}
	return res, nil
}

// Upload copies the local file at localPath to remotePath on host.
func (c *Client) Upload(ctx context.Context, host, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	return c.upload(ctx, host, f, remotePath)
}

func (c *Client) upload(ctx context.Context, host string, r io.Reader, remotePath string) error {
	session, cleanup, err := c.session(ctx, host)
	if err != nil {
		return err
	}
	defer cleanup()

	var stderr bytes.Buffer
	session.Stdin = r
	session.Stderr = &stderr

	if err := session.Run("cat > " + Quote(remotePath)); err != nil {
		if stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return &resource.TransportError{Addr: c.addr(host), Op: "upload " + remotePath, Err: err}
	}
	return nil
}
