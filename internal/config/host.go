package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	cryptossh "golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/playbook"
	"github.com/jbweber/anvil/internal/ssh"
	"github.com/jbweber/anvil/internal/storage"
)

// AppName names the xdg directories anvil uses.
const AppName = "anvil"

// Host defaults, applied by Normalize.
const (
	DefaultBaseImage   = "/var/lib/libvirt/images/debian-12-generic-amd64.raw"
	DefaultBridge      = "br10"
	DefaultImageUser   = "debian"
	DefaultSSHUser     = "root"
	DefaultSSHPort     = 22
	DefaultDialTimeout = 10 * time.Second
	DefaultLibvirtDial = 5 * time.Second
)

// HostFile is where LoadHost looks when no path is given, relative to the
// xdg config directories.
var HostFile = filepath.Join(AppName, "host.yaml")

// Host holds the settings of the hypervisor anvil provisions on.
type Host struct {
	LibvirtSocket  string        `yaml:"libvirt_socket"`
	LibvirtTimeout time.Duration `yaml:"libvirt_timeout"`

	BaseImage    string `yaml:"base_image"`
	Bridge       string `yaml:"bridge"`
	SeedPool     string `yaml:"seed_pool"`
	SeedPoolPath string `yaml:"seed_pool_path"`

	// StateDir holds the state store. Defaults to $XDG_STATE_HOME/anvil.
	StateDir string `yaml:"state_dir"`
	// KnownHostsPath defaults to known_hosts under StateDir.
	KnownHostsPath string `yaml:"known_hosts"`
	// ScriptsDir is where setup scripts and files are read from. Defaults
	// to the directory of the stack file.
	ScriptsDir string `yaml:"scripts_dir"`

	RootPassword   string   `yaml:"root_password"`
	AuthorizedKeys []string `yaml:"authorized_keys"`
	ImageUser      string   `yaml:"image_user"`

	SSH       SSHSettings       `yaml:"ssh"`
	Readiness ReadinessSettings `yaml:"readiness"`
	Detach    DetachSettings    `yaml:"detach"`
	Ansible   AnsibleSettings   `yaml:"ansible"`
}

// SSHSettings configure how anvil reaches machines.
type SSHSettings struct {
	User           string        `yaml:"user"`
	Port           int           `yaml:"port"`
	PrivateKeyPath string        `yaml:"private_key"`
	Password       string        `yaml:"password"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

// ReadinessSettings bound the SSH readiness wait.
type ReadinessSettings struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
	// Strict turns a readiness timeout into an error.
	Strict bool `yaml:"strict"`
}

// DetachSettings bound boot media detachment.
type DetachSettings struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

// AnsibleSettings configure the playbook runner.
type AnsibleSettings struct {
	Binary     string `yaml:"binary"`
	User       string `yaml:"user"`
	PrivateKey string `yaml:"private_key"`
}

// Normalize applies defaults.
func (h *Host) Normalize() {
	if h.LibvirtSocket == "" {
		h.LibvirtSocket = libvirt.DefaultSocket
	}
	if h.LibvirtTimeout == 0 {
		h.LibvirtTimeout = DefaultLibvirtDial
	}
	if h.BaseImage == "" {
		h.BaseImage = DefaultBaseImage
	}
	if h.Bridge == "" {
		h.Bridge = DefaultBridge
	}
	if h.SeedPool == "" {
		h.SeedPool = storage.DefaultSeedPool
	}
	if h.SeedPoolPath == "" {
		h.SeedPoolPath = storage.DefaultSeedPath
	}
	if h.StateDir == "" {
		h.StateDir = filepath.Join(xdg.StateHome, AppName)
	}
	if h.KnownHostsPath == "" {
		h.KnownHostsPath = filepath.Join(h.StateDir, "known_hosts")
	}
	if h.ImageUser == "" {
		h.ImageUser = DefaultImageUser
	}

	if h.SSH.User == "" {
		h.SSH.User = DefaultSSHUser
	}
	if h.SSH.Port == 0 {
		h.SSH.Port = DefaultSSHPort
	}
	if h.SSH.DialTimeout == 0 {
		h.SSH.DialTimeout = DefaultDialTimeout
	}

	if h.Readiness.Timeout == 0 {
		h.Readiness.Timeout = machine.DefaultReadinessTimeout
	}
	if h.Readiness.Interval == 0 {
		h.Readiness.Interval = machine.DefaultReadinessInterval
	}
	if h.Detach.Timeout == 0 {
		h.Detach.Timeout = machine.DefaultDetachTimeout
	}
	if h.Detach.Interval == 0 {
		h.Detach.Interval = machine.DefaultDetachInterval
	}

	if h.Ansible.Binary == "" {
		h.Ansible.Binary = playbook.DefaultBinary
	}
	if h.Ansible.User == "" {
		h.Ansible.User = h.SSH.User
	}
	if h.Ansible.PrivateKey == "" {
		h.Ansible.PrivateKey = h.SSH.PrivateKeyPath
	}
}

// Validate checks the host settings.
func (h *Host) Validate() error {
	if h.SSH.Port <= 0 || h.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 1 and 65535, got %d", h.SSH.Port)
	}
	if h.Readiness.Interval <= 0 || h.Readiness.Timeout < h.Readiness.Interval {
		return fmt.Errorf("readiness.timeout (%s) must be at least readiness.interval (%s)", h.Readiness.Timeout, h.Readiness.Interval)
	}
	if h.Detach.Interval <= 0 || h.Detach.Timeout < h.Detach.Interval {
		return fmt.Errorf("detach.timeout (%s) must be at least detach.interval (%s)", h.Detach.Timeout, h.Detach.Interval)
	}

	for i, key := range h.AuthorizedKeys {
		if _, _, _, _, err := cryptossh.ParseAuthorizedKey([]byte(key)); err != nil {
			return fmt.Errorf("authorized_keys[%d] is not a valid SSH public key: %w", i, err)
		}
	}

	// Hashed passwords are passed through to cloud-init as they are.
	if strings.HasPrefix(h.RootPassword, "$") && len(h.RootPassword) < 10 {
		return fmt.Errorf("root_password looks like a crypt hash but is too short")
	}
	return nil
}

// MachineOptions returns the machine provider settings. scriptsDir is used
// when no scripts directory is configured.
func (h *Host) MachineOptions(scriptsDir string) machine.Options {
	if h.ScriptsDir != "" {
		scriptsDir = h.ScriptsDir
	}
	return machine.Options{
		BaseImage:         h.BaseImage,
		Bridge:            h.Bridge,
		ScriptsDir:        scriptsDir,
		RootPassword:      h.RootPassword,
		AuthorizedKeys:    append([]string(nil), h.AuthorizedKeys...),
		ImageUser:         h.ImageUser,
		ReadinessTimeout:  h.Readiness.Timeout,
		ReadinessInterval: h.Readiness.Interval,
		StrictReadiness:   h.Readiness.Strict,
		DetachTimeout:     h.Detach.Timeout,
		DetachInterval:    h.Detach.Interval,
	}
}

// SSHConfig returns the SSH client settings, reading the private key.
func (h *Host) SSHConfig() (*ssh.Config, error) {
	cfg := &ssh.Config{
		User:           h.SSH.User,
		Port:           h.SSH.Port,
		Password:       h.SSH.Password,
		DialTimeout:    h.SSH.DialTimeout,
		KnownHostsPath: h.KnownHostsPath,
	}
	if h.SSH.PrivateKeyPath != "" {
		key, err := os.ReadFile(h.SSH.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh private key: %w", err)
		}
		cfg.PrivateKey = key
	}
	return cfg, nil
}

// PlaybookOptions returns the playbook runner settings.
func (h *Host) PlaybookOptions() playbook.Options {
	return playbook.Options{
		Binary:         h.Ansible.Binary,
		User:           h.Ansible.User,
		PrivateKeyPath: h.Ansible.PrivateKey,
		KnownHostsPath: h.KnownHostsPath,
	}
}

// ParseHost loads host settings from YAML bytes.
func ParseHost(data []byte) (*Host, error) {
	var h Host
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	h.Normalize()

	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host settings: %w", err)
	}
	return &h, nil
}

// LoadHost loads host settings from path. An empty path searches the xdg
// config directories for HostFile and falls back to the defaults when none
// exists.
func LoadHost(path string) (*Host, error) {
	if path == "" {
		found, err := xdg.SearchConfigFile(HostFile)
		if err != nil {
			return ParseHost(nil)
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host settings: %w", err)
	}
	return ParseHost(data)
}
