package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/naming"
)

// Server defaults, applied by Normalize.
const (
	DefaultGateway     = "10.0.0.1"
	DefaultVolumeGroup = "vg0"
	DefaultDiskSize    = "10G"
	DefaultRAMMiB      = 1024
	DefaultCPUCount    = 2
)

// Server describes one virtual private server.
type Server struct {
	Hostname string  `yaml:"hostname"`
	RAM      int     `yaml:"ram"` // MiB
	CPU      int     `yaml:"cpu"`
	Network  Network `yaml:"network"`
	Disk     Disk    `yaml:"disk"`
	Setup    Setup   `yaml:"setup"`
}

// Network is the static address of a server on the host bridge.
type Network struct {
	IP      string `yaml:"ip"`
	Gateway string `yaml:"gateway"`
}

// Disk is the logical volume a server boots from.
type Disk struct {
	Size        DiskSize `yaml:"size"`
	VolumeGroup string   `yaml:"volume_group"`
}

// DiskSize is a human readable size such as "10G". A bare number is read
// as GiB.
type DiskSize string

// UnmarshalYAML accepts both "10G" and 10.
func (d *DiskSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("disk size must be a scalar, got %s", value.Tag)
	}
	*d = DiskSize(value.Value)
	return nil
}

// GiB converts the size to whole GiB.
func (d DiskSize) GiB() (int, error) {
	size := strings.TrimSpace(string(d))
	if n, err := strconv.Atoi(size); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("disk size must be > 0, got %d", n)
		}
		return n, nil
	}

	b, err := units.RAMInBytes(size)
	if err != nil {
		return 0, fmt.Errorf("invalid disk size %q: %w", size, err)
	}
	if b <= 0 || b%units.GiB != 0 {
		return 0, fmt.Errorf("disk size %q must be a positive whole number of GiB", size)
	}
	return int(b / units.GiB), nil
}

// Setup is what runs on a server once it is reachable.
type Setup struct {
	// Env is exported to setup scripts and passed to the playbook. Values
	// may reference other servers, see Ref.
	Env map[string]string `yaml:"env"`
	// Scripts are "path arg..." entries run in order.
	Scripts []string `yaml:"scripts"`
	// Files are "local:remote" entries uploaded after the scripts.
	Files []string `yaml:"files"`
	// Playbook is applied once setup is done.
	Playbook string `yaml:"playbook"`
	// Artifacts are remote files read back after the playbook ran.
	Artifacts map[string]string `yaml:"artifacts"`
	// Results are remote files read back after the scripts ran.
	Results map[string]string `yaml:"results"`

	// Playbooks is only declared so that it can be rejected.
	Playbooks *yaml.Node `yaml:"playbooks,omitempty"`
}

// Normalize sanitizes user input and applies defaults. Every map is
// replaced by a fresh copy so that servers never share containers.
func (s *Server) Normalize() {
	s.Hostname = strings.ToLower(strings.TrimSpace(s.Hostname))
	s.Network.IP = strings.TrimSpace(s.Network.IP)
	s.Network.Gateway = strings.TrimSpace(s.Network.Gateway)

	if s.Network.Gateway == "" {
		s.Network.Gateway = DefaultGateway
	}
	if s.Disk.VolumeGroup == "" {
		s.Disk.VolumeGroup = DefaultVolumeGroup
	}
	if s.Disk.Size == "" {
		s.Disk.Size = DefaultDiskSize
	}
	if s.RAM == 0 {
		s.RAM = DefaultRAMMiB
	}
	if s.CPU == 0 {
		s.CPU = DefaultCPUCount
	}

	s.Setup.Env = copyMap(s.Setup.Env)
	s.Setup.Artifacts = copyMap(s.Setup.Artifacts)
	s.Setup.Results = copyMap(s.Setup.Results)
	s.Setup.Scripts = append([]string(nil), s.Setup.Scripts...)
	s.Setup.Files = append([]string(nil), s.Setup.Files...)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// Validate checks the server for errors. It does not check hypervisor
// resources such as volume groups, only the descriptor itself.
func (s *Server) Validate() error {
	if s.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if !hostnamePattern.MatchString(s.Hostname) {
		return fmt.Errorf("hostname must start and end with alphanumeric characters and contain only alphanumeric, hyphens, or underscores, got %q", s.Hostname)
	}
	if s.CPU <= 0 {
		return fmt.Errorf("cpu must be > 0, got %d", s.CPU)
	}
	if s.RAM <= 0 {
		return fmt.Errorf("ram must be > 0, got %d", s.RAM)
	}

	if s.Network.IP == "" {
		return fmt.Errorf("network.ip is required")
	}
	if err := naming.CheckBridgeSubnet(s.Network.IP, s.Network.Gateway); err != nil {
		return fmt.Errorf("network: %w", err)
	}

	if _, err := s.Disk.Size.GiB(); err != nil {
		return fmt.Errorf("disk: %w", err)
	}

	if err := s.Setup.Validate(); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	return nil
}

// Validate checks setup entries.
func (s *Setup) Validate() error {
	if s.Playbooks != nil {
		return fmt.Errorf("'playbooks' is not supported, use 'playbook' with a single path")
	}
	for i, entry := range s.Scripts {
		if _, err := machine.ParseScript(entry); err != nil {
			return fmt.Errorf("scripts[%d]: %w", i, err)
		}
	}
	for i, entry := range s.Files {
		if _, err := machine.ParseFileCopy(entry); err != nil {
			return fmt.Errorf("files[%d]: %w", i, err)
		}
	}
	for _, k := range sortedKeys(s.Env) {
		if _, _, err := ParseRef(s.Env[k]); err != nil {
			return fmt.Errorf("env %s: %w", k, err)
		}
	}
	if len(s.Artifacts) > 0 && s.Playbook == "" {
		return fmt.Errorf("artifacts require a playbook")
	}
	for _, k := range sortedKeys(s.Artifacts) {
		if strings.TrimSpace(s.Artifacts[k]) == "" {
			return fmt.Errorf("artifact %s: path is required", k)
		}
	}
	for _, k := range sortedKeys(s.Results) {
		if strings.TrimSpace(s.Results[k]) == "" {
			return fmt.Errorf("result %s: path is required", k)
		}
	}
	return nil
}

// DiskSizeGiB returns the disk size in GiB. The server must be valid.
func (s *Server) DiskSizeGiB() int {
	n, _ := s.Disk.Size.GiB()
	return n
}

// Scripts returns the parsed setup scripts.
func (s *Server) Scripts() []machine.Script {
	out := make([]machine.Script, 0, len(s.Setup.Scripts))
	for _, entry := range s.Setup.Scripts {
		if sc, err := machine.ParseScript(entry); err == nil {
			out = append(out, sc)
		}
	}
	return out
}

// Files returns the parsed file copies.
func (s *Server) Files() []machine.FileCopy {
	out := make([]machine.FileCopy, 0, len(s.Setup.Files))
	for _, entry := range s.Setup.Files {
		if f, err := machine.ParseFileCopy(entry); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// decodeServer unmarshals a server without normalizing it. Unknown keys
// are errors.
func decodeServer(data []byte) (*Server, error) {
	var s Server
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty server file")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

// ParseServer loads a server from YAML bytes.
func ParseServer(data []byte) (*Server, error) {
	s, err := decodeServer(data)
	if err != nil {
		return nil, err
	}

	s.Normalize()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server %q: %w", s.Hostname, err)
	}
	return s, nil
}

// LoadServer loads a server from a YAML file.
func LoadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server file: %w", err)
	}
	return ParseServer(data)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
