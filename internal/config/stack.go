package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stack is a named set of servers applied together, read from stack.yaml.
type Stack struct {
	Name    string            `yaml:"name"`
	Servers []StackServer     `yaml:"servers"`
	Exports map[string]string `yaml:"exports"`

	// Dir is the directory of the stack file. Server files and playbooks
	// are resolved relative to it.
	Dir string `yaml:"-"`
}

// StackServer is one entry of a stack. The server file may be shared by
// several entries that override its hostname and address.
type StackServer struct {
	File     string            `yaml:"file"`
	Hostname string            `yaml:"hostname,omitempty"`
	IP       string            `yaml:"ip,omitempty"`
	Parent   string            `yaml:"parent,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`

	// Server is the loaded descriptor, with overrides applied.
	Server *Server `yaml:"-"`
}

// Normalize sanitizes the stack name.
func (st *Stack) Normalize() {
	st.Name = strings.ToLower(strings.TrimSpace(st.Name))
	st.Exports = copyMap(st.Exports)
	for i := range st.Servers {
		st.Servers[i].Parent = strings.ToLower(strings.TrimSpace(st.Servers[i].Parent))
	}
}

// Lookup returns the server with the given hostname, or nil.
func (st *Stack) Lookup(hostname string) *Server {
	for _, entry := range st.Servers {
		if entry.Server != nil && entry.Server.Hostname == hostname {
			return entry.Server
		}
	}
	return nil
}

// Validate checks the stack as a whole: names and addresses are unique and
// every reference points at a server of the stack. Servers must already be
// loaded.
func (st *Stack) Validate() error {
	if st.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !hostnamePattern.MatchString(st.Name) {
		return fmt.Errorf("name must contain only lowercase alphanumeric, hyphens, or underscores, got %q", st.Name)
	}
	if len(st.Servers) == 0 {
		return fmt.Errorf("at least one server is required")
	}

	names := make(map[string]bool)
	ips := make(map[string]string)
	for i, entry := range st.Servers {
		s := entry.Server
		if s == nil {
			return fmt.Errorf("servers[%d]: not loaded", i)
		}
		if names[s.Hostname] {
			return fmt.Errorf("servers[%d]: duplicate hostname %q", i, s.Hostname)
		}
		names[s.Hostname] = true
		if other, ok := ips[s.Network.IP]; ok {
			return fmt.Errorf("servers[%d]: address %s is already used by %s", i, s.Network.IP, other)
		}
		ips[s.Network.IP] = s.Hostname
	}

	for i, entry := range st.Servers {
		s := entry.Server
		if entry.Parent != "" {
			if entry.Parent == s.Hostname {
				return fmt.Errorf("servers[%d]: %s cannot be its own parent", i, s.Hostname)
			}
			if !names[entry.Parent] {
				return fmt.Errorf("servers[%d]: unknown parent %q", i, entry.Parent)
			}
		}
		for _, k := range sortedKeys(s.Setup.Env) {
			ref, ok, err := ParseRef(s.Setup.Env[k])
			if err != nil {
				return fmt.Errorf("servers[%d]: env %s: %w", i, k, err)
			}
			if !ok {
				continue
			}
			if ref.Server == s.Hostname {
				return fmt.Errorf("servers[%d]: env %s: %s refers to the server itself", i, k, ref)
			}
			if err := st.checkRef(ref); err != nil {
				return fmt.Errorf("servers[%d]: env %s: %w", i, k, err)
			}
		}
	}

	for _, name := range sortedKeys(st.Exports) {
		ref, ok, err := ParseRef(st.Exports[name])
		if err != nil {
			return fmt.Errorf("exports %s: %w", name, err)
		}
		if !ok {
			continue
		}
		if err := st.checkRef(ref); err != nil {
			return fmt.Errorf("exports %s: %w", name, err)
		}
	}
	return nil
}

func (st *Stack) checkRef(ref Ref) error {
	target := st.Lookup(ref.Server)
	if target == nil {
		return fmt.Errorf("%s refers to unknown server %q", ref, ref.Server)
	}
	if ref.Field == RefArtifact {
		if _, ok := target.Setup.Artifacts[ref.Key]; !ok {
			return fmt.Errorf("%s: server %s declares no artifact %q", ref, ref.Server, ref.Key)
		}
	}
	return nil
}

// LoadStack loads a stack file and every server file it lists.
func LoadStack(path string) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stack file path: %w", err)
	}
	return ParseStack(data, filepath.Dir(abs))
}

// ParseStack loads a stack from YAML bytes. Server files are read relative
// to dir.
func ParseStack(data []byte, dir string) (*Stack, error) {
	var st Stack
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&st); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty stack file")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	st.Dir = dir

	st.Normalize()

	for i := range st.Servers {
		s, err := st.loadServer(st.Servers[i])
		if err != nil {
			return nil, fmt.Errorf("servers[%d]: %w", i, err)
		}
		st.Servers[i].Server = s
	}

	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stack: %w", err)
	}
	return &st, nil
}

// loadServer reads the server file of entry and applies its overrides.
func (st *Stack) loadServer(entry StackServer) (*Server, error) {
	if entry.File == "" {
		return nil, fmt.Errorf("file is required")
	}
	path := entry.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(st.Dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server file: %w", err)
	}
	s, err := decodeServer(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.File, err)
	}

	if entry.Hostname != "" {
		s.Hostname = entry.Hostname
	}
	if entry.IP != "" {
		s.Network.IP = entry.IP
	}
	s.Normalize()
	for k, v := range entry.Env {
		s.Setup.Env[k] = v
	}
	if s.Setup.Playbook != "" {
		s.Setup.Playbook = filepath.Join(st.Dir, s.Setup.Playbook)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server %q: %w", s.Hostname, err)
	}
	return s, nil
}
