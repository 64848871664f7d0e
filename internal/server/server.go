package server

import (
	"fmt"
	"sort"

	"github.com/jbweber/anvil/internal/engine"
	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/playbook"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/volume"
)

// Providers are the resource providers a server is built from.
type Providers struct {
	Volumes        resource.Provider[volume.Spec, volume.Outputs]
	Machines       resource.Provider[machine.Spec, machine.Outputs]
	Configurations resource.Provider[playbook.Spec, playbook.Outputs]
}

// Validate checks every provider is set.
func (p Providers) Validate() error {
	if p.Volumes == nil || p.Machines == nil || p.Configurations == nil {
		return fmt.Errorf("volume, machine and configuration providers are required")
	}
	return nil
}

// Descriptor is the desired state of a server.
type Descriptor struct {
	Hostname    string
	Address     string
	Gateway     string
	VolumeGroup string
	DiskSizeGiB int
	CPUCount    int
	RAMMiB      int

	// Env is passed to setup scripts and to the playbook.
	Env     map[string]Value
	Scripts []machine.Script
	Files   []machine.FileCopy
	// Results are remote files read back once setup finished.
	Results map[string]string

	// Playbook is optional. Without it the server has no configuration
	// run and no artifacts.
	Playbook  string
	Artifacts map[string]string

	// Parent groups the server under another one for display.
	Parent string
}

// Server is a registered server.
type Server struct {
	name          string
	volume        *engine.Handle[volume.Outputs]
	machine       *engine.Handle[machine.Outputs]
	configuration *engine.Handle[playbook.Outputs]
}

// VolumeName is the engine name of the volume of hostname.
func VolumeName(hostname string) string {
	return hostname + "-disk"
}

// Register adds the resources of d to e.
func Register(e *engine.Engine, p Providers, d Descriptor) (*Server, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if d.Hostname == "" {
		return nil, fmt.Errorf("hostname is required")
	}

	s := &Server{name: d.Hostname}
	envDeps := d.envSources()
	var err error

	// Step 1: Volume
	volSpec := volume.Spec{Name: d.Hostname, SizeGiB: d.DiskSizeGiB, VolumeGroup: d.VolumeGroup}
	s.volume, err = engine.Register(e, VolumeName(d.Hostname), p.Volumes,
		func() (volume.Spec, error) { return volSpec, nil },
		engine.Parent(d.Hostname),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register volume of %s: %w", d.Hostname, err)
	}

	// Step 2: Machine, once the volume exists
	machineInputs := func() (machine.Spec, error) {
		env, err := resolveEnv(d.Env)
		if err != nil {
			return machine.Spec{}, err
		}
		return machine.Spec{
			Name:        d.Hostname,
			Address:     d.Address,
			Gateway:     d.Gateway,
			VolumeGroup: d.VolumeGroup,
			DiskSizeGiB: d.DiskSizeGiB,
			CPUCount:    d.CPUCount,
			RAMMiB:      d.RAMMiB,
			Env:         env,
			Scripts:     append([]machine.Script(nil), d.Scripts...),
			Files:       append([]machine.FileCopy(nil), d.Files...),
			ResultFiles: copyMap(d.Results),
		}, nil
	}
	machineOpts := []engine.Option{
		engine.DependsOn(append([]engine.Named{s.volume}, envDeps...)...),
		engine.SecretOutputs("result"),
	}
	if d.Parent != "" {
		machineOpts = append(machineOpts, engine.Parent(d.Parent))
	}
	s.machine, err = engine.Register(e, d.Hostname, p.Machines, machineInputs, machineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to register machine %s: %w", d.Hostname, err)
	}

	if d.Playbook == "" {
		return s, nil
	}

	// Step 3: Configuration, against the machine's address
	configInputs := func() (playbook.Spec, error) {
		addr, err := AddressOf(s).Resolve()
		if err != nil {
			return playbook.Spec{}, err
		}
		env, err := resolveEnv(d.Env)
		if err != nil {
			return playbook.Spec{}, err
		}
		return playbook.Spec{
			HostName:      d.Hostname,
			SourcePath:    d.Playbook,
			TargetAddress: addr,
			Env:           env,
			Artifacts:     copyMap(d.Artifacts),
		}, nil
	}
	s.configuration, err = engine.Register(e, naming.ConfigurationID(d.Hostname, d.Playbook), p.Configurations, configInputs,
		engine.DependsOn(append([]engine.Named{s.machine}, envDeps...)...),
		engine.Parent(d.Hostname),
		engine.SecretOutputs("artifacts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register configuration of %s: %w", d.Hostname, err)
	}
	return s, nil
}

// envSources returns the resources env values are read from, in key
// order.
func (d Descriptor) envSources() []engine.Named {
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var deps []engine.Named
	seen := map[string]bool{}
	for _, k := range keys {
		src := d.Env[k].Source()
		if src == nil || seen[src.Name()] {
			continue
		}
		seen[src.Name()] = true
		deps = append(deps, src)
	}
	return deps
}

// Name returns the hostname of the server.
func (s *Server) Name() string {
	return s.name
}

// Address is the machine address of the server.
func (s *Server) Address() Value {
	return AddressOf(s)
}

// Artifact is one configuration artifact of the server.
func (s *Server) Artifact(key string) Value {
	return ArtifactOf(s, key)
}

// Artifacts returns every configuration artifact once the configuration
// ran. A server without a playbook has none.
func (s *Server) Artifacts() (map[string]string, error) {
	if s.configuration == nil {
		return map[string]string{}, nil
	}
	outs, err := s.configuration.Outputs()
	if err != nil {
		return nil, err
	}
	return copyMap(outs.Artifacts), nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
