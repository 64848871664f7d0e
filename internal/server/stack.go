package server

import (
	"fmt"
	"sort"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/engine"
)

// Stack is the set of servers registered from a stack file.
type Stack struct {
	servers map[string]*Server
	order   []string
}

// Server returns the server named hostname, or nil.
func (st *Stack) Server(hostname string) *Server {
	return st.servers[hostname]
}

// Names returns the hostnames in registration order.
func (st *Stack) Names() []string {
	return append([]string(nil), st.order...)
}

// RegisterStack registers every server of cfg with e and declares the
// stack exports. Servers are registered after the servers they reference,
// whatever their order in the file.
func RegisterStack(e *engine.Engine, p Providers, cfg *config.Stack) (*Stack, error) {
	st := &Stack{servers: map[string]*Server{}}

	pending := append([]config.StackServer(nil), cfg.Servers...)
	for len(pending) > 0 {
		var next []config.StackServer
		for _, entry := range pending {
			if !st.ready(entry.Server) {
				next = append(next, entry)
				continue
			}
			d, err := st.descriptor(entry)
			if err != nil {
				return nil, err
			}
			s, err := Register(e, p, d)
			if err != nil {
				return nil, err
			}
			st.servers[s.Name()] = s
			st.order = append(st.order, s.Name())
		}
		if len(next) == len(pending) {
			names := make([]string, len(next))
			for i, entry := range next {
				names[i] = entry.Server.Hostname
			}
			return nil, fmt.Errorf("servers %v reference each other in a cycle", names)
		}
		pending = next
	}

	names := make([]string, 0, len(cfg.Exports))
	for name := range cfg.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, secret, err := st.value(cfg.Exports[name])
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		e.Export(name, secret, v.Resolve)
	}
	return st, nil
}

// ready reports whether every server s references is registered.
func (st *Stack) ready(s *config.Server) bool {
	for _, raw := range s.Setup.Env {
		ref, ok, err := config.ParseRef(raw)
		if err != nil || !ok {
			continue
		}
		if _, ok := st.servers[ref.Server]; !ok {
			return false
		}
	}
	return true
}

// value turns a configured string into a Value. Artifacts are secret.
func (st *Stack) value(raw string) (Value, bool, error) {
	ref, ok, err := config.ParseRef(raw)
	if err != nil {
		return Value{}, false, err
	}
	if !ok {
		return Literal(raw), false, nil
	}

	target, found := st.servers[ref.Server]
	if !found {
		return Value{}, false, fmt.Errorf("unknown server %q", ref.Server)
	}
	if ref.Field == config.RefArtifact {
		return target.Artifact(ref.Key), true, nil
	}
	return target.Address(), false, nil
}

func (st *Stack) descriptor(entry config.StackServer) (Descriptor, error) {
	s := entry.Server
	env := make(map[string]Value, len(s.Setup.Env))
	for k, raw := range s.Setup.Env {
		v, _, err := st.value(raw)
		if err != nil {
			return Descriptor{}, fmt.Errorf("server %s: env %s: %w", s.Hostname, k, err)
		}
		env[k] = v
	}

	return Descriptor{
		Hostname:    s.Hostname,
		Address:     s.Network.IP,
		Gateway:     s.Network.Gateway,
		VolumeGroup: s.Disk.VolumeGroup,
		DiskSizeGiB: s.DiskSizeGiB(),
		CPUCount:    s.CPU,
		RAMMiB:      s.RAM,
		Env:         env,
		Scripts:     s.Scripts(),
		Files:       s.Files(),
		Results:     s.Setup.Results,
		Playbook:    s.Setup.Playbook,
		Artifacts:   s.Setup.Artifacts,
		Parent:      entry.Parent,
	}, nil
}
