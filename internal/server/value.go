package server

import (
	"fmt"

	"github.com/jbweber/anvil/internal/engine"
)

// Value is a string input that is either known up front or read from the
// outputs of another resource once that resource has been applied.
type Value struct {
	literal string
	source  engine.Named
	get     func() (string, error)
}

// Literal returns a Value known up front.
func Literal(s string) Value {
	return Value{literal: s}
}

// Resolve returns the value. For values produced by another resource it
// fails with engine.ErrOutputNotReady until that resource was applied.
func (v Value) Resolve() (string, error) {
	if v.get == nil {
		return v.literal, nil
	}
	return v.get()
}

// Source returns the resource the value is read from, or nil for literals.
func (v Value) Source() engine.Named {
	return v.source
}

// AddressOf is the machine address of s.
func AddressOf(s *Server) Value {
	return Value{
		source: s.machine,
		get: func() (string, error) {
			outs, err := s.machine.Outputs()
			if err != nil {
				return "", err
			}
			return outs.Address, nil
		},
	}
}

// ArtifactOf is the configuration artifact key of s.
func ArtifactOf(s *Server, key string) Value {
	if s.configuration == nil {
		return Value{get: func() (string, error) {
			return "", fmt.Errorf("server %s has no playbook and therefore no artifact %q", s.name, key)
		}}
	}
	return Value{
		source: s.configuration,
		get: func() (string, error) {
			outs, err := s.configuration.Outputs()
			if err != nil {
				return "", err
			}
			v, ok := outs.Artifacts[key]
			if !ok {
				return "", fmt.Errorf("server %s has no artifact %q", s.name, key)
			}
			return v, nil
		},
	}
}

// resolveEnv resolves every value of env into a fresh map.
func resolveEnv(env map[string]Value) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		s, err := v.Resolve()
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}
