package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jbweber/anvil/internal/resource"
)

// Record is the recorded state of one resource.
type Record struct {
	URN  string        `json:"urn" yaml:"urn"`
	Kind resource.Kind `json:"kind" yaml:"kind"`
	// Name is the logical name the resource was registered under.
	Name string `json:"name" yaml:"name"`
	// ID is the identity the provider returned from Create.
	ID string `json:"id" yaml:"id"`

	Inputs  json.RawMessage `json:"inputs" yaml:"-"`
	Outputs json.RawMessage `json:"outputs" yaml:"-"`
	// Secrets lists the top-level output keys that must be masked.
	Secrets []string `json:"secrets,omitempty" yaml:"secrets,omitempty"`

	Parent       string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	Created time.Time `json:"created" yaml:"created"`
	Updated time.Time `json:"updated" yaml:"updated"`
}

// URN returns the unique name of a resource within a stack.
func URN(stack string, kind resource.Kind, name string) string {
	return fmt.Sprintf("urn:anvil:%s::%s::%s", stack, kind, name)
}

// ParseURN splits a URN back into stack, kind and name.
func ParseURN(urn string) (stack string, kind resource.Kind, name string, err error) {
	rest, ok := strings.CutPrefix(urn, "urn:anvil:")
	if !ok {
		return "", "", "", fmt.Errorf("invalid urn: %q", urn)
	}
	parts := strings.Split(rest, "::")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid urn: %q", urn)
	}
	k, err := resource.ParseKind(parts[1])
	if err != nil {
		return "", "", "", fmt.Errorf("invalid urn %q: %w", urn, err)
	}
	return parts[0], k, parts[2], nil
}

// DecodeInputs unmarshals the record's inputs into v.
func (r *Record) DecodeInputs(v any) error {
	if err := json.Unmarshal(r.Inputs, v); err != nil {
		return fmt.Errorf("failed to decode inputs of %s: %w", r.URN, err)
	}
	return nil
}

// DecodeOutputs unmarshals the record's outputs into v.
func (r *Record) DecodeOutputs(v any) error {
	if err := json.Unmarshal(r.Outputs, v); err != nil {
		return fmt.Errorf("failed to decode outputs of %s: %w", r.URN, err)
	}
	return nil
}

// MaskedOutputs returns the outputs as a map with every secret key's value
// replaced by "[secret]".
func (r *Record) MaskedOutputs() (map[string]any, error) {
	out := map[string]any{}
	if len(r.Outputs) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.Outputs, &out); err != nil {
		return nil, fmt.Errorf("failed to decode outputs of %s: %w", r.URN, err)
	}
	for _, k := range r.Secrets {
		if _, ok := out[k]; ok {
			out[k] = SecretPlaceholder
		}
	}
	return out, nil
}

// SecretPlaceholder replaces secret values in displayed outputs.
const SecretPlaceholder = "[secret]"
