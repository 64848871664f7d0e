package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jbweber/anvil/internal/state"
)

const secretPlaceholder = state.SecretPlaceholder

// Resource is the displayed form of a state record. Secret outputs are
// masked.
type Resource struct {
	URN          string         `json:"urn" yaml:"urn"`
	Kind         string         `json:"kind" yaml:"kind"`
	Name         string         `json:"name" yaml:"name"`
	ID           string         `json:"id" yaml:"id"`
	Parent       string         `json:"parent,omitempty" yaml:"parent,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Created      time.Time      `json:"created" yaml:"created"`
	Updated      time.Time      `json:"updated" yaml:"updated"`
}

// NewResource builds the displayed form of rec.
func NewResource(rec *state.Record) (*Resource, error) {
	outputs, err := rec.MaskedOutputs()
	if err != nil {
		return nil, err
	}

	var inputs map[string]any
	if len(rec.Inputs) > 0 {
		if err := json.Unmarshal(rec.Inputs, &inputs); err != nil {
			return nil, fmt.Errorf("failed to decode inputs of %s: %w", rec.URN, err)
		}
	}

	return &Resource{
		URN:          rec.URN,
		Kind:         string(rec.Kind),
		Name:         rec.Name,
		ID:           rec.ID,
		Parent:       rec.Parent,
		Dependencies: rec.Dependencies,
		Inputs:       inputs,
		Outputs:      outputs,
		Created:      rec.Created,
		Updated:      rec.Updated,
	}, nil
}

// NewResourceList builds the displayed form of recs.
func NewResourceList(recs []*state.Record) ([]*Resource, error) {
	out := make([]*Resource, 0, len(recs))
	for _, rec := range recs {
		r, err := NewResource(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Plan is the displayed form of an up, preview or destroy run.
type Plan struct {
	Steps   []PlanStep        `json:"steps" yaml:"steps"`
	Exports map[string]string `json:"exports,omitempty" yaml:"exports,omitempty"`
}

// PlanStep is one step of a Plan.
type PlanStep struct {
	Op      string         `json:"op" yaml:"op"`
	Name    string         `json:"name" yaml:"name"`
	Kind    string         `json:"kind" yaml:"kind"`
	Parent  string         `json:"parent,omitempty" yaml:"parent,omitempty"`
	Fields  []string       `json:"fields,omitempty" yaml:"fields,omitempty"`
	Pending bool           `json:"pending,omitempty" yaml:"pending,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// shortKind drops the package qualifier: "anvil:compute:Machine" becomes
// "Machine".
func shortKind(kind string) string {
	if i := strings.LastIndex(kind, ":"); i >= 0 {
		return kind[i+1:]
	}
	return kind
}
