// Package output provides formatters for displaying anvil state, plans,
// storage pools and machines in various formats (table, YAML, JSON).
package output

import (
	"fmt"

	"github.com/jbweber/anvil/internal/engine"
	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/storage"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Formatter formats anvil objects for output.
type Formatter interface {
	// FormatResource formats a single recorded resource.
	FormatResource(r *Resource) (string, error)

	// FormatResourceList formats a list of recorded resources.
	FormatResourceList(rs []*Resource) (string, error)

	// FormatPlan formats the steps of an up, preview or destroy run.
	FormatPlan(p *Plan) (string, error)

	// FormatPools formats storage pools.
	FormatPools(pools []storage.PoolInfo) (string, error)

	// FormatMachine formats the spec recorded on a machine.
	FormatMachine(spec *machine.Spec) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	f := Format(format)
	switch f {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

// NewPlan builds the displayed form of a run. Secret exports are masked
// unless showSecrets is set.
func NewPlan(steps []engine.Step, exports map[string]engine.Export, showSecrets bool) *Plan {
	p := &Plan{Steps: make([]PlanStep, 0, len(steps))}
	for _, s := range steps {
		p.Steps = append(p.Steps, PlanStep{
			Op:      string(s.Op),
			Name:    s.Name,
			Kind:    string(s.Kind),
			Parent:  s.Parent,
			Fields:  s.Fields,
			Pending: s.Pending,
			Outputs: s.Outputs,
		})
	}
	if len(exports) > 0 {
		p.Exports = make(map[string]string, len(exports))
		for name, x := range exports {
			v := x.Value
			if x.Secret && !showSecrets {
				v = secretPlaceholder
			}
			p.Exports[name] = v
		}
	}
	return p
}
