package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/storage"
)

// JSONFormatter formats anvil objects as JSON.
type JSONFormatter struct{}

func marshalJSON(v any, what string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}

// FormatResource formats a single resource as JSON.
func (f *JSONFormatter) FormatResource(r *Resource) (string, error) {
	return marshalJSON(r, "resource")
}

// FormatResourceList formats resources as a JSON array.
func (f *JSONFormatter) FormatResourceList(rs []*Resource) (string, error) {
	if len(rs) == 0 {
		return "[]\n", nil
	}
	return marshalJSON(rs, "resources")
}

// FormatPlan formats a run as JSON.
func (f *JSONFormatter) FormatPlan(p *Plan) (string, error) {
	return marshalJSON(p, "plan")
}

// FormatPools formats storage pools as a JSON array.
func (f *JSONFormatter) FormatPools(pools []storage.PoolInfo) (string, error) {
	if len(pools) == 0 {
		return "[]\n", nil
	}
	return marshalJSON(pools, "pools")
}

// FormatMachine formats a machine spec as JSON.
func (f *JSONFormatter) FormatMachine(spec *machine.Spec) (string, error) {
	return marshalJSON(spec, "machine")
}
