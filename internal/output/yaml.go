package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/storage"
)

// YAMLFormatter formats anvil objects as YAML.
type YAMLFormatter struct{}

// FormatResource formats a single resource as YAML.
func (f *YAMLFormatter) FormatResource(r *Resource) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal resource to YAML: %w", err)
	}
	return string(data), nil
}

// FormatResourceList formats resources as a YAML stream (multiple
// documents separated by ---).
func (f *YAMLFormatter) FormatResourceList(rs []*Resource) (string, error) {
	if len(rs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for i, r := range rs {
		data, err := yaml.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to marshal resource %s to YAML: %w", r.Name, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.String(), nil
}

// FormatPlan formats a run as YAML.
func (f *YAMLFormatter) FormatPlan(p *Plan) (string, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan to YAML: %w", err)
	}
	return string(data), nil
}

// FormatPools formats storage pools as YAML.
func (f *YAMLFormatter) FormatPools(pools []storage.PoolInfo) (string, error) {
	if len(pools) == 0 {
		return "", nil
	}
	data, err := yaml.Marshal(pools)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pools to YAML: %w", err)
	}
	return string(data), nil
}

// FormatMachine formats a machine spec as YAML.
func (f *YAMLFormatter) FormatMachine(spec *machine.Spec) (string, error) {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal machine to YAML: %w", err)
	}
	return string(data), nil
}
