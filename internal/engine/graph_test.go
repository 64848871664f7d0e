package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoSort(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		deps    map[string][]string
		want    []string
		wantErr bool
	}{
		{name: "no deps keeps order", ids: []string{"a", "b", "c"}, want: []string{"a", "b", "c"}},
		{
			name: "dependency first",
			ids:  []string{"node1", "node2", "control"},
			deps: map[string][]string{"node1": {"control"}, "node2": {"control"}},
			want: []string{"control", "node1", "node2"},
		},
		{
			name: "chain",
			ids:  []string{"config", "machine", "volume"},
			deps: map[string][]string{"config": {"machine"}, "machine": {"volume"}},
			want: []string{"volume", "machine", "config"},
		},
		{
			name: "unknown deps ignored",
			ids:  []string{"a"},
			deps: map[string][]string{"a": {"gone"}},
			want: []string{"a"},
		},
		{
			name:    "cycle",
			ids:     []string{"a", "b"},
			deps:    map[string][]string{"a": {"b"}, "b": {"a"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := topoSort(tt.ids, func(id string) []string { return tt.deps[id] })
			if tt.wantErr {
				assert.ErrorContains(t, err, "cycle")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReversed(t *testing.T) {
	assert.Equal(t, []string{"c", "b", "a"}, reversed([]string{"a", "b", "c"}))
	assert.Empty(t, reversed(nil))
}
