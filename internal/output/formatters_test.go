package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jbweber/anvil/internal/engine"
	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/state"
	"github.com/jbweber/anvil/internal/storage"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestRecord creates a machine record with a secret result.
func createTestRecord(t *testing.T, name, parent string) *state.Record {
	t.Helper()
	outputs, err := json.Marshal(machine.Outputs{
		Address: "10.0.0.9",
		Result:  map[string]string{"token": "s3cr3t"},
	})
	if err != nil {
		t.Fatalf("failed to marshal outputs: %v", err)
	}
	inputs, err := json.Marshal(machine.Spec{Name: name, Address: "10.0.0.9", CPUCount: 2})
	if err != nil {
		t.Fatalf("failed to marshal inputs: %v", err)
	}
	return &state.Record{
		URN:     state.URN("dev", resource.KindMachine, name),
		Kind:    resource.KindMachine,
		Name:    name,
		ID:      name,
		Inputs:  inputs,
		Outputs: outputs,
		Secrets: []string{"result"},
		Parent:  parent,
		Created: testNow.Add(-5 * time.Minute),
		Updated: testNow.Add(-5 * time.Minute),
	}
}

func createTestResource(t *testing.T, name, parent string) *Resource {
	t.Helper()
	r, err := NewResource(createTestRecord(t, name, parent))
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}
	return r
}

func testPlan() *Plan {
	steps := []engine.Step{
		{Name: "kube1-disk", Kind: resource.KindVolume, Parent: "kube1", Op: engine.OpSame},
		{Name: "kube1", Kind: resource.KindMachine, Op: engine.OpReplace, Fields: []string{"ramMiB", "env"}},
		{Name: "kube1/kubernetes-single", Kind: resource.KindConfiguration, Parent: "kube1", Op: engine.OpCreate, Pending: true},
	}
	exports := map[string]engine.Export{
		"kubeconfig": {Value: "apiVersion: v1\nclusters: []", Secret: true},
		"control":    {Value: "10.0.0.9"},
	}
	return NewPlan(steps, exports, false)
}

func TestNewResource_MasksSecrets(t *testing.T) {
	r := createTestResource(t, "kube1", "")

	if r.Outputs["result"] != state.SecretPlaceholder {
		t.Errorf("expected result to be masked, got %v", r.Outputs["result"])
	}
	if r.Outputs["address"] != "10.0.0.9" {
		t.Errorf("expected address 10.0.0.9, got %v", r.Outputs["address"])
	}
	if r.Inputs["name"] != "kube1" {
		t.Errorf("expected input name kube1, got %v", r.Inputs["name"])
	}
}

func TestNewResource_BadInputs(t *testing.T) {
	rec := createTestRecord(t, "kube1", "")
	rec.Inputs = json.RawMessage(`[1, 2]`)
	if _, err := NewResource(rec); err == nil {
		t.Error("expected an error for non-object inputs")
	}
}

func TestTableFormatter_FormatResourceList(t *testing.T) {
	tests := []struct {
		name      string
		resources []*Resource
		noHeaders bool
		want      []string
	}{
		{
			name:      "empty list",
			resources: nil,
			want:      []string{"No resources found"},
		},
		{
			name:      "with parent",
			resources: []*Resource{createTestResource(t, "node1", "kube1")},
			want:      []string{"NAME", "KIND", "node1", "Machine", "kube1", "5m"},
		},
		{
			name:      "no headers",
			resources: []*Resource{createTestResource(t, "kube1", "")},
			noHeaders: true,
			want:      []string{"kube1", "Machine", "-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TableFormatter{NoHeaders: tt.noHeaders, now: func() time.Time { return testNow }}
			output, err := formatter.FormatResourceList(tt.resources)
			if err != nil {
				t.Fatalf("FormatResourceList() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q: %s", want, output)
				}
			}
			if tt.noHeaders && strings.Contains(output, "NAME") {
				t.Errorf("output should not contain headers: %s", output)
			}
			if strings.Contains(output, "s3cr3t") {
				t.Errorf("output leaks a secret: %s", output)
			}
		})
	}
}

func TestTableFormatter_FormatPlan(t *testing.T) {
	formatter := &TableFormatter{}
	output, err := formatter.FormatPlan(testPlan())
	if err != nil {
		t.Fatalf("FormatPlan() error = %v", err)
	}

	for _, want := range []string{
		"OP", "same", "kube1-disk", "Volume",
		"replace", "ramMiB,env",
		"create (pending)", "Configuration",
		"Outputs:", "control", "10.0.0.9", "kubeconfig", "[secret]",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
	if strings.Contains(output, "apiVersion") {
		t.Errorf("output leaks a secret export: %s", output)
	}

	empty, err := formatter.FormatPlan(&Plan{})
	if err != nil {
		t.Fatalf("FormatPlan() error = %v", err)
	}
	if empty != "No changes\n" {
		t.Errorf("expected %q, got %q", "No changes\n", empty)
	}
}

func TestNewPlan_ShowSecrets(t *testing.T) {
	p := NewPlan(nil, map[string]engine.Export{"kubeconfig": {Value: "apiVersion: v1\nclusters: []", Secret: true}}, true)

	formatter := &TableFormatter{}
	output, err := formatter.FormatPlan(p)
	if err != nil {
		t.Fatalf("FormatPlan() error = %v", err)
	}
	if !strings.Contains(output, "apiVersion: v1 ...") {
		t.Errorf("expected the first line of the export: %s", output)
	}
}

func TestTableFormatter_FormatPools(t *testing.T) {
	pools := []storage.PoolInfo{
		{Name: "anvil-seeds", Type: storage.PoolTypeDir, State: "running", Path: "/var/lib/libvirt/images/anvil-seeds", Capacity: 100 << 30, Available: 90 << 30},
	}

	formatter := &TableFormatter{}
	output, err := formatter.FormatPools(pools)
	if err != nil {
		t.Fatalf("FormatPools() error = %v", err)
	}
	for _, want := range []string{"NAME", "anvil-seeds", "dir", "running", "100GiB", "90GiB"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}

	empty, _ := formatter.FormatPools(nil)
	if empty != "No pools found\n" {
		t.Errorf("expected empty message, got %q", empty)
	}
}

func TestTableFormatter_FormatMachine(t *testing.T) {
	spec := &machine.Spec{Name: "kube1", Address: "10.0.0.9", VolumeGroup: "vg0", DiskSizeGiB: 20, CPUCount: 2, RAMMiB: 4096}

	formatter := &TableFormatter{}
	output, err := formatter.FormatMachine(spec)
	if err != nil {
		t.Fatalf("FormatMachine() error = %v", err)
	}
	for _, want := range []string{"kube1", "10.0.0.9", "4GiB", "20GiB", "/dev/vg0/kube1"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}

func TestYAMLFormatter_FormatResourceList(t *testing.T) {
	tests := []struct {
		name          string
		resources     []*Resource
		wantEmpty     bool
		wantSeparator bool
	}{
		{
			name:      "empty list",
			resources: []*Resource{},
			wantEmpty: true,
		},
		{
			name:      "single resource",
			resources: []*Resource{createTestResource(t, "kube1", "")},
		},
		{
			name:          "multiple resources",
			resources:     []*Resource{createTestResource(t, "kube1", ""), createTestResource(t, "node1", "kube1")},
			wantSeparator: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &YAMLFormatter{}
			output, err := formatter.FormatResourceList(tt.resources)
			if err != nil {
				t.Fatalf("FormatResourceList() error = %v", err)
			}

			if tt.wantEmpty {
				if output != "" {
					t.Errorf("expected empty output, got: %s", output)
				}
				return
			}

			if tt.wantSeparator && !strings.Contains(output, "---") {
				t.Errorf("expected document separator: %s", output)
			}
			for _, r := range tt.resources {
				if !strings.Contains(output, "name: "+r.Name) {
					t.Errorf("output missing resource name %q", r.Name)
				}
			}
			if !strings.Contains(output, "result: '[secret]'") {
				t.Errorf("expected masked result: %s", output)
			}
		})
	}
}

func TestYAMLFormatter_FormatMachine(t *testing.T) {
	spec := &machine.Spec{Name: "kube1", Address: "10.0.0.9", CPUCount: 2}

	formatter := &YAMLFormatter{}
	output, err := formatter.FormatMachine(spec)
	if err != nil {
		t.Fatalf("FormatMachine() error = %v", err)
	}
	for _, want := range []string{"name: kube1", "address: 10.0.0.9", "cpuCount: 2"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}

func TestJSONFormatter_FormatResource(t *testing.T) {
	formatter := &JSONFormatter{}
	output, err := formatter.FormatResource(createTestResource(t, "kube1", ""))
	if err != nil {
		t.Fatalf("FormatResource() error = %v", err)
	}

	requiredFields := []string{
		`"urn": "urn:anvil:dev::anvil:compute:Machine::kube1"`,
		`"kind": "anvil:compute:Machine"`,
		`"name": "kube1"`,
		`"address": "10.0.0.9"`,
		`"result": "[secret]"`,
	}
	for _, field := range requiredFields {
		if !strings.Contains(output, field) {
			t.Errorf("output missing required field %q: %s", field, output)
		}
	}
}

func TestJSONFormatter_FormatResourceList(t *testing.T) {
	formatter := &JSONFormatter{}

	output, err := formatter.FormatResourceList(nil)
	if err != nil {
		t.Fatalf("FormatResourceList() error = %v", err)
	}
	if output != "[]\n" {
		t.Errorf("expected %q, got: %q", "[]\n", output)
	}

	output, err = formatter.FormatResourceList([]*Resource{createTestResource(t, "kube1", ""), createTestResource(t, "node1", "kube1")})
	if err != nil {
		t.Fatalf("FormatResourceList() error = %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(output), "[") {
		t.Errorf("expected output to start with '[': %s", output)
	}
	for _, name := range []string{"kube1", "node1"} {
		if !strings.Contains(output, name) {
			t.Errorf("output missing resource name %q", name)
		}
	}
}

func TestJSONFormatter_FormatPlan(t *testing.T) {
	formatter := &JSONFormatter{}
	output, err := formatter.FormatPlan(testPlan())
	if err != nil {
		t.Fatalf("FormatPlan() error = %v", err)
	}

	var decoded Plan
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(decoded.Steps))
	}
	if !decoded.Steps[2].Pending {
		t.Error("expected the configuration step to be pending")
	}
	if decoded.Exports["kubeconfig"] != state.SecretPlaceholder {
		t.Errorf("expected kubeconfig to be masked, got %q", decoded.Exports["kubeconfig"])
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name: "table format",
			opts: Options{Format: FormatTable},
		},
		{
			name: "yaml format",
			opts: Options{Format: FormatYAML},
		},
		{
			name: "json format",
			opts: Options{Format: FormatJSON},
		},
		{
			name:    "invalid format",
			opts:    Options{Format: "invalid"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter, err := NewFormatter(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFormatter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && formatter == nil {
				t.Error("NewFormatter() returned nil formatter")
			}
		})
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{
			name:   "valid table",
			format: "table",
		},
		{
			name:   "valid yaml",
			format: "yaml",
		},
		{
			name:   "valid json",
			format: "json",
		},
		{
			name:    "invalid format",
			format:  "xml",
			wantErr: true,
		},
		{
			name:    "empty format",
			format:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFormat(tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"5 seconds", 5 * time.Second, "5s"},
		{"90 seconds", 90 * time.Second, "1m"},
		{"90 minutes", 90 * time.Minute, "1h"},
		{"2 days", 48 * time.Hour, "2d"},
		{"2 weeks", 14 * 24 * time.Hour, "2w"},
		{"60 days", 60 * 24 * time.Hour, "60d"},
		{"400 days", 400 * 24 * time.Hour, "1y"},
		{"negative", -time.Second, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatAge(tt.duration)
			if got != tt.want {
				t.Errorf("formatAge(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}
