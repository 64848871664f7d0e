package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/playbook"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/state"
	"github.com/jbweber/anvil/internal/volume"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// indexOf returns the position of entry, or -1.
func (j *journal) indexOf(entry string) int {
	for i, e := range j.Entries() {
		if e == entry {
			return i
		}
	}
	return -1
}

type fakeVolumes struct{ journal *journal }

func (f *fakeVolumes) Kind() resource.Kind { return resource.KindVolume }

func (f *fakeVolumes) ID(s volume.Spec) string { return s.VolumeGroup + "/" + s.Name }

func (f *fakeVolumes) Create(_ context.Context, s volume.Spec) (string, volume.Outputs, error) {
	f.journal.add("create volume %s", s.Name)
	return f.ID(s), volume.Outputs{DevicePath: "/dev/" + f.ID(s)}, nil
}

func (f *fakeVolumes) Diff(_ context.Context, _ string, olds volume.Spec, _ volume.Outputs, news volume.Spec) (resource.DiffResult, error) {
	return resource.ReplaceFields(resource.ChangedFields(olds, news)), nil
}

func (f *fakeVolumes) Update(context.Context, string, volume.Spec, volume.Outputs, volume.Spec) (volume.Outputs, error) {
	return volume.Outputs{}, resource.ErrUpdateUnsupported
}

func (f *fakeVolumes) Delete(_ context.Context, id string, _ volume.Spec, _ volume.Outputs) error {
	f.journal.add("delete volume %s", id)
	return nil
}

type fakeMachines struct {
	journal *journal
	mu      sync.Mutex
	specs   map[string]machine.Spec
}

func (f *fakeMachines) Kind() resource.Kind { return resource.KindMachine }

func (f *fakeMachines) ID(s machine.Spec) string { return s.Name }

func (f *fakeMachines) Create(_ context.Context, s machine.Spec) (string, machine.Outputs, error) {
	f.journal.add("create machine %s", s.Name)
	f.mu.Lock()
	if f.specs == nil {
		f.specs = map[string]machine.Spec{}
	}
	f.specs[s.Name] = s
	f.mu.Unlock()

	result := map[string]string{}
	for k := range s.ResultFiles {
		result[k] = "result-" + k
	}
	return s.Name, machine.Outputs{Address: s.Address, DevicePath: s.DevicePath(), Result: result}, nil
}

func (f *fakeMachines) Diff(_ context.Context, _ string, olds machine.Spec, _ machine.Outputs, news machine.Spec) (resource.DiffResult, error) {
	return resource.ReplaceFields(resource.ChangedFields(olds, news)), nil
}

func (f *fakeMachines) Update(context.Context, string, machine.Spec, machine.Outputs, machine.Spec) (machine.Outputs, error) {
	return machine.Outputs{}, resource.ErrUpdateUnsupported
}

func (f *fakeMachines) Delete(_ context.Context, id string, _ machine.Spec, _ machine.Outputs) error {
	f.journal.add("delete machine %s", id)
	return nil
}

func (f *fakeMachines) spec(name string) machine.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[name]
}

type fakePlaybooks struct {
	journal *journal
	mu      sync.Mutex
	specs   map[string]playbook.Spec
}

func (f *fakePlaybooks) Kind() resource.Kind { return resource.KindConfiguration }

func (f *fakePlaybooks) ID(s playbook.Spec) string { return s.HostName + "/" + s.SourcePath }

func (f *fakePlaybooks) Create(_ context.Context, s playbook.Spec) (string, playbook.Outputs, error) {
	f.journal.add("create configuration %s", s.HostName)
	f.mu.Lock()
	if f.specs == nil {
		f.specs = map[string]playbook.Spec{}
	}
	f.specs[s.HostName] = s
	f.mu.Unlock()

	artifacts := map[string]string{}
	keys := make([]string, 0, len(s.Artifacts))
	for k := range s.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		artifacts[k] = s.HostName + ":" + k
	}
	return f.ID(s), playbook.Outputs{Artifacts: artifacts, Hash: "d41d8cd98f00b204e9800998ecf8427e"}, nil
}

func (f *fakePlaybooks) Diff(_ context.Context, _ string, olds playbook.Spec, _ playbook.Outputs, news playbook.Spec) (resource.DiffResult, error) {
	if olds.SourcePath != news.SourcePath {
		return resource.DiffResult{Changes: true, Fields: []string{"sourcePath"}}, nil
	}
	return resource.NoChanges, nil
}

func (f *fakePlaybooks) Update(_ context.Context, _ string, _ playbook.Spec, olds playbook.Outputs, news playbook.Spec) (playbook.Outputs, error) {
	f.journal.add("update configuration %s", news.HostName)
	return olds, nil
}

func (f *fakePlaybooks) Delete(_ context.Context, id string, _ playbook.Spec, _ playbook.Outputs) error {
	f.journal.add("delete configuration %s", id)
	return nil
}

func (f *fakePlaybooks) spec(host string) playbook.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[host]
}

type fakes struct {
	journal   *journal
	volumes   *fakeVolumes
	machines  *fakeMachines
	playbooks *fakePlaybooks
}

func newFakes() *fakes {
	j := &journal{}
	return &fakes{
		journal:   j,
		volumes:   &fakeVolumes{journal: j},
		machines:  &fakeMachines{journal: j},
		playbooks: &fakePlaybooks{journal: j},
	}
}

func (f *fakes) providers() Providers {
	return Providers{Volumes: f.volumes, Machines: f.machines, Configurations: f.playbooks}
}

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func parseServer(t *testing.T, yaml string) *config.Server {
	t.Helper()
	s, err := config.ParseServer([]byte(yaml))
	require.NoError(t, err)
	return s
}
