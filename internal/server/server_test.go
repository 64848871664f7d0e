package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/engine"
	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/state"
)

const (
	kubeYAML = `hostname: kube1
ram: 2048
network:
  ip: 10.0.0.9
setup:
  env:
    IP: "10.0.0.9"
  playbook: /stacks/dev/playbooks/kubernetes-single.yaml
  artifacts:
    k8s_token: /root/k8s_token
    k8s_ca: /root/k8s_ca
    k8s_config: /root/.kube/config
`
	nodeYAML = `hostname: node1
network:
  ip: 10.0.0.10
setup:
  env:
    CONTROLPLANEIP: ${kube1.address}
    TOKEN: ${kube1.artifacts.k8s_token}
    CA: ${kube1.artifacts.k8s_ca}
  playbook: /stacks/dev/playbooks/kubernetes-node.yaml
`
	dbYAML = `hostname: db1
cpu: 4
network:
  ip: 10.0.0.8
setup:
  env:
    SERVERID: "11"
  scripts:
    - /db/init.sh primary
  results:
    version: /etc/mariadb_version
`
)

// testStack lists the node before the control plane it depends on.
func testStack(t *testing.T) *config.Stack {
	t.Helper()
	return &config.Stack{
		Name: "dev",
		Servers: []config.StackServer{
			{Server: parseServer(t, nodeYAML), Parent: "kube1"},
			{Server: parseServer(t, kubeYAML)},
		},
		Exports: map[string]string{
			"kubeconfig": "${kube1.artifacts.k8s_config}",
			"control":    "${kube1.address}",
			"owner":      "ops",
		},
	}
}

func TestRegister_SingleServer(t *testing.T) {
	f := newFakes()
	e := engine.New("dev", newTestStore(t))

	db := parseServer(t, dbYAML)
	s, err := Register(e, f.providers(), Descriptor{
		Hostname:    db.Hostname,
		Address:     db.Network.IP,
		Gateway:     db.Network.Gateway,
		VolumeGroup: db.Disk.VolumeGroup,
		DiskSizeGiB: db.DiskSizeGiB(),
		CPUCount:    db.CPU,
		RAMMiB:      db.RAM,
		Env:         map[string]Value{"SERVERID": Literal("11")},
		Scripts:     db.Scripts(),
		Results:     db.Setup.Results,
	})
	require.NoError(t, err)
	assert.Equal(t, "db1", s.Name())

	res, err := e.Up(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"create volume db1", "create machine db1"}, f.journal.Entries())
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "db1-disk", res.Steps[0].Name)
	assert.Equal(t, "db1", res.Steps[0].Parent)
	assert.Equal(t, "db1", res.Steps[1].Name)
	assert.Equal(t, state.SecretPlaceholder, res.Steps[1].Outputs["result"])
	assert.Equal(t, "10.0.0.8", res.Steps[1].Outputs["address"])

	spec := f.machines.spec("db1")
	assert.Equal(t, 4, spec.CPUCount)
	assert.Equal(t, 10, spec.DiskSizeGiB)
	assert.Equal(t, map[string]string{"SERVERID": "11"}, spec.Env)
	assert.Equal(t, []machine.Script{{Path: "/db/init.sh", Args: []string{"primary"}}}, spec.Scripts)

	addr, err := s.Address().Resolve()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.8", addr)

	artifacts, err := s.Artifacts()
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	_, err = s.Artifact("token").Resolve()
	assert.ErrorContains(t, err, "no playbook")
}

func TestRegister_DiskResizeRecreatesMachine(t *testing.T) {
	f := newFakes()
	store := newTestStore(t)
	ctx := context.Background()
	db := parseServer(t, dbYAML)

	up := func(sizeGiB int) *engine.Result {
		e := engine.New("dev", store)
		_, err := Register(e, f.providers(), Descriptor{
			Hostname:    db.Hostname,
			Address:     db.Network.IP,
			VolumeGroup: db.Disk.VolumeGroup,
			DiskSizeGiB: sizeGiB,
			CPUCount:    db.CPU,
			RAMMiB:      db.RAM,
		})
		require.NoError(t, err)
		res, err := e.Up(ctx)
		require.NoError(t, err)
		return res
	}

	up(10)
	res := up(20)

	deleteMachine := f.journal.indexOf("delete machine db1")
	deleteVolume := f.journal.indexOf("delete volume vg0/db1")
	require.GreaterOrEqual(t, deleteMachine, 0)
	assert.Less(t, deleteMachine, deleteVolume)
	assert.Equal(t, []string{"create volume db1", "create machine db1"}, f.journal.Entries()[deleteVolume+1:])
	assert.Equal(t, 20, f.machines.spec("db1").DiskSizeGiB)

	require.Len(t, res.Steps, 3)
	assert.Equal(t, engine.OpDelete, res.Steps[0].Op)
	assert.Equal(t, engine.OpReplace, res.Steps[1].Op)
	assert.Equal(t, engine.OpCreate, res.Steps[2].Op)
}

func TestRegister_MissingProvider(t *testing.T) {
	e := engine.New("dev", newTestStore(t))
	_, err := Register(e, Providers{}, Descriptor{Hostname: "db1"})
	assert.Error(t, err)

	_, err = Register(e, newFakes().providers(), Descriptor{})
	assert.ErrorContains(t, err, "hostname is required")
}

func TestRegister_DuplicateHostname(t *testing.T) {
	f := newFakes()
	e := engine.New("dev", newTestStore(t))
	d := Descriptor{Hostname: "db1", Address: "10.0.0.8"}

	_, err := Register(e, f.providers(), d)
	require.NoError(t, err)
	_, err = Register(e, f.providers(), d)
	assert.ErrorContains(t, err, "already registered")
}

func TestRegisterStack_DataDependencyOrder(t *testing.T) {
	f := newFakes()
	e := engine.New("dev", newTestStore(t))

	st, err := RegisterStack(e, f.providers(), testStack(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"kube1", "node1"}, st.Names())
	require.NotNil(t, st.Server("kube1"))
	assert.Nil(t, st.Server("nope"))

	res, err := e.Up(context.Background())
	require.NoError(t, err)

	// The node is configured only after the control plane's artifacts
	// exist.
	kubeConfigured := f.journal.indexOf("create configuration kube1")
	require.GreaterOrEqual(t, kubeConfigured, 0)
	assert.Greater(t, f.journal.indexOf("create machine node1"), kubeConfigured)
	assert.Greater(t, f.journal.indexOf("create configuration node1"), kubeConfigured)

	node := f.playbooks.spec("node1")
	assert.Equal(t, "10.0.0.10", node.TargetAddress)
	assert.Equal(t, map[string]string{
		"CONTROLPLANEIP": "10.0.0.9",
		"TOKEN":          "kube1:k8s_token",
		"CA":             "kube1:k8s_ca",
	}, node.Env)
	assert.Equal(t, node.Env, f.machines.spec("node1").Env)

	assert.Equal(t, engine.Export{Value: "kube1:k8s_config", Secret: true}, res.Exports["kubeconfig"])
	assert.Equal(t, engine.Export{Value: "10.0.0.9"}, res.Exports["control"])
	assert.Equal(t, engine.Export{Value: "ops"}, res.Exports["owner"])

	var configured engine.Step
	for _, step := range res.Steps {
		if step.Name == "kube1/kubernetes-single" {
			configured = step
		}
	}
	assert.Equal(t, "kube1", configured.Parent)
	assert.Equal(t, state.SecretPlaceholder, configured.Outputs["artifacts"])

	for _, step := range res.Steps {
		if step.Name == "node1" {
			assert.Equal(t, "kube1", step.Parent)
		}
	}
}

func TestRegisterStack_Idempotent(t *testing.T) {
	f := newFakes()
	store := newTestStore(t)

	e := engine.New("dev", store)
	_, err := RegisterStack(e, f.providers(), testStack(t))
	require.NoError(t, err)
	_, err = e.Up(context.Background())
	require.NoError(t, err)
	created := len(f.journal.Entries())

	e = engine.New("dev", store)
	_, err = RegisterStack(e, f.providers(), testStack(t))
	require.NoError(t, err)
	res, err := e.Up(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.journal.Entries(), created, "nothing is touched on a second run")
	for _, step := range res.Steps {
		assert.Equal(t, engine.OpSame, step.Op, step.Name)
	}
	assert.Equal(t, "kube1:k8s_config", res.Exports["kubeconfig"].Value)
}

func TestRegisterStack_Preview(t *testing.T) {
	f := newFakes()
	e := engine.New("dev", newTestStore(t))
	_, err := RegisterStack(e, f.providers(), testStack(t))
	require.NoError(t, err)

	steps, err := e.Preview(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.journal.Entries())

	pending := map[string]bool{}
	for _, step := range steps {
		assert.Equal(t, engine.OpCreate, step.Op)
		pending[step.Name] = step.Pending
	}
	assert.False(t, pending["kube1"])
	assert.True(t, pending["kube1/kubernetes-single"], "the configuration waits for the machine address")
	assert.True(t, pending["node1"], "the node waits for the control plane artifacts")
	assert.False(t, pending["node1-disk"])
}

func TestRegisterStack_Destroy(t *testing.T) {
	f := newFakes()
	store := newTestStore(t)
	e := engine.New("dev", store)
	_, err := RegisterStack(e, f.providers(), testStack(t))
	require.NoError(t, err)
	_, err = e.Up(context.Background())
	require.NoError(t, err)

	_, err = e.Destroy(context.Background())
	require.NoError(t, err)

	// Dependents go first.
	assert.Less(t, f.journal.indexOf("delete configuration node1//stacks/dev/playbooks/kubernetes-node.yaml"), f.journal.indexOf("delete machine kube1"))
	assert.Less(t, f.journal.indexOf("delete machine node1"), f.journal.indexOf("delete volume vg0/node1"))

	recs, err := store.ListStack(context.Background(), "dev")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRegisterStack_Cycle(t *testing.T) {
	a := parseServer(t, "hostname: a\nnetwork:\n  ip: 10.0.0.20\nsetup:\n  env:\n    PEER: ${b.address}\n")
	b := parseServer(t, "hostname: b\nnetwork:\n  ip: 10.0.0.21\nsetup:\n  env:\n    PEER: ${a.address}\n")

	e := engine.New("dev", newTestStore(t))
	_, err := RegisterStack(e, newFakes().providers(), &config.Stack{
		Name:    "dev",
		Servers: []config.StackServer{{Server: a}, {Server: b}},
	})
	assert.ErrorContains(t, err, "cycle")
}

func TestArtifactOf_Missing(t *testing.T) {
	f := newFakes()
	e := engine.New("dev", newTestStore(t))
	st, err := RegisterStack(e, f.providers(), testStack(t))
	require.NoError(t, err)

	kube := st.Server("kube1")
	_, err = kube.Artifact("k8s_token").Resolve()
	assert.True(t, errors.Is(err, engine.ErrOutputNotReady))

	_, err = e.Up(context.Background())
	require.NoError(t, err)

	_, err = kube.Artifact("admin").Resolve()
	assert.ErrorContains(t, err, `no artifact "admin"`)

	artifacts, err := kube.Artifacts()
	require.NoError(t, err)
	assert.Len(t, artifacts, 3)
}
