package machine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/command"
)

// journal records calls across mocks in the order they happened.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// mockDomainClient is a mock implementation of DomainClient.
type mockDomainClient struct {
	mu      sync.Mutex
	journal *journal

	// Configurable behavior
	domainLookupByNameFunc      func(name string) (libvirt.Domain, error)
	domainDefineXMLFunc         func(xml string) (libvirt.Domain, error)
	domainCreateFunc            func(dom libvirt.Domain) error
	domainGetStateFunc          func(dom libvirt.Domain) (int32, error)
	domainShutdownFunc          func(dom libvirt.Domain) error
	domainDestroyFunc           func(dom libvirt.Domain) error
	domainUndefineFunc          func(dom libvirt.Domain) error
	domainDetachDeviceFlagsFunc func(dom libvirt.Domain, xml string, flags uint32) error
	domainSetMetadataFunc       func(dom libvirt.Domain, metadata string) error

	// Call tracking
	domainDefineXMLCalls         []string
	domainCreateCalls            []libvirt.Domain
	domainGetStateCalls          int
	domainShutdownCalls          []libvirt.Domain
	domainDestroyCalls           []libvirt.Domain
	domainUndefineCalls          []libvirt.Domain
	domainDetachDeviceFlagsCalls []string
	domainDetachDeviceFlagsFlags []uint32
	metadata                     string
}

// newMockDomainClient returns a client where the domain does not exist
// until it is defined, and shuts off as soon as it is asked to.
func newMockDomainClient(j *journal) *mockDomainClient {
	m := &mockDomainClient{journal: j}
	shutoff := false

	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		if len(m.domainDefineXMLCalls) > 0 {
			return libvirt.Domain{Name: name}, nil
		}
		return libvirt.Domain{}, libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found: " + name}
	}
	m.domainDefineXMLFunc = func(xml string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: "kube1"}, nil
	}
	m.domainCreateFunc = func(libvirt.Domain) error {
		shutoff = false
		return nil
	}
	m.domainGetStateFunc = func(libvirt.Domain) (int32, error) {
		if shutoff {
			return domainStateShutoff, nil
		}
		return int32(libvirt.DomainRunning), nil
	}
	m.domainShutdownFunc = func(libvirt.Domain) error {
		shutoff = true
		return nil
	}
	m.domainDestroyFunc = func(libvirt.Domain) error {
		shutoff = true
		return nil
	}
	m.domainUndefineFunc = func(libvirt.Domain) error { return nil }
	m.domainDetachDeviceFlagsFunc = func(libvirt.Domain, string, uint32) error { return nil }
	m.domainSetMetadataFunc = func(libvirt.Domain, string) error { return nil }
	return m
}

func (m *mockDomainClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainLookupByNameFunc(name)
}

func (m *mockDomainClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("define")
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	return m.domainDefineXMLFunc(xml)
}

func (m *mockDomainClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("start")
	m.domainCreateCalls = append(m.domainCreateCalls, dom)
	return m.domainCreateFunc(dom)
}

func (m *mockDomainClient) DomainGetState(dom libvirt.Domain, _ uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainGetStateCalls++
	state, err := m.domainGetStateFunc(dom)
	return state, 0, err
}

func (m *mockDomainClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("shutdown")
	m.domainShutdownCalls = append(m.domainShutdownCalls, dom)
	return m.domainShutdownFunc(dom)
}

func (m *mockDomainClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("destroy")
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom)
	return m.domainDestroyFunc(dom)
}

func (m *mockDomainClient) DomainUndefine(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("undefine")
	m.domainUndefineCalls = append(m.domainUndefineCalls, dom)
	return m.domainUndefineFunc(dom)
}

func (m *mockDomainClient) DomainDetachDeviceFlags(dom libvirt.Domain, xml string, flags uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("detach")
	m.domainDetachDeviceFlagsCalls = append(m.domainDetachDeviceFlagsCalls, xml)
	m.domainDetachDeviceFlagsFlags = append(m.domainDetachDeviceFlagsFlags, flags)
	return m.domainDetachDeviceFlagsFunc(dom, xml, flags)
}

func (m *mockDomainClient) DomainSetMetadata(dom libvirt.Domain, _ int32, metadata libvirt.OptString, _ libvirt.OptString, _ libvirt.OptString, _ libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("metadata")
	var value string
	if len(metadata) > 0 {
		value = metadata[0]
	}
	if err := m.domainSetMetadataFunc(dom, value); err != nil {
		return err
	}
	m.metadata = value
	return nil
}

func (m *mockDomainClient) DomainGetMetadata(libvirt.Domain, int32, libvirt.OptString, libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metadata == "" {
		return "", fmt.Errorf("metadata not found")
	}
	return m.metadata, nil
}

type upload struct {
	Local  string
	Remote string
}

// mockRemote is a mock implementation of Remote.
type mockRemote struct {
	mu      sync.Mutex
	journal *journal

	// Configurable behavior
	probeFunc      func(attempt int) error
	runFunc        func(cmd string) (command.Result, error)
	uploadFunc     func(local, remote string) error
	recordHostFunc func(host string) error

	// Call tracking
	probeCalls      int
	runCalls        []string
	uploadCalls     []upload
	purgeHostCalls  []string
	recordHostCalls []string
}

func newMockRemote(j *journal) *mockRemote {
	return &mockRemote{journal: j}
}

func (m *mockRemote) Probe(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeCalls++
	m.journal.add("probe")
	if m.probeFunc != nil {
		return m.probeFunc(m.probeCalls)
	}
	return nil
}

func (m *mockRemote) Run(_ context.Context, _ string, cmd string) (command.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("run %s", cmd)
	m.runCalls = append(m.runCalls, cmd)
	if m.runFunc != nil {
		return m.runFunc(cmd)
	}
	return command.Result{}, nil
}

func (m *mockRemote) Upload(_ context.Context, _ string, localPath, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("upload %s %s", localPath, remotePath)
	m.uploadCalls = append(m.uploadCalls, upload{Local: localPath, Remote: remotePath})
	if m.uploadFunc != nil {
		return m.uploadFunc(localPath, remotePath)
	}
	return nil
}

func (m *mockRemote) PurgeHost(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("purge %s", host)
	m.purgeHostCalls = append(m.purgeHostCalls, host)
	return nil
}

func (m *mockRemote) RecordHost(_ context.Context, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal.add("record %s", host)
	m.recordHostCalls = append(m.recordHostCalls, host)
	if m.recordHostFunc != nil {
		return m.recordHostFunc(host)
	}
	return nil
}

// mockSeedStore is a mock implementation of SeedStore.
type mockSeedStore struct {
	journal *journal

	storeSeedErr  error
	removeSeedErr error

	stored  map[string][]byte
	removed []string
}

func newMockSeedStore(j *journal) *mockSeedStore {
	return &mockSeedStore{journal: j, stored: make(map[string][]byte)}
}

func (m *mockSeedStore) StoreSeed(_ context.Context, name string, data []byte) (string, error) {
	m.journal.add("seed %s", name)
	if m.storeSeedErr != nil {
		return "", m.storeSeedErr
	}
	m.stored[name] = data
	return "/var/lib/libvirt/images/anvil-seeds/" + name, nil
}

func (m *mockSeedStore) RemoveSeed(_ context.Context, name string) error {
	m.removed = append(m.removed, name)
	return m.removeSeedErr
}

// mockImager is a mock implementation of DiskImager.
type mockImager struct {
	journal *journal
	err     error
	calls   []string
}

func (m *mockImager) Image(_ context.Context, baseImage, devicePath string, sizeGiB int) error {
	m.journal.add("image %s", devicePath)
	m.calls = append(m.calls, fmt.Sprintf("%s %s %d", baseImage, devicePath, sizeGiB))
	return m.err
}

// countingRecorder counts polling metrics.
type countingRecorder struct {
	ready, unreachable, detach int
}

func (r *countingRecorder) ProbeAttempt(ready bool) {
	if ready {
		r.ready++
	} else {
		r.unreachable++
	}
}

func (r *countingRecorder) DetachAttempt() { r.detach++ }

// fakeClock advances only when sleep is called.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}
