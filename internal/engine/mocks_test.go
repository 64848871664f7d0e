package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/state"
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

type fakeInputs struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Upstream string `json:"upstream,omitempty"`
}

type fakeOutputs struct {
	Value string `json:"value"`
	Token string `json:"token,omitempty"`
}

// fakeProvider replaces on size changes and updates on any other change.
type fakeProvider struct {
	kind        resource.Kind
	journal     *journal
	deleteFirst bool

	createErr map[string]error
	deleteErr map[string]error
}

func newFakeProvider(kind resource.Kind, j *journal) *fakeProvider {
	return &fakeProvider{kind: kind, journal: j, deleteFirst: true}
}

func (p *fakeProvider) Kind() resource.Kind { return p.kind }

func (p *fakeProvider) ID(in fakeInputs) string { return "id-" + in.Name }

func (p *fakeProvider) Create(_ context.Context, in fakeInputs) (string, fakeOutputs, error) {
	p.journal.add("create %s", in.Name)
	if err := p.createErr[in.Name]; err != nil {
		return "", fakeOutputs{}, err
	}
	return p.ID(in), fakeOutputs{Value: fmt.Sprintf("%s/%d", in.Name, in.Size), Token: "tok-" + in.Name}, nil
}

func (p *fakeProvider) Diff(_ context.Context, _ string, olds fakeInputs, _ fakeOutputs, news fakeInputs) (resource.DiffResult, error) {
	if olds.Size != news.Size {
		d := resource.ReplaceFields([]string{"size"})
		d.DeleteBeforeReplace = p.deleteFirst
		return d, nil
	}
	if olds.Upstream != news.Upstream {
		return resource.DiffResult{Changes: true, Fields: []string{"upstream"}}, nil
	}
	return resource.NoChanges, nil
}

func (p *fakeProvider) Update(_ context.Context, id string, _ fakeInputs, _ fakeOutputs, news fakeInputs) (fakeOutputs, error) {
	p.journal.add("update %s", news.Name)
	return fakeOutputs{Value: news.Name + "+" + news.Upstream, Token: "tok-" + news.Name}, nil
}

func (p *fakeProvider) Delete(_ context.Context, id string, olds fakeInputs, _ fakeOutputs) error {
	p.journal.add("delete %s", olds.Name)
	return p.deleteErr[olds.Name]
}

func fixed(in fakeInputs) func() (fakeInputs, error) {
	return func() (fakeInputs, error) { return in, nil }
}

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recordingObserver is a mock implementation of Observer.
type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveOperation(kind, op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.calls = append(o.calls, fmt.Sprintf("%s %s %s", kind, op, result))
}

// recordingPublisher is a mock implementation of events.Publisher.
type recordingPublisher struct {
	mu          sync.Mutex
	events      []events.Event
	publishFunc func(events.Event) error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	if p.publishFunc != nil {
		return p.publishFunc(e)
	}
	return nil
}

func (p *recordingPublisher) Close() {}
