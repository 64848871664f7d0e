package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/state"
	"github.com/jbweber/anvil/internal/tracing"
)

// Store is the subset of *state.Store the engine needs.
type Store interface {
	Get(ctx context.Context, urn string) (*state.Record, error)
	Put(ctx context.Context, rec *state.Record) error
	Delete(ctx context.Context, urn string) error
	ListStack(ctx context.Context, stack string) ([]*state.Record, error)
}

// Observer receives one call per provider operation. *metrics.Metrics
// satisfies it.
type Observer interface {
	ObserveOperation(kind, op string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration, error) {}

// Op is what happens to a resource.
type Op string

const (
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
	OpSame    Op = "same"
)

// Step reports what happened, or would happen, to one resource.
type Step struct {
	URN    string
	Name   string
	Kind   resource.Kind
	Parent string
	Op     Op
	// Fields lists the inputs that changed.
	Fields []string
	// Pending is set in previews when the inputs depend on outputs that
	// are not known until the dependency is applied.
	Pending bool
	// Outputs holds the outputs after the step with secrets masked. It is
	// empty for previews and deletions.
	Outputs map[string]any
}

// Export is a named program output.
type Export struct {
	Value  string
	Secret bool
}

// Result is the outcome of Up.
type Result struct {
	Steps   []Step
	Exports map[string]Export
}

type node struct {
	name    string
	urn     string
	kind    resource.Kind
	deps    []string
	parent  string
	secrets []string
	impl    impl
}

type export struct {
	value  func() (string, error)
	secret bool
}

// Engine runs one stack's resources.
type Engine struct {
	stack    string
	store    Store
	logger   *zap.SugaredLogger
	observer Observer
	tracer   trace.Tracer
	events   events.Publisher
	now      func() time.Time

	nodes    []*node
	byName   map[string]*node
	deleters map[resource.Kind]deleteFunc
	exports  map[string]export
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) EngineOption {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithObserver sends operation metrics to o.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithTracer traces operations with t.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithEvents publishes lifecycle events to p.
func WithEvents(p events.Publisher) EngineOption {
	return func(e *Engine) { e.events = p }
}

// New creates an Engine for stack backed by store.
func New(stack string, store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		stack:    stack,
		store:    store,
		logger:   logging.OrNop(nil),
		observer: nopObserver{},
		tracer:   tracing.Tracer(),
		events:   events.Nop{},
		now:      time.Now,
		byName:   map[string]*node{},
		deleters: map[resource.Kind]deleteFunc{},
		exports:  map[string]export{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stack returns the stack name.
func (e *Engine) Stack() string {
	return e.stack
}

// Provide makes p available for deleting recorded resources of its kind
// even when none is registered.
func Provide[I, O any](e *Engine, p resource.Provider[I, O]) {
	e.deleters[p.Kind()] = deleter(p)
}

// Register adds a resource named name to the graph. inputs is called right
// before the resource is processed.
func Register[I, O any](e *Engine, name string, p resource.Provider[I, O], inputs func() (I, error), opts ...Option) (*Handle[O], error) {
	if name == "" {
		return nil, fmt.Errorf("resource name is required")
	}
	if _, ok := e.byName[name]; ok {
		return nil, fmt.Errorf("resource %q is already registered", name)
	}

	t := &typed[I, O]{provider: p, inputs: inputs}
	n := &node{
		name: name,
		urn:  state.URN(e.stack, p.Kind(), name),
		kind: p.Kind(),
		impl: t,
	}
	for _, opt := range opts {
		opt(n)
	}

	e.nodes = append(e.nodes, n)
	e.byName[name] = n
	Provide(e, p)

	return &Handle[O]{
		name: name,
		get:  func() (O, bool) { return t.outputs, t.ready },
	}, nil
}

// Export declares a program output computed after Up succeeds.
func (e *Engine) Export(name string, secret bool, value func() (string, error)) {
	e.exports[name] = export{value: value, secret: secret}
}

func (e *Engine) order() ([]*node, error) {
	names := make([]string, len(e.nodes))
	for i, n := range e.nodes {
		names[i] = n.name
		for _, d := range n.deps {
			if _, ok := e.byName[d]; !ok {
				return nil, fmt.Errorf("resource %q depends on unknown resource %q", n.name, d)
			}
		}
	}

	sorted, err := topoSort(names, func(name string) []string { return e.byName[name].deps })
	if err != nil {
		return nil, err
	}
	out := make([]*node, len(sorted))
	for i, name := range sorted {
		out[i] = e.byName[name]
	}
	return out, nil
}

func (e *Engine) lookup(ctx context.Context, urn string) (*state.Record, error) {
	rec, err := e.store.Get(ctx, urn)
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// run performs one provider operation with tracing, metrics and events.
func (e *Engine) run(ctx context.Context, urn, name string, kind resource.Kind, op Op, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "anvil."+string(op), trace.WithAttributes(
		attribute.String("anvil.stack", e.stack),
		attribute.String("anvil.urn", urn),
		attribute.String("anvil.kind", string(kind)),
	))
	defer span.End()

	ev := events.Event{Stack: e.stack, URN: urn, Kind: string(kind), Name: name, Op: string(op)}
	e.publish(ctx, ev, events.StatusStarted, 0, nil)

	start := e.now()
	err := fn(ctx)
	d := e.now().Sub(start)

	e.observer.ObserveOperation(string(kind), string(op), d, err)
	status := events.StatusSucceeded
	if err != nil {
		status = events.StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.publish(ctx, ev, status, d, err)
	return err
}

func (e *Engine) publish(ctx context.Context, ev events.Event, status string, d time.Duration, err error) {
	ev.Status = status
	ev.Time = e.now()
	ev.DurationMS = d.Milliseconds()
	if err != nil {
		ev.Error = err.Error()
	}
	if perr := e.events.Publish(ctx, ev); perr != nil {
		e.logger.Warnw("failed to publish event", "urn", ev.URN, "error", perr)
	}
}

// save records n's current inputs and outputs under id.
func (e *Engine) save(ctx context.Context, n *node, id string, prev *state.Record) (*state.Record, error) {
	inputs, outputs, err := n.impl.encode()
	if err != nil {
		return nil, err
	}

	deps := make([]string, len(n.deps))
	for i, d := range n.deps {
		deps[i] = e.byName[d].urn
	}

	now := e.now().UTC()
	rec := &state.Record{
		URN:          n.urn,
		Kind:         n.kind,
		Name:         n.name,
		ID:           id,
		Inputs:       inputs,
		Outputs:      outputs,
		Secrets:      n.secrets,
		Parent:       n.parent,
		Dependencies: deps,
		Created:      now,
		Updated:      now,
	}
	if prev != nil && prev.ID == id {
		rec.Created = prev.Created
	}
	if err := e.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", n.urn, err)
	}
	return rec, nil
}

func (e *Engine) step(n *node, op Op, fields []string) Step {
	return Step{URN: n.urn, Name: n.name, Kind: n.kind, Parent: n.parent, Op: op, Fields: fields}
}

// Up brings every registered resource to its desired state. It stops at
// the first failure; resources already processed are not rolled back.
func (e *Engine) Up(ctx context.Context) (*Result, error) {
	order, err := e.order()
	if err != nil {
		return nil, err
	}

	result := &Result{Exports: map[string]Export{}}
	for _, n := range order {
		steps, err := e.up(ctx, n)
		result.Steps = append(result.Steps, steps...)
		if err != nil {
			return result, fmt.Errorf("failed to apply %s: %w", n.name, err)
		}
	}

	deleted, err := e.deleteOrphans(ctx)
	result.Steps = append(result.Steps, deleted...)
	if err != nil {
		return result, err
	}

	names := make([]string, 0, len(e.exports))
	for name := range e.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		x := e.exports[name]
		v, err := x.value()
		if err != nil {
			return result, fmt.Errorf("failed to compute export %s: %w", name, err)
		}
		result.Exports[name] = Export{Value: v, Secret: x.secret}
	}
	return result, nil
}

// up processes n. The returned steps end with n's own step once it has
// been applied; dependents deleted ahead of a replacement come first.
func (e *Engine) up(ctx context.Context, n *node) ([]Step, error) {
	log := e.logger.With("resource", n.name)

	if err := n.impl.resolve(); err != nil {
		return nil, fmt.Errorf("failed to resolve inputs: %w", err)
	}
	prev, err := e.lookup(ctx, n.urn)
	if err != nil {
		return nil, err
	}

	var rec *state.Record
	var step Step
	var steps []Step
	switch {
	case prev == nil:
		log.Infof("Creating %s...", n.name)
		step = e.step(n, OpCreate, nil)
		rec, err = e.create(ctx, n, nil)

	default:
		var diff resource.DiffResult
		diff, err = n.impl.diff(ctx, prev)
		if err != nil {
			return nil, fmt.Errorf("failed to diff: %w", err)
		}

		switch {
		case !diff.Changes:
			log.Infof("%s is up to date", n.name)
			step = e.step(n, OpSame, nil)
			rec = prev
			err = n.impl.adopt(prev)

		case diff.Replace:
			log.Infof("Replacing %s (changed: %v)...", n.name, diff.Fields)
			step = e.step(n, OpReplace, diff.Fields)
			if diff.DeleteBeforeReplace {
				steps, err = e.deleteDependents(ctx, prev)
				if err != nil {
					return steps, err
				}
			}
			rec, err = e.replace(ctx, n, prev, diff.DeleteBeforeReplace)

		default:
			log.Infof("Updating %s (changed: %v)...", n.name, diff.Fields)
			step = e.step(n, OpUpdate, diff.Fields)
			err = e.run(ctx, n.urn, n.name, n.kind, OpUpdate, func(ctx context.Context) error {
				return n.impl.update(ctx, prev)
			})
			if err == nil {
				rec, err = e.save(ctx, n, prev.ID, prev)
			}
		}
	}
	if err != nil {
		return steps, err
	}

	step.Outputs, err = rec.MaskedOutputs()
	if err != nil {
		return steps, err
	}
	return append(steps, step), nil
}

func (e *Engine) create(ctx context.Context, n *node, prev *state.Record) (*state.Record, error) {
	var id string
	err := e.run(ctx, n.urn, n.name, n.kind, OpCreate, func(ctx context.Context) error {
		var err error
		id, err = n.impl.create(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.save(ctx, n, id, prev)
}

func (e *Engine) remove(ctx context.Context, rec *state.Record) error {
	del, ok := e.deleters[rec.Kind]
	if !ok {
		return fmt.Errorf("no provider for %s", rec.Kind)
	}
	err := e.run(ctx, rec.URN, rec.Name, rec.Kind, OpDelete, func(ctx context.Context) error {
		return del(ctx, rec)
	})
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, rec.URN); err != nil {
		return fmt.Errorf("failed to erase %s: %w", rec.URN, err)
	}
	return nil
}

func (e *Engine) replace(ctx context.Context, n *node, prev *state.Record, deleteFirst bool) (*state.Record, error) {
	if deleteFirst {
		if err := e.remove(ctx, prev); err != nil {
			return nil, err
		}
		return e.create(ctx, n, nil)
	}

	rec, err := e.create(ctx, n, prev)
	if err != nil {
		return nil, err
	}
	del := e.deleters[prev.Kind]
	err = e.run(ctx, prev.URN, prev.Name, prev.Kind, OpDelete, func(ctx context.Context) error {
		return del(ctx, prev)
	})
	return rec, err
}

// deleteDependents deletes every recorded resource that depends on prev,
// directly or through another resource, dependents first. The forward pass
// creates them again.
func (e *Engine) deleteDependents(ctx context.Context, prev *state.Record) ([]Step, error) {
	recs, err := e.store.ListStack(ctx, e.stack)
	if err != nil {
		return nil, err
	}

	doomed := map[string]bool{prev.URN: true}
	var dependents []*state.Record
	for changed := true; changed; {
		changed = false
		for _, r := range recs {
			if doomed[r.URN] {
				continue
			}
			for _, d := range r.Dependencies {
				if doomed[d] {
					doomed[r.URN] = true
					dependents = append(dependents, r)
					changed = true
					break
				}
			}
		}
	}

	ordered, err := deleteOrder(dependents)
	if err != nil {
		return nil, err
	}
	var steps []Step
	for _, rec := range ordered {
		e.logger.Infof("Deleting %s before %s is replaced...", rec.Name, prev.Name)
		if err := e.remove(ctx, rec); err != nil {
			return steps, fmt.Errorf("failed to delete %s: %w", rec.Name, err)
		}
		steps = append(steps, recordStep(rec, OpDelete))
	}
	return steps, nil
}

// orphans returns recorded resources that are no longer registered, in the
// order they must be deleted.
func (e *Engine) orphans(ctx context.Context) ([]*state.Record, error) {
	recs, err := e.store.ListStack(ctx, e.stack)
	if err != nil {
		return nil, err
	}
	registered := map[string]bool{}
	for _, n := range e.nodes {
		registered[n.urn] = true
	}
	var out []*state.Record
	for _, r := range recs {
		if !registered[r.URN] {
			out = append(out, r)
		}
	}
	return deleteOrder(out)
}

func (e *Engine) deleteOrphans(ctx context.Context) ([]Step, error) {
	orphans, err := e.orphans(ctx)
	if err != nil {
		return nil, err
	}
	var steps []Step
	for _, rec := range orphans {
		e.logger.Infof("Deleting %s, which is no longer declared...", rec.Name)
		if err := e.remove(ctx, rec); err != nil {
			return steps, fmt.Errorf("failed to delete %s: %w", rec.Name, err)
		}
		steps = append(steps, recordStep(rec, OpDelete))
	}
	return steps, nil
}

// deleteOrder sorts records so that dependents come before their
// dependencies.
func deleteOrder(recs []*state.Record) ([]*state.Record, error) {
	byURN := make(map[string]*state.Record, len(recs))
	urns := make([]string, len(recs))
	for i, r := range recs {
		byURN[r.URN] = r
		urns[i] = r.URN
	}
	sorted, err := topoSort(urns, func(urn string) []string { return byURN[urn].Dependencies })
	if err != nil {
		return nil, err
	}
	out := make([]*state.Record, 0, len(sorted))
	for _, urn := range reversed(sorted) {
		out = append(out, byURN[urn])
	}
	return out, nil
}

func recordStep(rec *state.Record, op Op) Step {
	return Step{URN: rec.URN, Name: rec.Name, Kind: rec.Kind, Parent: rec.Parent, Op: op}
}

// Destroy deletes every recorded resource of the stack, dependents first.
func (e *Engine) Destroy(ctx context.Context) ([]Step, error) {
	recs, err := e.store.ListStack(ctx, e.stack)
	if err != nil {
		return nil, err
	}
	ordered, err := deleteOrder(recs)
	if err != nil {
		return nil, err
	}

	var steps []Step
	for _, rec := range ordered {
		e.logger.Infof("Deleting %s...", rec.Name)
		if err := e.remove(ctx, rec); err != nil {
			return steps, fmt.Errorf("failed to delete %s: %w", rec.Name, err)
		}
		steps = append(steps, recordStep(rec, OpDelete))
	}
	return steps, nil
}

// Preview reports what Up would do. Providers' Diff is called; nothing is
// created, updated or deleted.
func (e *Engine) Preview(ctx context.Context) ([]Step, error) {
	order, err := e.order()
	if err != nil {
		return nil, err
	}

	var steps []Step
	for _, n := range order {
		prev, err := e.lookup(ctx, n.urn)
		if err != nil {
			return steps, err
		}

		if err := n.impl.resolve(); err != nil {
			if !errors.Is(err, ErrOutputNotReady) {
				return steps, fmt.Errorf("failed to resolve inputs of %s: %w", n.name, err)
			}
			op := OpCreate
			if prev != nil {
				op = OpUpdate
			}
			s := e.step(n, op, nil)
			s.Pending = true
			steps = append(steps, s)
			continue
		}

		if prev == nil {
			steps = append(steps, e.step(n, OpCreate, nil))
			continue
		}

		diff, err := n.impl.diff(ctx, prev)
		if err != nil {
			return steps, fmt.Errorf("failed to diff %s: %w", n.name, err)
		}
		switch {
		case !diff.Changes:
			steps = append(steps, e.step(n, OpSame, nil))
		case diff.Replace:
			steps = append(steps, e.step(n, OpReplace, diff.Fields))
			continue
		default:
			steps = append(steps, e.step(n, OpUpdate, diff.Fields))
		}
		// Recorded outputs stand in for dependents of resources kept in
		// place.
		if err := n.impl.adopt(prev); err != nil {
			return steps, err
		}
	}

	orphans, err := e.orphans(ctx)
	if err != nil {
		return steps, err
	}
	for _, rec := range orphans {
		steps = append(steps, recordStep(rec, OpDelete))
	}
	return steps, nil
}
