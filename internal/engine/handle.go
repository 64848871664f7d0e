package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/state"
)

// ErrOutputNotReady is returned when a resource's outputs are read before
// the resource has been processed.
var ErrOutputNotReady = errors.New("outputs are not known yet")

// Named is anything that identifies a registered resource.
type Named interface {
	Name() string
}

// Handle refers to a registered resource and gives access to its outputs.
type Handle[O any] struct {
	name string
	get  func() (O, bool)
}

// Name implements Named.
func (h *Handle[O]) Name() string {
	return h.name
}

// Outputs returns the resource's outputs once it has been created, updated
// or found unchanged. Before that it returns ErrOutputNotReady.
func (h *Handle[O]) Outputs() (O, error) {
	outs, ok := h.get()
	if !ok {
		var zero O
		return zero, fmt.Errorf("%s: %w", h.name, ErrOutputNotReady)
	}
	return outs, nil
}

// Option configures a registered resource.
type Option func(*node)

// DependsOn makes the resource wait for deps.
func DependsOn(deps ...Named) Option {
	return func(n *node) {
		for _, d := range deps {
			n.deps = append(n.deps, d.Name())
		}
	}
}

// Parent groups the resource under a logical parent for display.
func Parent(name string) Option {
	return func(n *node) { n.parent = name }
}

// SecretOutputs marks top-level output keys whose values are masked when
// displayed.
func SecretOutputs(keys ...string) Option {
	return func(n *node) { n.secrets = append(n.secrets, keys...) }
}

// impl is the type-erased view of a registered resource.
type impl interface {
	resolve() error
	id() string
	diff(ctx context.Context, prev *state.Record) (resource.DiffResult, error)
	create(ctx context.Context) (string, error)
	update(ctx context.Context, prev *state.Record) error
	adopt(prev *state.Record) error
	encode() (inputs, outputs json.RawMessage, err error)
}

// deleteFunc deletes the resource described by a record.
type deleteFunc func(ctx context.Context, rec *state.Record) error

type typed[I, O any] struct {
	provider resource.Provider[I, O]
	inputs   func() (I, error)

	news    I
	outputs O
	ready   bool
}

func (t *typed[I, O]) resolve() error {
	news, err := t.inputs()
	if err != nil {
		return err
	}
	t.news = news
	return nil
}

func (t *typed[I, O]) id() string {
	return t.provider.ID(t.news)
}

func decodeRecord[I, O any](rec *state.Record) (I, O, error) {
	var olds I
	var oldOuts O
	if err := rec.DecodeInputs(&olds); err != nil {
		return olds, oldOuts, err
	}
	if len(rec.Outputs) > 0 {
		if err := rec.DecodeOutputs(&oldOuts); err != nil {
			return olds, oldOuts, err
		}
	}
	return olds, oldOuts, nil
}

func (t *typed[I, O]) diff(ctx context.Context, prev *state.Record) (resource.DiffResult, error) {
	olds, oldOuts, err := decodeRecord[I, O](prev)
	if err != nil {
		return resource.DiffResult{}, err
	}
	return t.provider.Diff(ctx, prev.ID, olds, oldOuts, t.news)
}

func (t *typed[I, O]) create(ctx context.Context) (string, error) {
	id, outs, err := t.provider.Create(ctx, t.news)
	if err != nil {
		return "", err
	}
	t.outputs, t.ready = outs, true
	return id, nil
}

func (t *typed[I, O]) update(ctx context.Context, prev *state.Record) error {
	olds, oldOuts, err := decodeRecord[I, O](prev)
	if err != nil {
		return err
	}
	outs, err := t.provider.Update(ctx, prev.ID, olds, oldOuts, t.news)
	if err != nil {
		return err
	}
	t.outputs, t.ready = outs, true
	return nil
}

func (t *typed[I, O]) adopt(prev *state.Record) error {
	_, oldOuts, err := decodeRecord[I, O](prev)
	if err != nil {
		return err
	}
	t.outputs, t.ready = oldOuts, true
	return nil
}

func (t *typed[I, O]) encode() (json.RawMessage, json.RawMessage, error) {
	inputs, err := json.Marshal(t.news)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode inputs: %w", err)
	}
	outputs, err := json.Marshal(t.outputs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode outputs: %w", err)
	}
	return inputs, outputs, nil
}

func deleter[I, O any](p resource.Provider[I, O]) deleteFunc {
	return func(ctx context.Context, rec *state.Record) error {
		olds, oldOuts, err := decodeRecord[I, O](rec)
		if err != nil {
			return err
		}
		return p.Delete(ctx, rec.ID, olds, oldOuts)
	}
}
