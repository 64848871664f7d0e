package resource

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a resource kind.
type Kind string

const (
	KindVolume        Kind = "anvil:storage:Volume"
	KindMachine       Kind = "anvil:compute:Machine"
	KindConfiguration Kind = "anvil:config:Configuration"
	KindServer        Kind = "anvil:server:Server"
)

// Kinds returns every known kind in dependency order.
func Kinds() []Kind {
	return []Kind{KindVolume, KindMachine, KindConfiguration, KindServer}
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind: %q", s)
}

// DiffResult describes how new inputs relate to the recorded state.
type DiffResult struct {
	// Changes is true when any difference was detected.
	Changes bool
	// Replace is true when the change cannot be applied in place.
	Replace bool
	// DeleteBeforeReplace requests the old resource be removed before the
	// replacement is created.
	DeleteBeforeReplace bool
	// Fields lists the input fields that differ.
	Fields []string
}

// NoChanges is the DiffResult for identical inputs.
var NoChanges = DiffResult{}

// ReplaceFields returns a delete-before-replace DiffResult for the given
// fields, or NoChanges when fields is empty.
func ReplaceFields(fields []string) DiffResult {
	if len(fields) == 0 {
		return NoChanges
	}
	return DiffResult{
		Changes:             true,
		Replace:             true,
		DeleteBeforeReplace: true,
		Fields:              fields,
	}
}

// ErrUpdateUnsupported is returned by providers whose changes always
// require replacement.
var ErrUpdateUnsupported = errors.New("resource does not support in-place update")

// Provider is the lifecycle contract of a resource kind with inputs I and
// outputs O.
type Provider[I, O any] interface {
	// Kind returns the kind this provider manages.
	Kind() Kind

	// ID returns the identity the resource will have for the given inputs.
	ID(inputs I) string

	// Create brings the resource into existence.
	Create(ctx context.Context, inputs I) (string, O, error)

	// Diff compares recorded inputs and outputs with new inputs.
	Diff(ctx context.Context, id string, olds I, oldOutputs O, news I) (DiffResult, error)

	// Update applies new inputs in place.
	Update(ctx context.Context, id string, olds I, oldOutputs O, news I) (O, error)

	// Delete tears the resource down.
	Delete(ctx context.Context, id string, olds I, oldOutputs O) error
}
