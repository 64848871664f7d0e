package command

import (
	"context"
	"sync"
)

// Call records a single Fake invocation.
type Call struct {
	Name string
	Args []string
}

// Line renders the call like Line does.
func (c Call) Line() string {
	return Line(c.Name, c.Args...)
}

// Fake is an Executor that records calls and returns scripted results.
// It is exported for tests in other packages.
type Fake struct {
	// RunFunc, when set, decides the result of each call.
	RunFunc func(name string, args []string) (Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements Executor.
func (f *Fake) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	f.mu.Unlock()

	if f.RunFunc != nil {
		return f.RunFunc(name, args)
	}
	return Result{}, nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the recorded calls rendered as command lines.
func (f *Fake) Lines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line()
	}
	return lines
}
