package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/resource"
)

// Result is the outcome of a process that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the process exited zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Output returns stderr, or stdout when stderr is empty.
func (r Result) Output() string {
	if strings.TrimSpace(r.Stderr) != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Executor runs a command and captures its output.
//
// A non-zero exit is reported through Result.ExitCode with a nil error; the
// error return is reserved for processes that could not be started or were
// interrupted.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Local runs commands on this host.
type Local struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is appended to the inherited environment.
	Env []string

	logger *zap.SugaredLogger
}

// NewLocal creates a Local executor. A nil logger disables logging.
func NewLocal(logger *zap.SugaredLogger) *Local {
	return &Local{logger: logging.OrNop(logger)}
}

// Run implements Executor.
func (l *Local) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(cmd.Environ(), l.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.OrNop(l.logger).Debugw("running command", "command", Line(name, args...))
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("failed to run %s: %w", name, err)
}

// Line renders a command for logs and error messages.
func Line(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// Check runs a command and converts a failure into a
// *resource.ProvisioningError tagged with op.
func Check(ctx context.Context, e Executor, op string, name string, args ...string) (Result, error) {
	res, err := e.Run(ctx, name, args...)
	if err != nil {
		return res, &resource.ProvisioningError{
			Op:       op,
			Command:  Line(name, args...),
			ExitCode: -1,
			Output:   res.Output(),
			Err:      err,
		}
	}
	if !res.Success() {
		return res, &resource.ProvisioningError{
			Op:       op,
			Command:  Line(name, args...),
			ExitCode: res.ExitCode,
			Output:   res.Output(),
		}
	}
	return res, nil
}
