package resource

import (
	"fmt"
	"strings"
	"time"
)

// ProvisioningError reports a failed host-local command or hypervisor
// operation during create or delete.
type ProvisioningError struct {
	// Op is the high-level operation, e.g. "create volume".
	Op string
	// Command is the command line or hypervisor call that failed.
	Command string
	// ExitCode is the process exit status, or -1 for non-process failures.
	ExitCode int
	// Output is the captured stderr, or stdout when stderr was empty.
	Output string
	// Err is the underlying error, if any.
	Err error
}

func (e *ProvisioningError) Error() string {
	var b strings.Builder
	op := e.Op
	if op == "" {
		op = "provisioning"
	}
	b.WriteString(op)
	b.WriteString(" failed")
	if e.Command != "" {
		fmt.Fprintf(&b, ": %s", e.Command)
	}
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " (exit status %d)", e.ExitCode)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&b, ": %s", out)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// ConfigurationRunError reports a playbook run that exited non-zero.
type ConfigurationRunError struct {
	Playbook string
	Host     string
	ExitCode int
	Stderr   string
}

func (e *ConfigurationRunError) Error() string {
	msg := fmt.Sprintf("playbook %s against %s exited with status %d", e.Playbook, e.Host, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// TransportError reports an SSH connection, authentication, or session
// failure outside of readiness probing.
type TransportError struct {
	Addr string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh %s to %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ReadinessTimeoutError is returned when a machine did not become reachable
// over SSH within the readiness timeout and strict readiness is enabled.
type ReadinessTimeoutError struct {
	Addr     string
	Timeout  time.Duration
	Attempts int
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("%s not reachable over ssh after %s (%d attempts)", e.Addr, e.Timeout, e.Attempts)
}

// MediaDetachError is returned when the boot configuration media could not
// be detached before the retry ceiling.
type MediaDetachError struct {
	Machine  string
	Attempts int
	Err      error
}

func (e *MediaDetachError) Error() string {
	msg := fmt.Sprintf("failed to detach boot media from %s after %d attempts", e.Machine, e.Attempts)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *MediaDetachError) Unwrap() error { return e.Err }
