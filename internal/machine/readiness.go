package machine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/resource"
)

const (
	// DefaultReadinessTimeout bounds one readiness wait.
	DefaultReadinessTimeout = 120 * time.Second
	// DefaultReadinessInterval is the pause before each probe.
	DefaultReadinessInterval = time.Second
)

// ReadinessWaiter polls a Prober until an SSH server answers.
type ReadinessWaiter struct {
	Prober   Prober
	Timeout  time.Duration
	Interval time.Duration
	// Strict makes a timeout an error instead of a warning.
	Strict   bool
	Recorder Recorder

	logger *zap.SugaredLogger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewReadinessWaiter creates a waiter with the default timeout and interval.
func NewReadinessWaiter(prober Prober, logger *zap.SugaredLogger) *ReadinessWaiter {
	return &ReadinessWaiter{
		Prober:   prober,
		Timeout:  DefaultReadinessTimeout,
		Interval: DefaultReadinessInterval,
		Recorder: nopRecorder{},
		logger:   logging.OrNop(logger),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Wait sleeps one interval, probes addr, and repeats until the probe
// succeeds or the timeout elapses. It returns the number of probes made.
//
// On timeout Wait logs a warning and returns nil, unless Strict is set, in
// which case it returns a *resource.ReadinessTimeoutError. Cancelling ctx
// stops the wait with ctx's error.
func (w *ReadinessWaiter) Wait(ctx context.Context, addr string) (int, error) {
	recorder := w.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	deadline := w.now().Add(w.Timeout)
	attempts := 0
	for w.now().Before(deadline) {
		if err := w.sleep(ctx, w.Interval); err != nil {
			return attempts, err
		}

		attempts++
		err := w.Prober.Probe(ctx, addr)
		if err == nil {
			recorder.ProbeAttempt(true)
			w.logger.Infow("ssh is answering", "address", addr, "attempts", attempts)
			return attempts, nil
		}
		recorder.ProbeAttempt(false)
		w.logger.Debugw("ssh transport is not ready", "address", addr, "attempt", attempts, "error", err)
	}

	if w.Strict {
		return attempts, &resource.ReadinessTimeoutError{Addr: addr, Timeout: w.Timeout, Attempts: attempts}
	}
	w.logger.Warnw("ssh did not answer before the readiness timeout, continuing",
		"address", addr, "timeout", w.Timeout, "attempts", attempts)
	return attempts, nil
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
