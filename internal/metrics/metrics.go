package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "anvil"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the collectors of one provisioning run.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	probeAttempts     *prometheus.CounterVec
	detachAttempts    prometheus.Counter
}

// New creates Metrics registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "operations_total",
				Help:      "Total number of resource operations by kind, operation and result",
			},
			[]string{"kind", "op", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "operation_duration_seconds",
				Help:      "Duration of resource operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27min
			},
			[]string{"kind", "op"},
		),
		probeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ssh",
				Name:      "probe_attempts_total",
				Help:      "Total number of SSH readiness probes by outcome",
			},
			[]string{"outcome"},
		),
		detachAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "machine",
				Name:      "media_detach_attempts_total",
				Help:      "Total number of boot media detach attempts",
			},
		),
	}

	m.registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.probeAttempts,
		m.detachAttempts,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOperation records one resource operation.
func (m *Metrics) ObserveOperation(kind, op string, d time.Duration, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.operationsTotal.WithLabelValues(kind, op, result).Inc()
	m.operationDuration.WithLabelValues(kind, op).Observe(d.Seconds())
}

// ProbeAttempt records one readiness probe.
func (m *Metrics) ProbeAttempt(ready bool) {
	outcome := "unreachable"
	if ready {
		outcome = "ready"
	}
	m.probeAttempts.WithLabelValues(outcome).Inc()
}

// DetachAttempt records one boot media detach attempt.
func (m *Metrics) DetachAttempt() {
	m.detachAttempts.Inc()
}

// WriteTextfile writes every collected metric to path in the text
// exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
