package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/logging"
)

// SubjectPrefix is prepended to the operation name to form a subject.
const SubjectPrefix = "anvil.resource."

// Status values.
const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event describes one step of a resource operation.
type Event struct {
	Stack  string    `json:"stack"`
	URN    string    `json:"urn"`
	Kind   string    `json:"kind"`
	Name   string    `json:"name"`
	Op     string    `json:"op"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
	// DurationMS is set on succeeded and failed events.
	DurationMS int64 `json:"durationMs,omitempty"`
}

// Subject returns the NATS subject e is published on.
func (e Event) Subject() string {
	return SubjectPrefix + e.Op
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() {}

// NATSPublisher publishes events to a NATS server.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *zap.SugaredLogger
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, logger *zap.SugaredLogger) (*NATSPublisher, error) {
	log := logging.OrNop(logger)
	opts := []nats.Option{
		nats.Name("anvil"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnw("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, logger: log}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.nc.Publish(e.Subject(), payload)
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warnw("failed to drain nats connection", "error", err)
	}
	p.nc.Close()
}
