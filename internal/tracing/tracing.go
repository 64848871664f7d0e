// Package tracing installs the OpenTelemetry tracer provider used to trace
// resource operations.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies anvil in exported spans.
const ServiceName = "anvil"

// InstrumentationName names the tracer resource operations are traced with.
const InstrumentationName = "github.com/jbweber/anvil"

// NewProvider returns a tracer provider exporting finished spans to w as
// JSON.
func NewProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return newProvider(exporter), nil
}

func newProvider(exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", ServiceName),
		)),
	)
}

// Setup installs a stdout tracer provider as the global provider and
// returns a function that flushes and shuts it down.
func Setup(w io.Writer) (func(context.Context) error, error) {
	tp, err := NewProvider(w)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns anvil's tracer from the global provider. Until Setup is
// called it records nothing.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
