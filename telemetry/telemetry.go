// Package telemetry wraps OpenTelemetry tracing for statement execution.
// Prometheus (wired in metrics.go/httpapi) already covers counters and
// histograms for this engine's admin surface, so unlike the teacher's
// telemetry package this one carries a TracerProvider only, not a
// MeterProvider — two metrics systems measuring the same handful of
// operations would just be noise.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns a TracerProvider for one process and hands out spans for
// statement execution and commits.
type Telemetry struct {
	tp     *trace.TracerProvider
	tracer oteltrace.Tracer

	serviceName string
}

// New builds a Telemetry for serviceName/serviceVersion. dev selects a
// stdout exporter suitable for a developer running the CLI locally;
// !dev sends spans to an OTLP collector over gRPC, configured the usual
// way via OTEL_EXPORTER_OTLP_* environment variables.
func New(ctx context.Context, serviceName, serviceVersion string, dev bool) (*Telemetry, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	tp, err := newTracerProvider(ctx, res, dev)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		tp:          tp,
		tracer:      tp.Tracer(serviceName),
		serviceName: serviceName,
	}, nil
}

// Tracer returns the Tracer statements and commits should start spans on.
func (t *Telemetry) Tracer() oteltrace.Tracer {
	return t.tracer
}

// Start begins a span named name as a child of ctx, stamped with attrs.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	ctx, span := t.tracer.Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}

// Shutdown flushes and stops the underlying TracerProvider. Callers should
// defer it for the lifetime of the process that called New.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutting down tracer provider: %w", err)
	}
	return nil
}
