package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

func newTracerProvider(ctx context.Context, res *resource.Resource, dev bool) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	if dev {
		exporter, err = stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating stdout trace exporter: %w", err)
		}
	} else {
		exporter, err = otlptracegrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating OTLP trace exporter: %w", err)
		}
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(time.Second)),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp, nil
}
