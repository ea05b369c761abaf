// Package tracing wires OpenTelemetry for toolgate. When not initialised
// the global no-op provider is used, so instrumentation sites never have to
// check whether tracing is enabled.
package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/toolgate/toolgate"

var (
	initOnce sync.Once
	shutdown func(context.Context) error
)

// Init installs a global tracer provider exporting OTLP over HTTP to the
// given endpoint (host:port). It is idempotent; the first call wins.
func Init(ctx context.Context, endpoint, version string) error {
	var err error
	initOnce.Do(func() {
		var exporter *otlptrace.Exporter
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			err = fmt.Errorf("tracing: create exporter: %w", err)
			return
		}

		res, resErr := resource.New(ctx,
			resource.WithAttributes(
				attribute.String("service.name", "toolgate"),
				attribute.String("service.version", version),
			),
		)
		if resErr != nil {
			err = fmt.Errorf("tracing: build resource: %w", resErr)
			return
		}

		provider := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
		shutdown = provider.Shutdown
	})
	return err
}

// Shutdown flushes and stops the provider installed by Init, if any.
func Shutdown(ctx context.Context) error {
	if shutdown == nil {
		return nil
	}
	return shutdown(ctx)
}

// StartSpan starts a span on the toolgate tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}
