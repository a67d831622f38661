// Package telemetry wires the hub's OTel span instrumentation around
// detection, planning, and client dispatch — SPEC_FULL.md's domain-stack
// entry for go.opentelemetry.io/otel/*. Disabled (HUB_TELEMETRY_ENABLED
// unset or false), the hub runs on the SDK's built-in no-op tracer, so
// call sites never need to branch on whether telemetry is active.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nextlevelbuilder/tsphub"

// newExporter picks the OTLP transport by HUB_TELEMETRY_PROTOCOL
// ("grpc", the default, or "http") — most collectors accept either.
func newExporter(ctx context.Context) (*otlptrace.Exporter, error) {
	if os.Getenv("HUB_TELEMETRY_PROTOCOL") == "http" {
		return otlptracehttp.New(ctx)
	}
	return otlptracegrpc.New(ctx)
}

// Init installs an OTLP span exporter (gRPC, or HTTP per
// HUB_TELEMETRY_PROTOCOL) as the global tracer provider
// when enabled is true; otherwise it leaves otel's default no-op
// provider in place. Returns a shutdown func that flushes pending spans.
func Init(ctx context.Context, enabled bool, serviceVersion string) (shutdown func(context.Context) error, err error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "tsphub"),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(shutdownCtx context.Context) error {
		ctx, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// Tracer returns the hub's named tracer — a no-op if Init was never
// called or was called with enabled=false.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan is a thin convenience wrapper so call sites (Hub.ListTools,
// Hub.CallTool) read as one line per instrumented stage.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}
