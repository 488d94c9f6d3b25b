// Package tracing wires the gateway's optional distributed tracing, the
// second half of C6 alongside internal/obslog's structured event log.
// When otel_enabled is unset, every call here is a no-op: Init installs the
// global noop tracer provider and StartRequestSpan hands back a
// non-recording span, matching the digitallysavvy-go-ai Settings.IsEnabled
// gate. When enabled, it exports spans over OTLP/HTTP exactly like that
// same pack's telemetry stack.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope reported on every span, matching
// the single-constant convention in digitallysavvy-go-ai/pkg/telemetry.
const TracerName = "bedrock-gateway"

var tracer trace.Tracer = noop.NewTracerProvider().Tracer(TracerName)

// Options configures Init from the otel_* settings in spec.md §6.
type Options struct {
	Enabled         bool
	ServiceName     string
	ExporterEndpoint string
}

// Shutdown flushes and stops the tracer provider installed by Init. It is a
// no-op when tracing was never enabled.
type Shutdown func(context.Context) error

// Init installs the global tracer provider. When opts.Enabled is false it
// leaves the package-level tracer as the noop implementation so every
// subsequent StartRequestSpan call costs nothing. When enabled, it builds an
// OTLP/HTTP batch-span-processor pipeline against opts.ExporterEndpoint.
func Init(ctx context.Context, opts Options) (Shutdown, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporterOpts := []otlptracehttp.Option{}
	if opts.ExporterEndpoint != "" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(opts.ExporterEndpoint))
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	// service.name is hardcoded rather than sourced from go.opentelemetry.io/otel/semconv,
	// matching the rationale in xiaolin593-ai-gateway/internal/metrics/metrics.go: avoid
	// pinning a semconv schema version for a single well-known attribute key.
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(TracerName)

	return func(shutdownCtx context.Context) error {
		flushCtx, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(flushCtx)
	}, nil
}

// StartRequestSpan opens a span for one gateway request, named after the
// route (e.g. "POST /v1/chat/completions"). Callers end it once the response
// — including any streamed tail — has fully flushed, per spec.md §5's
// streaming-aware hook requirement.
func StartRequestSpan(ctx context.Context, route, requestID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, route, trace.WithAttributes(
		attribute.String("gateway.request_id", requestID),
	))
}

// SetModel annotates the active span with the resolved model id once the
// request body has been parsed and validated against the catalog.
func SetModel(span trace.Span, modelID string) {
	if modelID == "" {
		return
	}
	span.SetAttributes(attribute.String("gateway.model_id", modelID))
}

// SetStatus annotates the active span with the final HTTP status code and,
// on failure, the OpenAI error code.
func SetStatus(span trace.Span, statusCode int, errCode string) {
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if errCode != "" {
		span.SetAttributes(attribute.String("gateway.error_code", errCode))
	}
}
