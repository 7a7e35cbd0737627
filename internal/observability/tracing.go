package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider and starts spans through
// StartSpan. The ORPAR loop and the tool dispatcher do not call StartSpan,
// so their phases and dispatches produce no spans. Grounded on the
// teacher's internal/observability/tracing.go OTLP-over-gRPC exporter setup.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NoopTracer returns a Tracer whose spans are never exported, used when
// tracing is disabled in config.
func NoopTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer("mxf")}
}

// NewTracer builds a Tracer exporting spans to otlpEndpoint over gRPC,
// tagging every span with serviceName.
func NewTracer(ctx context.Context, serviceName, otlpEndpoint string) (*Tracer, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer("mxf")}, nil
}

// StartSpan starts a span named name, tagging it with the given
// attributes (agent_id, channel_id, phase, tool — whichever apply).
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes and stops span export. A no-op Tracer has nothing to
// flush.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
