package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the OpenTelemetry instrumentation scope for this module.
const TracerName = "github.com/ragforge/rag-mcp"

// NewTracerProvider returns an SDK tracer provider with no exporter
// attached, which still creates real spans so context propagation can
// be asserted on. cmd/server installs no tracer provider, so StartSpan
// uses otel's global default provider unless a caller installs one.
func NewTracerProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(opts...)
}

// StartSpan starts a span with the given name and returns the derived
// context plus an end func that also records error status. Dispatch
// uses it for one span per tool invocation; the individual middleware
// stages and adapter calls get no span of their own.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
