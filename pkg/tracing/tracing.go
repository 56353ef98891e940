package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan. Until it is called spans are no-ops.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span of whatever span ctx carries.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

func activeSpan(ctx context.Context) (trace.Span, bool) {
	span := trace.SpanFromContext(ctx)
	return span, span.SpanContext().IsValid()
}

// GetTraceID returns the hex trace id of the active span, or "".
func GetTraceID(ctx context.Context) string {
	span, ok := activeSpan(ctx)
	if !ok {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetTraceParent returns the W3C traceparent header value for the active span, or "".
func GetTraceParent(ctx context.Context) string {
	if _, ok := activeSpan(ctx); !ok {
		return ""
	}

	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}

// RecordError marks the active span failed.
func RecordError(ctx context.Context, err error) {
	if span, ok := activeSpan(ctx); ok && err != nil {
		span.RecordError(err)
	}
}
