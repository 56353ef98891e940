package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestStartSpan_NoTracerIsNoop(t *testing.T) {
	SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetTraceParent(ctx))
}

func TestStartSpan_WithTracer(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	SetTracer(tp.Tracer("test"))
	defer SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "identify")
	defer span.End()

	traceID := GetTraceID(ctx)
	assert.Len(t, traceID, 32)
	assert.Contains(t, GetTraceParent(ctx), traceID)
}
