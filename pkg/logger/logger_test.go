package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := globalLogger
	SetDefault(New(buf, Config{Level: level, Format: "json"}))
	t.Cleanup(func() { globalLogger = prev })
	return buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestWithContextAddsRequestAndTraceIDs(t *testing.T) {
	buf := capture(t, "info")

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")
	Info(ctx, "order placed", "order_id", 7)

	entry := decode(t, buf)
	assert.Equal(t, "order placed", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.EqualValues(t, 7, entry["order_id"])
}

func TestWithContextPrefersSpanContext(t *testing.T) {
	buf := capture(t, "info")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(ContextWithTraceID(context.Background(), "ignored"), sc)

	Warn(ctx, "stock changed")

	entry := decode(t, buf)
	assert.Equal(t, traceID.String(), entry["trace_id"])
	assert.Equal(t, spanID.String(), entry["span_id"])
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "warn")

	Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	Error(context.Background(), "shown")
	assert.NotZero(t, buf.Len())
}
