package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"schedule-service/internal/logging"
)

func TestWithTrace_AddsSpanFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logging.WithTrace(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	require.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}

func TestWithTrace_NoSpan(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	logging.WithTrace(context.Background(), base).Info("hello")

	require.Equal(t, 1, logs.Len())
	require.NotContains(t, logs.All()[0].ContextMap(), "trace_id")
}

func TestNew(t *testing.T) {
	logger, err := logging.New("development", "schedule-service")
	require.NoError(t, err)
	require.NotNil(t, logger)
}
