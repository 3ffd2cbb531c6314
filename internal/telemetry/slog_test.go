package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_LevelAndTee(t *testing.T) {
	t.Parallel()

	var stdout, file bytes.Buffer
	logger := NewLogger("warn", &stdout, &file)

	logger.Info("dropped")
	logger.Warn("kept", "application_id", "app-1")

	for _, buf := range []*bytes.Buffer{&stdout, &file} {
		lines := decodeLines(t, buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "kept", lines[0]["msg"])
		assert.Equal(t, "app-1", lines[0]["application_id"])
	}
}

func TestTraceHandler_AddsSpanIDs(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := NewLogger("info", &buf)
	logger.InfoContext(ctx, "with span")
	logger.Info("without span")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, span.SpanContext().TraceID().String(), lines[0]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), lines[0]["span_id"])
	_, has := lines[1]["trace_id"]
	assert.False(t, has)
}

func TestTeeHandler_WithAttrsAndGroup(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	h := NewTeeHandler(
		slog.NewJSONHandler(&a, nil),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With("component", "intake").WithGroup("req")

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	logger.Info("hello", "id", 1)

	lines := decodeLines(t, &a)
	require.Len(t, lines, 1)
	assert.Equal(t, "intake", lines[0]["component"])
	assert.Equal(t, map[string]any{"id": float64(1)}, lines[0]["req"])
	assert.Empty(t, b.String())
}
