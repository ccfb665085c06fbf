package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	return entry
}

func TestTraceLogHandlerAddsTraceIDAndSpanID(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var buf bytes.Buffer
	logger := slog.New(NewTraceLogHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, span := tp.Tracer("test").Start(context.Background(), "testbook.generate")
	defer span.End()

	logger.InfoContext(ctx, "generation completed", "model", "gpt-4o")

	entry := decodeLogEntry(t, &buf)
	traceID, ok := entry["trace_id"].(string)
	if !ok || len(traceID) != 32 {
		t.Fatalf("trace_id=%q, want 32 hex chars", traceID)
	}
	spanID, ok := entry["span_id"].(string)
	if !ok || len(spanID) != 16 {
		t.Fatalf("span_id=%q, want 16 hex chars", spanID)
	}
	if model, ok := entry["model"].(string); !ok || model != "gpt-4o" {
		t.Fatalf("model=%v, want gpt-4o", entry["model"])
	}
}

func TestTraceLogHandlerNoSpanOmitsTraceAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewTraceLogHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "no span")

	entry := decodeLogEntry(t, &buf)
	if _, ok := entry["trace_id"]; ok {
		t.Fatal("trace_id should not be present without active span")
	}
	if _, ok := entry["span_id"]; ok {
		t.Fatal("span_id should not be present without active span")
	}
}

func TestTraceLogHandlerScrubsCredentials(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewTraceLogHandler(slog.NewJSONHandler(&buf, nil)))
	logger = logger.With("client", "Bearer abcdefghijklmnop")

	logger.Error(
		"provider call failed",
		"error", errors.New("request with sk-proj-AbCdEfGhIjKlMnOpQrStUv rejected"),
		"detail", "api_key=supersecret",
		slog.Group("request", slog.String("auth", "sk-abcdefghijklmnopqrstuv")),
		"model", "gpt-4o-mini",
	)

	output := buf.String()
	for _, secret := range []string{"sk-proj-AbCd", "abcdefghijklmnop", "supersecret", "sk-abcdef"} {
		if strings.Contains(output, secret) {
			t.Fatalf("log output leaked %q: %s", secret, output)
		}
	}
	entry := decodeLogEntry(t, &buf)
	if got := entry["error"]; got != "request with [CREDENTIAL_REDACTED] rejected" {
		t.Fatalf("error=%v, want scrubbed message", got)
	}
	if got := entry["model"]; got != "gpt-4o-mini" {
		t.Fatalf("model=%v, want untouched", got)
	}
}

func TestTraceLogHandlerEnabledDelegatesToInner(t *testing.T) {
	t.Parallel()

	handler := NewTraceLogHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected Info to be disabled when inner level is Warn")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected Error to be enabled when inner level is Warn")
	}
}

func TestTraceLogHandlerWithGroupPreservesTraceAttrs(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var buf bytes.Buffer
	logger := slog.New(NewTraceLogHandler(slog.NewJSONHandler(&buf, nil)).WithGroup("pipeline"))

	ctx, span := tp.Tracer("test").Start(context.Background(), "testbook.generate")
	defer span.End()

	logger.InfoContext(ctx, "grouped log", "key", "val")

	output := buf.String()
	if !strings.Contains(output, "trace_id") || !strings.Contains(output, "span_id") {
		t.Fatalf("trace attrs missing in grouped output: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: " INFO ", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "", want: slog.LevelInfo},
		{input: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := ParseLevel(tt.input); got != tt.want {
				t.Fatalf("ParseLevel(%q)=%v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %s", buf.String())
	}
	logger.Warn("kept", "effective_model", "gpt-4o")
	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "kept" || entry["effective_model"] != "gpt-4o" {
		t.Fatalf("entry=%v, want warn record", entry)
	}
}
