package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// NewLogger returns the process JSON logger: records carry trace and span
// ids when a span is recording, and credential-like values are scrubbed.
func NewLogger(w io.Writer, level string) *slog.Logger {
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(NewTraceLogHandler(inner))
}

// ParseLevel maps debug, info, warn and error to slog levels. Unknown values
// select info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// traceLogHandler wraps an slog.Handler. It adds trace_id and span_id from
// the active span and scrubs credentials from string and error attributes.
type traceLogHandler struct {
	inner slog.Handler
}

// NewTraceLogHandler wraps inner. If inner is nil, slog.Default().Handler()
// is used.
func NewTraceLogHandler(inner slog.Handler) slog.Handler {
	if inner == nil {
		inner = slog.Default().Handler()
	}
	return &traceLogHandler{inner: inner}
}

func (h *traceLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *traceLogHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, ScrubCredentials(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(scrubAttr(attr))
		return true
	})

	span := oteltrace.SpanFromContext(ctx)
	if span != nil && span.SpanContext().IsValid() && span.IsRecording() {
		sc := span.SpanContext()
		out.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.inner.Handle(ctx, out)
}

func (h *traceLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		scrubbed[i] = scrubAttr(attr)
	}
	return &traceLogHandler{inner: h.inner.WithAttrs(scrubbed)}
}

func (h *traceLogHandler) WithGroup(name string) slog.Handler {
	return &traceLogHandler{inner: h.inner.WithGroup(name)}
}

func scrubAttr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		if s := value.String(); ContainsCredential(s) {
			return slog.String(attr.Key, ScrubCredentials(s))
		}
	case slog.KindAny:
		if err, ok := value.Any().(error); ok && err != nil {
			return slog.String(attr.Key, ScrubCredentials(err.Error()))
		}
	case slog.KindGroup:
		group := value.Group()
		scrubbed := make([]any, len(group))
		for i, member := range group {
			scrubbed[i] = scrubAttr(member)
		}
		return slog.Group(attr.Key, scrubbed...)
	}
	return attr
}
