package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// scrubbingExporter removes credentials from span attributes, event
// attributes and status descriptions before delegating. Spans carry provider
// error messages and outbound URLs, either of which can echo a key.
type scrubbingExporter struct {
	wrapped sdktrace.SpanExporter
}

func newScrubbingExporter(wrapped sdktrace.SpanExporter) sdktrace.SpanExporter {
	return &scrubbingExporter{wrapped: wrapped}
}

func (e *scrubbingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	out := make([]sdktrace.ReadOnlySpan, len(spans))
	for i, span := range spans {
		out[i] = scrubSpan(span)
	}
	return e.wrapped.ExportSpans(ctx, out)
}

func (e *scrubbingExporter) Shutdown(ctx context.Context) error {
	return e.wrapped.Shutdown(ctx)
}

// scrubSpan returns span itself when nothing needs redaction.
func scrubSpan(span sdktrace.ReadOnlySpan) sdktrace.ReadOnlySpan {
	attrs, dirty := scrubAttributes(span.Attributes())

	events := span.Events()
	eventAttrs := make([][]attribute.KeyValue, len(events))
	for i, event := range events {
		scrubbed, eventDirty := scrubAttributes(event.Attributes)
		eventAttrs[i] = scrubbed
		dirty = dirty || eventDirty
	}

	status := span.Status()
	if ContainsCredential(status.Description) {
		status.Description = ScrubCredentials(status.Description)
		dirty = true
	}

	if !dirty {
		return span
	}

	stub := tracetest.SpanStubFromReadOnlySpan(span)
	stub.Attributes = attrs
	for i := range stub.Events {
		stub.Events[i].Attributes = eventAttrs[i]
	}
	stub.Status = status
	return stub.Snapshot()
}

// scrubAttributes reports whether any string value was redacted. The input
// slice is returned as-is when clean.
func scrubAttributes(attrs []attribute.KeyValue) ([]attribute.KeyValue, bool) {
	var out []attribute.KeyValue
	for i, attr := range attrs {
		if attr.Value.Type() != attribute.STRING || !ContainsCredential(attr.Value.AsString()) {
			if out != nil {
				out = append(out, attr)
			}
			continue
		}
		if out == nil {
			out = make([]attribute.KeyValue, i, len(attrs))
			copy(out, attrs[:i])
		}
		out = append(out, attribute.String(string(attr.Key), ScrubCredentials(attr.Value.AsString())))
	}
	if out == nil {
		return attrs, false
	}
	return out, true
}
