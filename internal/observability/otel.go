package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ongoingai/testbook/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "testbook"

	generationSpanName = "testbook.generate"

	metricGenerationTotal = "testbook.generation.total"
	metricGenerationCost  = "testbook.generation.cost_usd"
	metricTokensTotal     = "testbook.tokens.total"
	metricFlaggedTotal    = "testbook.testcases.flagged_total"
	metricParseStrategy   = "testbook.parse.strategy_total"
	metricModelOverrides  = "testbook.model.override_total"
)

// Runtime exposes OpenTelemetry wrappers and generation metric hooks.
// A nil or disabled Runtime is safe to use and records nothing.
type Runtime struct {
	enabled        bool
	tracerProvider oteltrace.TracerProvider
	tracer         oteltrace.Tracer

	generationCounter metric.Int64Counter
	costHistogram     metric.Float64Histogram
	tokensCounter     metric.Int64Counter
	flaggedCounter    metric.Int64Counter
	strategyCounter   metric.Int64Counter
	overrideCounter   metric.Int64Counter

	shutdownFns []func(context.Context) error
}

// Setup initializes OpenTelemetry providers and runtime hooks.
func Setup(ctx context.Context, cfg config.OTelConfig, serviceVersion string, logger *slog.Logger) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runtime := &Runtime{}
	if !cfg.Enabled {
		return runtime, nil
	}

	exportTimeout := time.Duration(cfg.ExportTimeoutMS) * time.Millisecond
	metricInterval := time.Duration(cfg.MetricExportIntervalMS) * time.Millisecond
	otlpEndpoint, inferredInsecure, err := normalizeOTLPEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	insecure := cfg.Insecure
	if strings.Contains(strings.TrimSpace(cfg.Endpoint), "://") {
		// An explicit scheme wins over the insecure toggle.
		insecure = inferredInsecure
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", strings.TrimSpace(cfg.ServiceName)),
		attribute.String("service.version", strings.TrimSpace(serviceVersion)),
	)

	if cfg.TracesEnabled {
		traceExporterOptions := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(otlpEndpoint),
			otlptracehttp.WithTimeout(exportTimeout),
		}
		if insecure {
			traceExporterOptions = append(traceExporterOptions, otlptracehttp.WithInsecure())
		}
		traceExporter, err := otlptracehttp.New(ctx, traceExporterOptions...)
		if err != nil {
			return nil, fmt.Errorf("initialize otel trace exporter: %w", err)
		}

		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
			sdktrace.WithBatcher(newScrubbingExporter(traceExporter)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		runtime.shutdownFns = append(runtime.shutdownFns, tracerProvider.Shutdown)
	}

	if cfg.MetricsEnabled {
		metricExporterOptions := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(otlpEndpoint),
			otlpmetrichttp.WithTimeout(exportTimeout),
		}
		if insecure {
			metricExporterOptions = append(metricExporterOptions, otlpmetrichttp.WithInsecure())
		}
		metricExporter, err := otlpmetrichttp.New(ctx, metricExporterOptions...)
		if err != nil {
			_ = runtime.Shutdown(context.Background())
			return nil, fmt.Errorf("initialize otel metric exporter: %w", err)
		}

		reader := sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(metricInterval),
			sdkmetric.WithTimeout(exportTimeout),
		)
		meterProvider := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(meterProvider)
		runtime.shutdownFns = append(runtime.shutdownFns, meterProvider.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	runtime.tracerProvider = otel.GetTracerProvider()
	runtime.tracer = runtime.tracerProvider.Tracer(instrumentationName)
	runtime.createInstruments(otel.Meter(instrumentationName), logger)
	runtime.enabled = true
	if logger != nil {
		logger.Info(
			"opentelemetry enabled",
			"otel_endpoint", otlpEndpoint,
			"otel_traces_enabled", cfg.TracesEnabled,
			"otel_metrics_enabled", cfg.MetricsEnabled,
			"otel_sampling_ratio", cfg.SamplingRatio,
		)
	}

	return runtime, nil
}

// NewRuntime builds an enabled Runtime over explicit providers. Either
// provider may be nil to skip that signal.
func NewRuntime(tracerProvider oteltrace.TracerProvider, meterProvider metric.MeterProvider, logger *slog.Logger) *Runtime {
	runtime := &Runtime{enabled: true}
	if tracerProvider != nil {
		runtime.tracerProvider = tracerProvider
		runtime.tracer = tracerProvider.Tracer(instrumentationName)
	}
	if meterProvider != nil {
		runtime.createInstruments(meterProvider.Meter(instrumentationName), logger)
	}
	return runtime
}

func (r *Runtime) createInstruments(meter metric.Meter, logger *slog.Logger) {
	warn := func(name string, err error) {
		if err != nil && logger != nil {
			logger.Warn("failed to create opentelemetry instrument", "metric", name, "error", err)
		}
	}

	var err error
	r.generationCounter, err = meter.Int64Counter(
		metricGenerationTotal,
		metric.WithDescription("Count of generation cycles by effective model and outcome."),
	)
	warn(metricGenerationTotal, err)

	r.costHistogram, err = meter.Float64Histogram(
		metricGenerationCost,
		metric.WithDescription("Actual cost of successful generation cycles."),
		metric.WithUnit("USD"),
	)
	warn(metricGenerationCost, err)

	r.tokensCounter, err = meter.Int64Counter(
		metricTokensTotal,
		metric.WithDescription("Provider-reported tokens by model and direction."),
	)
	warn(metricTokensTotal, err)

	r.flaggedCounter, err = meter.Int64Counter(
		metricFlaggedTotal,
		metric.WithDescription("Count of test cases with at least one missing field."),
	)
	warn(metricFlaggedTotal, err)

	r.strategyCounter, err = meter.Int64Counter(
		metricParseStrategy,
		metric.WithDescription("Count of parsed responses by recovery strategy."),
	)
	warn(metricParseStrategy, err)

	r.overrideCounter, err = meter.Int64Counter(
		metricModelOverrides,
		metric.WithDescription("Count of requests switched to the multimodal model."),
	)
	warn(metricModelOverrides, err)
}

// Enabled reports whether OpenTelemetry instrumentation is active.
func (r *Runtime) Enabled() bool {
	return r != nil && r.enabled
}

// WrapHTTPTransport wraps the provider HTTP transport with client spans.
func (r *Runtime) WrapHTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !r.Enabled() {
		return base
	}
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return clientSpanName(req.Method, req.URL.Path)
		}),
	}
	if r.tracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(r.tracerProvider))
	}
	return otelhttp.NewTransport(base, opts...)
}

// StartGeneration opens the span covering one generation cycle. The returned
// span is a no-op when tracing is disabled.
func (r *Runtime) StartGeneration(ctx context.Context, requestedModel string, images int) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.Enabled() || r.tracer == nil {
		return ctx, oteltrace.SpanFromContext(context.Background())
	}
	return r.tracer.Start(
		ctx,
		generationSpanName,
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("testbook.model.requested", strings.TrimSpace(requestedModel)),
			attribute.Int("testbook.images", images),
		),
	)
}

// EndGeneration annotates and ends a generation span. err marks the span as
// failed with a scrubbed description.
func EndGeneration(span oteltrace.Span, attrs []attribute.KeyValue, err error) {
	if span == nil {
		return
	}
	if span.IsRecording() {
		if len(attrs) > 0 {
			span.SetAttributes(attrs...)
		}
		if err != nil {
			span.SetStatus(codes.Error, ScrubCredentials(err.Error()))
		}
	}
	span.End()
}

// RecordGeneration counts one finished cycle and, for successful cycles,
// records its cost.
func (r *Runtime) RecordGeneration(ctx context.Context, model, outcome string, costUSD float64) {
	if !r.Enabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", metricLabel(model)),
		attribute.String("outcome", metricLabel(outcome)),
	)
	if r.generationCounter != nil {
		r.generationCounter.Add(ctx, 1, attrs)
	}
	if r.costHistogram != nil && costUSD > 0 {
		r.costHistogram.Record(ctx, costUSD, metric.WithAttributes(attribute.String("model", metricLabel(model))))
	}
}

// RecordTokens adds provider-reported usage.
func (r *Runtime) RecordTokens(ctx context.Context, model string, inputTokens, outputTokens int) {
	if !r.Enabled() || r.tokensCounter == nil {
		return
	}
	if inputTokens > 0 {
		r.tokensCounter.Add(ctx, int64(inputTokens), metric.WithAttributes(
			attribute.String("model", metricLabel(model)),
			attribute.String("direction", "input"),
		))
	}
	if outputTokens > 0 {
		r.tokensCounter.Add(ctx, int64(outputTokens), metric.WithAttributes(
			attribute.String("model", metricLabel(model)),
			attribute.String("direction", "output"),
		))
	}
}

// RecordFlagged adds the number of flagged test cases in one outcome.
func (r *Runtime) RecordFlagged(ctx context.Context, model string, flagged int) {
	if !r.Enabled() || r.flaggedCounter == nil || flagged <= 0 {
		return
	}
	r.flaggedCounter.Add(ctx, int64(flagged), metric.WithAttributes(attribute.String("model", metricLabel(model))))
}

// RecordParseStrategy counts which parse strategy recovered the records.
func (r *Runtime) RecordParseStrategy(ctx context.Context, strategy string, partial bool) {
	if !r.Enabled() || r.strategyCounter == nil {
		return
	}
	r.strategyCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", metricLabel(strategy)),
		attribute.Bool("partial", partial),
	))
}

// RecordModelOverride counts a forced switch to the multimodal model.
func (r *Runtime) RecordModelOverride(ctx context.Context, requested, effective string) {
	if !r.Enabled() || r.overrideCounter == nil {
		return
	}
	r.overrideCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("requested_model", metricLabel(requested)),
		attribute.String("effective_model", metricLabel(effective)),
	))
}

// Shutdown flushes and stops OpenTelemetry providers.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil || len(r.shutdownFns) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i := len(r.shutdownFns) - 1; i >= 0; i-- {
		if err := r.shutdownFns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func normalizeOTLPEndpoint(raw string) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", false, errors.New("observability.otel.endpoint must not be empty")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, false, nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse observability.otel.endpoint: %w", err)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", false, fmt.Errorf("observability.otel.endpoint must include host (got %q)", raw)
	}

	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return parsed.Host, true, nil
	case "https":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("observability.otel.endpoint scheme must be http or https when provided (got %q)", parsed.Scheme)
	}
}

// operationForPath keeps span names low-cardinality across base URL prefixes.
func operationForPath(path string) string {
	path = strings.TrimRight(path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		return "chat.completions"
	case strings.HasSuffix(path, "/models"):
		return "models"
	default:
		return "other"
	}
}

func clientSpanName(method, path string) string {
	return "openai " + normalizedMethod(method) + " " + operationForPath(path)
}

func normalizedMethod(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		return "UNKNOWN"
	}
	return method
}

func metricLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return ScrubCredentials(value)
}
