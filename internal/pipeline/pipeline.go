package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/ongoingai/testbook/internal/catalog"
	"github.com/ongoingai/testbook/internal/cost"
	"github.com/ongoingai/testbook/internal/observability"
	"github.com/ongoingai/testbook/internal/parse"
	"github.com/ongoingai/testbook/internal/prompt"
	"github.com/ongoingai/testbook/internal/providers"
	"github.com/ongoingai/testbook/internal/testcase"
	"github.com/ongoingai/testbook/internal/tokens"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNoGenerator is returned by Generate on a pipeline built for estimates only.
var ErrNoGenerator = errors.New("pipeline has no generator configured")

// Options tunes a Pipeline. Zero values select the package defaults.
type Options struct {
	DefaultModel    string
	MaxOutputTokens int
	Temperature     float32
	OutputRatio     float64
	Runtime         *observability.Runtime
	Logger          *slog.Logger
}

// Pipeline runs generation cycles. It holds no per-cycle state and is safe
// for concurrent use when its Generator is.
type Pipeline struct {
	catalog   *catalog.Catalog
	estimator *tokens.Estimator
	generator providers.Generator
	runtime   *observability.Runtime
	logger    *slog.Logger

	defaultModel    string
	maxOutputTokens int
	temperature     float32
	outputRatio     float64
}

// New builds a pipeline. A nil catalog or estimator selects the defaults;
// a nil generator yields a pipeline that can only Estimate.
func New(models *catalog.Catalog, estimator *tokens.Estimator, generator providers.Generator, opts Options) *Pipeline {
	if models == nil {
		models = catalog.Default()
	}
	if estimator == nil {
		estimator = tokens.NewEstimator(tokens.DefaultImageTokens)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultModel := strings.TrimSpace(opts.DefaultModel)
	if defaultModel == "" {
		defaultModel = catalog.DefaultModel
	}
	maxOutput := opts.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = providers.DefaultMaxOutputTokens
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = providers.DefaultTemperature
	}
	ratio := opts.OutputRatio
	if ratio <= 0 {
		ratio = cost.DefaultOutputRatio
	}

	return &Pipeline{
		catalog:         models,
		estimator:       estimator,
		generator:       generator,
		runtime:         opts.Runtime,
		logger:          logger,
		defaultModel:    defaultModel,
		maxOutputTokens: maxOutput,
		temperature:     temperature,
		outputRatio:     ratio,
	}
}

// Estimate plans a request without contacting the provider.
func (p *Pipeline) Estimate(req Request) (Plan, error) {
	if err := req.Validate(); err != nil {
		return Plan{}, err
	}

	requested := strings.TrimSpace(req.Model)
	if requested == "" {
		requested = p.defaultModel
	}
	selection := p.catalog.Select(requested, len(req.Images) > 0)
	profile, known := p.catalog.Get(selection.Effective)
	pricedAs := profile.Name
	if !known {
		// Unknown models are priced like the multimodal model; the context
		// window stays unknown.
		fallback := p.catalog.Multimodal()
		pricedAs = fallback.Name
		profile = catalog.Profile{
			Name:             selection.Effective,
			InputPerMillion:  fallback.InputPerMillion,
			OutputPerMillion: fallback.OutputPerMillion,
		}
	}

	built := prompt.Build(req.promptInput())
	inputTokens := p.estimator.Prompt(profile.Name, built.System, built.User, len(built.Images))

	return Plan{
		Selection:      selection,
		Profile:        profile,
		Known:          known,
		PricedAs:       pricedAs,
		ExceedsContext: profile.MaxContextTokens > 0 && inputTokens > profile.MaxContextTokens,
		Prompt:         built,
		Estimate:       cost.EstimateRange(profile, inputTokens, p.outputRatio, p.maxOutputTokens),
	}, nil
}

// Generate runs one cycle: a single blocking provider call followed by
// parsing and validation. Provider, parse and empty-result failures are
// returned unwrapped so callers can pass them to UserMessage.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Outcome, error) {
	if p.generator == nil {
		return nil, ErrNoGenerator
	}

	plan, err := p.Estimate(req)
	if err != nil {
		p.runtime.RecordGeneration(ctx, req.Model, "invalid_request", 0)
		return nil, err
	}
	model := plan.Selection.Effective
	generationID := uuid.NewString()
	logger := p.logger.With("generation_id", generationID)

	ctx, span := p.runtime.StartGeneration(ctx, plan.Selection.Requested, len(req.Images))
	attrs := []attribute.KeyValue{
		attribute.String("testbook.generation.id", generationID),
		attribute.String("testbook.model.effective", model),
		attribute.Bool("testbook.model.overridden", plan.Selection.Overridden),
		attribute.Int("testbook.tokens.estimated", plan.Estimate.InputTokens),
	}

	if plan.Selection.Overridden {
		p.runtime.RecordModelOverride(ctx, plan.Selection.Requested, model)
		logger.WarnContext(ctx, "model overridden for image input",
			"requested_model", plan.Selection.Requested,
			"effective_model", model,
			"images", len(req.Images),
		)
	}
	if !plan.Known {
		logger.WarnContext(ctx, "model not in catalog; using fallback prices", "model", model, "priced_as", plan.PricedAs)
	}
	if plan.ExceedsContext {
		logger.WarnContext(ctx, "estimated prompt exceeds the model context window",
			"model", model,
			"estimated_tokens", plan.Estimate.InputTokens,
			"max_context_tokens", plan.Profile.MaxContextTokens,
		)
	}

	outcome, err := p.run(ctx, plan, logger, &attrs)
	label := outcomeLabel(err)
	attrs = append(attrs, attribute.String("testbook.outcome", label))
	observability.EndGeneration(span, attrs, err)

	if err != nil {
		p.runtime.RecordGeneration(ctx, model, label, 0)
		logger.ErrorContext(ctx, "generation failed",
			"model", model,
			"outcome", label,
			"error", err,
		)
		return nil, err
	}

	outcome.GenerationID = generationID
	p.runtime.RecordGeneration(ctx, model, label, outcome.Actual.TotalUSD)
	p.runtime.RecordFlagged(ctx, model, outcome.Flagged)
	logger.InfoContext(ctx, "generation completed",
		"model", model,
		"test_cases", len(outcome.TestCases),
		"flagged", outcome.Flagged,
		"input_tokens", outcome.Actual.InputTokens,
		"output_tokens", outcome.Actual.OutputTokens,
		"cost_usd", outcome.Actual.TotalUSD,
		"parse_strategy", string(outcome.Strategy),
		"partial", outcome.Partial,
	)
	return outcome, nil
}

func (p *Pipeline) run(ctx context.Context, plan Plan, logger *slog.Logger, attrs *[]attribute.KeyValue) (*Outcome, error) {
	model := plan.Selection.Effective
	resp, err := p.generator.Generate(ctx, providers.Request{
		Model:           model,
		Prompt:          plan.Prompt,
		MaxOutputTokens: p.maxOutputTokens,
		Temperature:     p.temperature,
	})
	if err != nil {
		return nil, providers.Classify(err)
	}

	actual := cost.Calculate(plan.Profile, resp.InputTokens, resp.OutputTokens)
	p.runtime.RecordTokens(ctx, model, resp.InputTokens, resp.OutputTokens)
	*attrs = append(*attrs,
		attribute.Int("testbook.tokens.input", resp.InputTokens),
		attribute.Int("testbook.tokens.output", resp.OutputTokens),
		attribute.Bool("testbook.truncated", resp.Truncated),
	)
	if resp.Truncated {
		logger.WarnContext(ctx, "response hit the output token limit",
			"model", model,
			"output_tokens", resp.OutputTokens,
		)
	}

	parsed, err := parse.Parse(resp.Text, resp.Truncated)
	if err != nil {
		logger.DebugContext(ctx, "unparseable response", "model", model, "raw_length", len(resp.Text))
		return nil, err
	}
	p.runtime.RecordParseStrategy(ctx, string(parsed.Strategy), parsed.Partial)
	*attrs = append(*attrs, attribute.String("testbook.parse.strategy", string(parsed.Strategy)))

	report, err := testcase.Validate(parsed.Records)
	if err != nil {
		return nil, err
	}
	for _, warning := range report.Warnings {
		logger.WarnContext(ctx, "test case repaired",
			"index", warning.Index,
			"test_case_id", warning.TestCaseID,
			"fields", strings.Join(warning.Fields, ","),
		)
	}

	return &Outcome{
		TestCases: report.TestCases,
		Flagged:   report.Flagged,
		Warnings:  report.Warnings,
		Selection: plan.Selection,
		Estimate:  plan.Estimate,
		Actual:    actual,
		Strategy:  parsed.Strategy,
		Partial:   parsed.Partial,
		Truncated: resp.Truncated,
	}, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var providerErr *providers.Error
	switch {
	case errors.Is(err, providers.ErrCanceled):
		return "canceled"
	case errors.Is(err, providers.ErrContextLength):
		return "context_length"
	case errors.As(err, &providerErr):
		return "provider_" + string(providerErr.Kind)
	case errors.Is(err, parse.ErrParse):
		return "parse_failure"
	case errors.Is(err, testcase.ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}
