package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ongoingai/testbook/internal/config"
	"github.com/ongoingai/testbook/internal/observability"
	"github.com/ongoingai/testbook/internal/pipeline"
	"github.com/ongoingai/testbook/internal/providers"
	"github.com/ongoingai/testbook/internal/tokens"
	"github.com/ongoingai/testbook/internal/version"
)

const (
	configStageLoad     = "load"
	configStageValidate = "validate"
)

// normalizeTextJSONFormat validates command output format flags with shared semantics.
func normalizeTextJSONFormat(command, rawValue, defaultValue string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawValue))
	if normalized == "" {
		normalized = strings.TrimSpace(defaultValue)
	}
	switch normalized {
	case "text", "json":
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid %s format %q: expected text or json", strings.TrimSpace(command), rawValue)
	}
}

// loadAndValidateConfig resolves config and reports which stage failed.
func loadAndValidateConfig(configPath string) (config.Config, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, configStageLoad, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, configStageValidate, err
	}
	return cfg, "", nil
}

// loadConfigForCommand prints the failing stage the same way for every command.
func loadConfigForCommand(configPath string, errOut io.Writer) (config.Config, bool) {
	cfg, stage, err := loadAndValidateConfig(configPath)
	if err != nil {
		if stage == configStageLoad {
			fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		} else {
			fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		}
		return config.Config{}, false
	}
	return cfg, true
}

// newPipeline wires a pipeline from validated config. generator may be nil
// for commands that only estimate.
func newPipeline(cfg config.Config, generator providers.Generator, runtime *observability.Runtime, logger *slog.Logger) (*pipeline.Pipeline, error) {
	models, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	return pipeline.New(models, tokens.NewEstimator(cfg.Generation.ImageTokenEstimate), generator, pipeline.Options{
		DefaultModel:    cfg.Generation.DefaultModel,
		MaxOutputTokens: cfg.Provider.MaxOutputTokens,
		Temperature:     float32(cfg.Provider.Temperature),
		OutputRatio:     cfg.Generation.OutputRatio,
		Runtime:         runtime,
		Logger:          logger,
	}), nil
}

func setupTelemetry(cfg config.Config, logger *slog.Logger) *observability.Runtime {
	runtime, err := observability.Setup(context.Background(), cfg.Observability.OTel, version.ServiceVersion(), logger)
	if err != nil {
		logger.Error("failed to initialize opentelemetry; continuing with instrumentation disabled", "error", err)
	}
	return runtime
}
