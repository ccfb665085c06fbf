package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ongoingai/testbook/internal/catalog"
	"github.com/ongoingai/testbook/internal/cost"
	"github.com/ongoingai/testbook/internal/intake"
	"github.com/ongoingai/testbook/internal/tokens"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider      ProviderConfig      `yaml:"provider"`
	Generation    GenerationConfig    `yaml:"generation"`
	Models        []catalog.Profile   `yaml:"models"`
	Input         InputConfig         `yaml:"input"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ProviderConfig struct {
	BaseURL         string  `yaml:"base_url"`
	TimeoutMS       int     `yaml:"timeout_ms"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type GenerationConfig struct {
	DefaultModel       string  `yaml:"default_model"`
	MultimodalModel    string  `yaml:"multimodal_model"`
	ImageTokenEstimate int     `yaml:"image_token_estimate"`
	OutputRatio        float64 `yaml:"output_ratio"`
	// DefaultGlossary is used when a request names no glossary.
	DefaultGlossary string `yaml:"default_glossary"`
}

type InputConfig struct {
	MaxImages            int   `yaml:"max_images"`
	MaxImageBytes        int64 `yaml:"max_image_bytes"`
	MaxUserStoryChars    int   `yaml:"max_user_story_chars"`
	MaxGlossaryChars     int   `yaml:"max_glossary_chars"`
	MaxInstructionsChars int   `yaml:"max_instructions_chars"`
}

func (c InputConfig) Limits() intake.Limits {
	return intake.Limits{
		MaxImages:            c.MaxImages,
		MaxImageBytes:        c.MaxImageBytes,
		MaxUserStoryChars:    c.MaxUserStoryChars,
		MaxGlossaryChars:     c.MaxGlossaryChars,
		MaxInstructionsChars: c.MaxInstructionsChars,
	}
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Endpoint               string  `yaml:"endpoint"`
	Insecure               bool    `yaml:"insecure"`
	ServiceName            string  `yaml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled"`
	SamplingRatio          float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms"`
}

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	defaultBaseURL                    = "https://api.openai.com/v1"
	defaultTimeoutMS                  = 120000
	defaultMaxOutputTokens            = 16000
	defaultTemperature                = 0.3
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "testbook"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:         defaultBaseURL,
			TimeoutMS:       defaultTimeoutMS,
			MaxOutputTokens: defaultMaxOutputTokens,
			Temperature:     defaultTemperature,
		},
		Generation: GenerationConfig{
			DefaultModel:       catalog.DefaultModel,
			MultimodalModel:    catalog.DefaultMultimodalModel,
			ImageTokenEstimate: tokens.DefaultImageTokens,
			OutputRatio:        cost.DefaultOutputRatio,
		},
		Input: InputConfig{
			MaxImages:            intake.DefaultMaxImages,
			MaxImageBytes:        intake.DefaultMaxImageBytes,
			MaxUserStoryChars:    intake.DefaultMaxUserStoryChars,
			MaxGlossaryChars:     intake.DefaultMaxGlossaryChars,
			MaxInstructionsChars: intake.DefaultMaxInstructionsChars,
		},
		Logging: LoggingConfig{
			Level: LogLevelInfo,
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

// Catalog builds the model catalog from the configured profiles, or the
// built-in profiles when none are configured.
func (cfg Config) Catalog() (*catalog.Catalog, error) {
	profiles := cfg.Models
	if len(profiles) == 0 {
		profiles = catalog.DefaultProfiles
	}
	return catalog.New(profiles, cfg.Generation.MultimodalModel)
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
			// A trailing document would silently be ignored.
			var trailing any
			trailingErr := decoder.Decode(&trailing)
			if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, trailingErr)
			}
			if trailing != nil {
				return Config{}, fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	if err := validateBaseURL(cfg.Provider.BaseURL); err != nil {
		return err
	}
	if cfg.Provider.TimeoutMS <= 0 {
		return fmt.Errorf("provider.timeout_ms must be > 0 (got %d)", cfg.Provider.TimeoutMS)
	}
	if cfg.Provider.MaxOutputTokens <= 0 {
		return fmt.Errorf("provider.max_output_tokens must be > 0 (got %d)", cfg.Provider.MaxOutputTokens)
	}
	if cfg.Provider.Temperature <= 0 || cfg.Provider.Temperature > 2 {
		return fmt.Errorf("provider.temperature must be > 0 and <= 2 (got %f)", cfg.Provider.Temperature)
	}

	if strings.TrimSpace(cfg.Generation.DefaultModel) == "" {
		return errors.New("generation.default_model is required")
	}
	if cfg.Generation.ImageTokenEstimate <= 0 {
		return fmt.Errorf("generation.image_token_estimate must be > 0 (got %d)", cfg.Generation.ImageTokenEstimate)
	}
	if cfg.Generation.OutputRatio <= 0 {
		return fmt.Errorf("generation.output_ratio must be > 0 (got %f)", cfg.Generation.OutputRatio)
	}

	models, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("models: %w", err)
	}
	if _, ok := models.Get(cfg.Generation.DefaultModel); !ok {
		return fmt.Errorf("generation.default_model %q is not in the model catalog", cfg.Generation.DefaultModel)
	}

	if err := validateInput(cfg.Input); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(cfg.Generation.DefaultGlossary); n > cfg.Input.MaxGlossaryChars {
		return fmt.Errorf("generation.default_glossary must be <= input.max_glossary_chars (%d) characters (got %d)", cfg.Input.MaxGlossaryChars, n)
	}

	switch level := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", cfg.Logging.Level)
	}

	if err := validateOTelConfig(cfg.Observability.OTel); err != nil {
		return err
	}

	return nil
}

func validateBaseURL(raw string) error {
	baseURL := strings.TrimSpace(raw)
	if baseURL == "" {
		return errors.New("provider.base_url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parse provider.base_url: %w", err)
	}
	if strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("provider.base_url must include scheme and host (got %q)", raw)
	}
	return nil
}

func validateInput(cfg InputConfig) error {
	limits := []struct {
		name  string
		value int64
	}{
		{name: "input.max_images", value: int64(cfg.MaxImages)},
		{name: "input.max_image_bytes", value: cfg.MaxImageBytes},
		{name: "input.max_user_story_chars", value: int64(cfg.MaxUserStoryChars)},
		{name: "input.max_glossary_chars", value: int64(cfg.MaxGlossaryChars)},
		{name: "input.max_instructions_chars", value: int64(cfg.MaxInstructionsChars)},
	}
	for _, limit := range limits {
		if limit.value <= 0 {
			return fmt.Errorf("%s must be > 0 (got %d)", limit.name, limit.value)
		}
	}
	return nil
}

func validateOTelConfig(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("observability.otel.endpoint is required when observability.otel.enabled=true")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return errors.New("observability.otel.service_name is required when observability.otel.enabled=true")
	}
	if !cfg.TracesEnabled && !cfg.MetricsEnabled {
		return errors.New("observability.otel requires traces_enabled and/or metrics_enabled when enabled")
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %f)", cfg.SamplingRatio)
	}
	if cfg.ExportTimeoutMS <= 0 {
		return fmt.Errorf("observability.otel.export_timeout_ms must be > 0 (got %d)", cfg.ExportTimeoutMS)
	}
	if cfg.MetricExportIntervalMS <= 0 {
		return fmt.Errorf("observability.otel.metric_export_interval_ms must be > 0 (got %d)", cfg.MetricExportIntervalMS)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if baseURL := strings.TrimSpace(os.Getenv("TESTBOOK_OPENAI_BASE_URL")); baseURL != "" {
		cfg.Provider.BaseURL = baseURL
	}
	if timeout := strings.TrimSpace(os.Getenv("TESTBOOK_TIMEOUT_MS")); timeout != "" {
		v, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("invalid TESTBOOK_TIMEOUT_MS: %w", err)
		}
		cfg.Provider.TimeoutMS = v
	}
	if maxOutput := strings.TrimSpace(os.Getenv("TESTBOOK_MAX_OUTPUT_TOKENS")); maxOutput != "" {
		v, err := strconv.Atoi(maxOutput)
		if err != nil {
			return fmt.Errorf("invalid TESTBOOK_MAX_OUTPUT_TOKENS: %w", err)
		}
		cfg.Provider.MaxOutputTokens = v
	}
	if model := strings.TrimSpace(os.Getenv("TESTBOOK_DEFAULT_MODEL")); model != "" {
		cfg.Generation.DefaultModel = model
	}
	if level := strings.TrimSpace(os.Getenv("TESTBOOK_LOG_LEVEL")); level != "" {
		cfg.Logging.Level = level
	}

	otelConfigured := false
	otelSDKDisabledSet := false
	if sdkDisabled := strings.TrimSpace(os.Getenv("OTEL_SDK_DISABLED")); sdkDisabled != "" {
		v, err := strconv.ParseBool(sdkDisabled)
		if err != nil {
			return fmt.Errorf("invalid OTEL_SDK_DISABLED: %w", err)
		}
		cfg.Observability.OTel.Enabled = !v
		otelSDKDisabledSet = true
		otelConfigured = true
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		cfg.Observability.OTel.Endpoint = endpoint
		otelConfigured = true
	}
	if insecure := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); insecure != "" {
		v, err := strconv.ParseBool(insecure)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE: %w", err)
		}
		cfg.Observability.OTel.Insecure = v
		otelConfigured = true
	}
	if serviceName := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); serviceName != "" {
		cfg.Observability.OTel.ServiceName = serviceName
		otelConfigured = true
	}
	if tracesExporter := strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER")); tracesExporter != "" {
		enabled, err := otelExporterEnabled(tracesExporter)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_EXPORTER: %w", err)
		}
		cfg.Observability.OTel.TracesEnabled = enabled
		otelConfigured = true
	}
	if metricsExporter := strings.TrimSpace(os.Getenv("OTEL_METRICS_EXPORTER")); metricsExporter != "" {
		enabled, err := otelExporterEnabled(metricsExporter)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRICS_EXPORTER: %w", err)
		}
		cfg.Observability.OTel.MetricsEnabled = enabled
		otelConfigured = true
	}
	if samplingRatio := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); samplingRatio != "" {
		v, err := strconv.ParseFloat(samplingRatio, 64)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		cfg.Observability.OTel.SamplingRatio = v
		otelConfigured = true
	}
	if exportTimeout := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TIMEOUT")); exportTimeout != "" {
		v, err := strconv.Atoi(exportTimeout)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_TIMEOUT: %w", err)
		}
		cfg.Observability.OTel.ExportTimeoutMS = v
		otelConfigured = true
	}
	if metricExportInterval := strings.TrimSpace(os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")); metricExportInterval != "" {
		v, err := strconv.Atoi(metricExportInterval)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRIC_EXPORT_INTERVAL: %w", err)
		}
		cfg.Observability.OTel.MetricExportIntervalMS = v
		otelConfigured = true
	}
	if otelConfigured && !otelSDKDisabledSet {
		cfg.Observability.OTel.Enabled = true
	}

	return nil
}

func otelExporterEnabled(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "otlp":
		return true, nil
	case "none":
		return false, nil
	default:
		return false, fmt.Errorf("must be one of otlp, none (got %q)", value)
	}
}
