package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ongoingai/testbook/internal/catalog"
	"github.com/ongoingai/testbook/internal/cost"
	"github.com/ongoingai/testbook/internal/observability"
	"github.com/ongoingai/testbook/internal/pipeline"
	"github.com/ongoingai/testbook/internal/providers"
	"github.com/ongoingai/testbook/internal/testcase"
)

var timeNow = time.Now

type generateSummary struct {
	Output    string             `json:"output"`
	Format    string             `json:"format"`
	TestCases int                `json:"test_cases"`
	Flagged   int                `json:"flagged"`
	Partial   bool               `json:"partial"`
	Selection catalog.Selection  `json:"selection"`
	Estimate  cost.Estimate      `json:"estimate"`
	Actual    cost.Amount        `json:"actual"`
	Warnings  []testcase.Warning `json:"warnings,omitempty"`
}

func runGenerate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("generate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	var inputs requestFlags
	inputs.register(flagSet)
	outPath := flagSet.String("out", "", "Output file (default testbook_YYYYMMDD_HHMMSS.<format>)")
	exportFormat := flagSet.String("format", exportFormatCSV, "Output file format: csv or json")
	summaryFormat := flagSet.String("summary", "text", "Summary format: text or json")
	apiKeyEnv := flagSet.String("api-key-env", defaultAPIKeyEnv, "Environment variable holding the provider API key")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "generate does not accept positional arguments")
		return 2
	}

	format, err := normalizeExportFormat(*exportFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	summary, err := normalizeTextJSONFormat("summary", *summaryFormat, "text")
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	cfg, ok := loadConfigForCommand(*configPath, errOut)
	if !ok {
		return 1
	}

	req, err := inputs.request(cfg.Input.Limits(), cfg.Generation.DefaultGlossary)
	if err != nil {
		return reportInputError(errOut, err)
	}

	apiKey := strings.TrimSpace(os.Getenv(*apiKeyEnv))
	if apiKey == "" {
		fmt.Fprintf(errOut, "%s is not set\n", *apiKeyEnv)
		return 1
	}

	logger := observability.NewLogger(errOut, cfg.Logging.Level)
	runtime := setupTelemetry(cfg, logger)
	defer shutdownOpenTelemetry(logger, runtime, otelShutdownTimeout)

	client, err := providers.NewOpenAIClient(providers.OpenAIOptions{
		APIKey:    apiKey,
		BaseURL:   cfg.Provider.BaseURL,
		Timeout:   cfg.Provider.Timeout(),
		Transport: runtime.WrapHTTPTransport(providers.NewTransport()),
	})
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize provider: %v\n", err)
		return 1
	}
	p, err := newPipeline(cfg, client, runtime, logger)
	if err != nil {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		return 1
	}

	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := p.Generate(ctx, req)
	if err != nil {
		fmt.Fprintln(errOut, pipeline.UserMessage(err))
		return 1
	}

	now := timeNow()
	path := strings.TrimSpace(*outPath)
	if path == "" {
		path = defaultExportPath(now, format)
	}
	if err := writeTestbookFile(path, format, outcome, now); err != nil {
		fmt.Fprintf(errOut, "failed to write testbook: %v\n", err)
		return 1
	}

	document := generateSummary{
		Output:    path,
		Format:    format,
		TestCases: len(outcome.TestCases),
		Flagged:   outcome.Flagged,
		Partial:   outcome.Partial,
		Selection: outcome.Selection,
		Estimate:  outcome.Estimate,
		Actual:    outcome.Actual,
		Warnings:  outcome.Warnings,
	}
	if err := writeGenerateSummary(out, summary, document); err != nil {
		fmt.Fprintf(errOut, "failed to write summary: %v\n", err)
		return 1
	}
	return 0
}

func writeGenerateSummary(out io.Writer, format string, document generateSummary) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document)
	}

	fmt.Fprintf(out, "Generated %d test cases -> %s\n", document.TestCases, document.Output)
	if document.Selection.Overridden {
		fmt.Fprintf(out, "Note: %s\n", document.Selection.Notice)
	}
	if document.Partial {
		fmt.Fprintln(out, "Note: the response was truncated; only complete test cases were kept")
	}

	meta := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(meta, "Model\t%s\n", document.Selection.Effective)
	fmt.Fprintf(meta, "Flagged\t%d\n", document.Flagged)
	fmt.Fprintf(meta, "Tokens\tinput=%d output=%d\n", document.Actual.InputTokens, document.Actual.OutputTokens)
	fmt.Fprintf(meta, "Estimated cost\t$%.4f - $%.4f\n", document.Estimate.Low.TotalUSD, document.Estimate.High.TotalUSD)
	fmt.Fprintf(meta, "Actual cost\t$%.4f\n", document.Actual.TotalUSD)
	if err := meta.Flush(); err != nil {
		return err
	}

	for _, warning := range document.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", warning.String())
	}
	return nil
}
