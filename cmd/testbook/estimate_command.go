package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ongoingai/testbook/internal/catalog"
	"github.com/ongoingai/testbook/internal/cost"
	"github.com/ongoingai/testbook/internal/observability"
	"github.com/ongoingai/testbook/internal/pipeline"
)

type estimateDocument struct {
	Selection        catalog.Selection `json:"selection"`
	KnownModel       bool              `json:"known_model"`
	PricedAs         string            `json:"priced_as"`
	MaxContextTokens int               `json:"max_context_tokens,omitempty"`
	ExceedsContext   bool              `json:"exceeds_context"`
	Images           int               `json:"images"`
	ImageTokens      int               `json:"image_tokens_each"`
	Estimate         cost.Estimate     `json:"estimate"`
}

func runEstimate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("estimate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	var inputs requestFlags
	inputs.register(flagSet)
	format := flagSet.String("format", "text", "Output format: text or json")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "estimate does not accept positional arguments")
		return 2
	}
	normalizedFormat, err := normalizeTextJSONFormat("estimate", *format, "text")
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

	logger := observability.NewLogger(errOut, cfg.Logging.Level)
	p, err := newPipeline(cfg, nil, nil, logger)
	if err != nil {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		return 1
	}
	plan, err := p.Estimate(req)
	if err != nil {
		fmt.Fprintln(errOut, pipeline.UserMessage(err))
		return 1
	}

	document := estimateDocument{
		Selection:        plan.Selection,
		KnownModel:       plan.Known,
		PricedAs:         plan.PricedAs,
		MaxContextTokens: plan.Profile.MaxContextTokens,
		ExceedsContext:   plan.ExceedsContext,
		Images:           len(req.Images),
		ImageTokens:      cfg.Generation.ImageTokenEstimate,
		Estimate:         plan.Estimate,
	}
	if err := writeEstimate(out, normalizedFormat, document); err != nil {
		fmt.Fprintf(errOut, "failed to write estimate: %v\n", err)
		return 1
	}
	return 0
}

func writeEstimate(out io.Writer, format string, document estimateDocument) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document)
	}

	if document.Selection.Overridden {
		fmt.Fprintf(out, "Note: %s\n", document.Selection.Notice)
	}
	if !document.KnownModel {
		fmt.Fprintf(out, "Note: model %q is not in the catalog; costs use %s prices\n", document.Selection.Effective, document.PricedAs)
	}
	if document.ExceedsContext {
		fmt.Fprintf(out, "Warning: the prompt is larger than the %d token context window of %s\n", document.MaxContextTokens, document.Selection.Effective)
	}

	meta := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(meta, "Model\t%s\n", document.Selection.Effective)
	fmt.Fprintf(meta, "Input tokens\t%d\n", document.Estimate.InputTokens)
	if document.Images > 0 {
		fmt.Fprintf(meta, "Images\t%d (~%d tokens each)\n", document.Images, document.ImageTokens)
	}
	fmt.Fprintf(meta, "Projected output tokens\t%d\n", document.Estimate.ProjectedOutputTokens)
	fmt.Fprintf(meta, "Estimated cost\t$%.4f - $%.4f\n", document.Estimate.Low.TotalUSD, document.Estimate.High.TotalUSD)
	return meta.Flush()
}
