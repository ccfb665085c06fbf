package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ongoingai/testbook/internal/catalog"
)

type modelsDocument struct {
	DefaultModel    string            `json:"default_model"`
	MultimodalModel string            `json:"multimodal_model"`
	Models          []catalog.Profile `json:"models"`
}

func runModels(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("models", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", "text", "Output format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "models does not accept positional arguments")
		return 2
	}
	normalizedFormat, err := normalizeTextJSONFormat("models", *format, "text")
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	cfg, ok := loadConfigForCommand(*configPath, errOut)
	if !ok {
		return 1
	}
	models, err := cfg.Catalog()
	if err != nil {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		return 1
	}

	document := modelsDocument{
		DefaultModel:    cfg.Generation.DefaultModel,
		MultimodalModel: models.Multimodal().Name,
		Models:          models.Profiles(),
	}
	if err := writeModels(out, normalizedFormat, document); err != nil {
		fmt.Fprintf(errOut, "failed to write models: %v\n", err)
		return 1
	}
	return 0
}

func writeModels(out io.Writer, format string, document modelsDocument) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document)
	}

	table := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "MODEL\tINPUT $/1M\tOUTPUT $/1M\tCONTEXT\tIMAGES\t")
	for _, profile := range document.Models {
		marker := ""
		switch profile.Name {
		case document.DefaultModel:
			marker = "default"
		case document.MultimodalModel:
			marker = "multimodal"
		}
		fmt.Fprintf(table, "%s\t%.2f\t%.2f\t%d\t%t\t%s\n",
			profile.Name,
			profile.InputPerMillion,
			profile.OutputPerMillion,
			profile.MaxContextTokens,
			profile.SupportsImages,
			marker,
		)
	}
	return table.Flush()
}
