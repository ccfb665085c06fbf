package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/ongoingai/testbook/internal/observability"
	"github.com/ongoingai/testbook/internal/version"
)

const defaultConfigPath = "testbook.yaml"

const defaultAPIKeyEnv = "OPENAI_API_KEY"

const otelShutdownTimeout = 5 * time.Second

var signalNotifyContext = signal.NotifyContext

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	return runWithIO(args, os.Stdout, os.Stderr)
}

func runWithIO(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintln(out, version.String())
		return 0
	case "generate":
		return runGenerate(args[1:], out, errOut)
	case "estimate":
		return runEstimate(args[1:], out, errOut)
	case "models":
		return runModels(args[1:], out, errOut)
	case "config":
		return runConfig(args[1:], out, errOut)
	case "help", "--help", "-h":
		printUsage(out)
		return 0
	default:
		printUsage(errOut)
		return 2
	}
}

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printConfigUsage(errOut)
		return 2
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], out, errOut)
	default:
		printConfigUsage(errOut)
		return 2
	}
}

func runConfigValidate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("config validate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "config validate does not accept positional arguments")
		return 2
	}

	_, _, err := loadAndValidateConfig(*configPath)
	if err != nil {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "config is valid: %s\n", *configPath)
	return 0
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  testbook generate [--config path/to/testbook.yaml] (--story TEXT | --story-file PATH) [--glossary TEXT | --glossary-file PATH] [--instructions TEXT | --instructions-file PATH] [--image PATH]... [--model NAME] [--out PATH] [--format csv|json] [--summary text|json] [--api-key-env NAME]")
	fmt.Fprintln(out, "  testbook estimate [--config path/to/testbook.yaml] (--story TEXT | --story-file PATH) [--glossary TEXT | --glossary-file PATH] [--instructions TEXT | --instructions-file PATH] [--image PATH]... [--model NAME] [--format text|json]")
	fmt.Fprintln(out, "  testbook models [--config path/to/testbook.yaml] [--format text|json]")
	fmt.Fprintln(out, "  testbook config validate [--config path/to/testbook.yaml]")
	fmt.Fprintln(out, "  testbook version")
}

func printConfigUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  testbook config validate [--config path/to/testbook.yaml]")
}

func shutdownOpenTelemetry(logger *slog.Logger, runtime *observability.Runtime, timeout time.Duration) {
	if runtime == nil || !runtime.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := runtime.Shutdown(ctx); err != nil {
		if logger != nil {
			logger.Error("failed to shutdown opentelemetry providers", "error", err, "timeout", timeout.String())
		}
	}
}
