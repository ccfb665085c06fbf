package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ongoingai/testbook/internal/pipeline"
	"github.com/ongoingai/testbook/internal/testcase"
)

const (
	exportFormatCSV  = "csv"
	exportFormatJSON = "json"
)

const exportSchemaVersion = "testbook.v1"

// exportDocument is the JSON testbook. It carries the same rows as the CSV
// plus the generation summary.
type exportDocument struct {
	SchemaVersion string              `json:"schema_version"`
	GenerationID  string              `json:"generation_id"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Model         string              `json:"model"`
	Flagged       int                 `json:"flagged"`
	CostUSD       float64             `json:"cost_usd"`
	TestCases     []testcase.TestCase `json:"test_cases"`
}

func normalizeExportFormat(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", exportFormatCSV:
		return exportFormatCSV, nil
	case exportFormatJSON:
		return exportFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid export format %q: expected csv or json", raw)
	}
}

// defaultExportPath names the file after the local generation time.
func defaultExportPath(now time.Time, format string) string {
	return fmt.Sprintf("testbook_%s.%s", now.Format("20060102_150405"), format)
}

func writeTestbookFile(path, format string, outcome *pipeline.Outcome, now time.Time) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	switch format {
	case exportFormatJSON:
		err = writeTestbookJSON(file, outcome, now)
	default:
		err = writeTestbookCSV(file, outcome.TestCases)
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close output file: %w", closeErr)
	}
	if err != nil {
		// Leave no half-written testbook behind.
		_ = os.Remove(path)
	}
	return err
}

func writeTestbookCSV(w io.Writer, cases []testcase.TestCase) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(testcase.Columns); err != nil {
		return err
	}
	for _, tc := range cases {
		if err := writer.Write(tc.Row()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeTestbookJSON(w io.Writer, outcome *pipeline.Outcome, now time.Time) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportDocument{
		SchemaVersion: exportSchemaVersion,
		GenerationID:  outcome.GenerationID,
		GeneratedAt:   now.UTC(),
		Model:         outcome.Model(),
		Flagged:       outcome.Flagged,
		CostUSD:       outcome.Actual.TotalUSD,
		TestCases:     outcome.TestCases,
	})
}
