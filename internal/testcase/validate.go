package testcase

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResult means the model returned a well-formed but empty array.
var ErrEmptyResult = errors.New("no test cases generated")

// Warning records the fields replaced with Missing on one record.
type Warning struct {
	Index      int      `json:"index"`
	TestCaseID string   `json:"test_case_id"`
	Fields     []string `json:"fields"`
}

func (w Warning) String() string {
	return fmt.Sprintf("record %d (%s): missing %s", w.Index+1, w.TestCaseID, strings.Join(w.Fields, ", "))
}

// Report is the validated form of one model response.
type Report struct {
	TestCases []TestCase
	Flagged   int
	Warnings  []Warning
}

// Validate normalizes raw records into test cases, preserving order.
// Duplicate ids are passed through untouched.
func Validate(records []map[string]any) (Report, error) {
	if len(records) == 0 {
		return Report{}, ErrEmptyResult
	}

	report := Report{TestCases: make([]TestCase, 0, len(records))}
	for idx, record := range records {
		tc, missing := normalize(record)
		if len(missing) > 0 {
			tc.Status = StatusRepaired
			report.Flagged++
			report.Warnings = append(report.Warnings, Warning{Index: idx, TestCaseID: tc.ID, Fields: missing})
		} else {
			tc.Status = StatusValid
		}
		report.TestCases = append(report.TestCases, tc)
	}
	return report, nil
}

func normalize(record map[string]any) (TestCase, []string) {
	var missing []string
	text := func(field string) string {
		value, ok := record[field].(string)
		if !ok {
			missing = append(missing, field)
			return Missing
		}
		return value
	}

	// A blank id cannot identify the row, so it counts as missing.
	id, ok := record[FieldID].(string)
	if !ok || strings.TrimSpace(id) == "" {
		missing = append(missing, FieldID)
		id = Missing
	}

	tc := TestCase{
		ID:           id,
		Name:         text(FieldName),
		Precondition: text(FieldPrecondition),
	}

	steps, ok := stepsValue(record[FieldSteps])
	if !ok || len(steps) == 0 {
		missing = append(missing, FieldSteps)
		steps = []string{Missing}
	}
	tc.Steps = steps
	tc.ExpectedResult = text(FieldExpectedResult)

	return tc, missing
}

// stepsValue accepts a newline-separated string or an array of strings.
func stepsValue(raw any) ([]string, bool) {
	switch typed := raw.(type) {
	case string:
		return splitSteps(strings.Split(typed, "\n")), true
	case []any:
		lines := make([]string, 0, len(typed))
		for _, item := range typed {
			line, ok := item.(string)
			if !ok {
				return nil, false
			}
			lines = append(lines, line)
		}
		return splitSteps(lines), true
	default:
		return nil, false
	}
}

func splitSteps(lines []string) []string {
	steps := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		steps = append(steps, line)
	}
	return steps
}
