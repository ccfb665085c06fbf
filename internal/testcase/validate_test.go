package testcase

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func completeRecord(id string) map[string]any {
	return map[string]any{
		FieldID:             id,
		FieldName:           "Verify Submit Button Is Present",
		FieldPrecondition:   "User is signed in",
		FieldSteps:          "1. Navigate to Processes\n2. Click Rate\n",
		FieldExpectedResult: "Submit button is visible",
	}
}

func TestValidateCompleteRecords(t *testing.T) {
	t.Parallel()

	report, err := Validate([]map[string]any{completeRecord("TC01"), completeRecord("TC02")})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Flagged != 0 {
		t.Fatalf("flagged=%d, want 0", report.Flagged)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("warnings=%v, want none", report.Warnings)
	}
	if len(report.TestCases) != 2 {
		t.Fatalf("test cases=%d, want 2", len(report.TestCases))
	}
	first := report.TestCases[0]
	if first.ID != "TC01" || report.TestCases[1].ID != "TC02" {
		t.Fatalf("order=%q,%q, want TC01,TC02", first.ID, report.TestCases[1].ID)
	}
	if first.Status != StatusValid {
		t.Fatalf("status=%q, want %q", first.Status, StatusValid)
	}
	wantSteps := []string{"1. Navigate to Processes", "2. Click Rate"}
	if !reflect.DeepEqual(first.Steps, wantSteps) {
		t.Fatalf("steps=%q, want %q", first.Steps, wantSteps)
	}
}

func TestValidateMissingExpectedResult(t *testing.T) {
	t.Parallel()

	record := completeRecord("TC01")
	delete(record, FieldExpectedResult)

	report, err := Validate([]map[string]any{record, completeRecord("TC02")})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Flagged != 1 {
		t.Fatalf("flagged=%d, want 1", report.Flagged)
	}
	got := report.TestCases[0]
	if got.ExpectedResult != Missing {
		t.Fatalf("expected_result=%q, want %q", got.ExpectedResult, Missing)
	}
	if got.Status != StatusRepaired {
		t.Fatalf("status=%q, want %q", got.Status, StatusRepaired)
	}
	if report.TestCases[1].Status != StatusValid {
		t.Fatalf("second status=%q, want %q", report.TestCases[1].Status, StatusValid)
	}
	want := []Warning{{Index: 0, TestCaseID: "TC01", Fields: []string{FieldExpectedResult}}}
	if !reflect.DeepEqual(report.Warnings, want) {
		t.Fatalf("warnings=%+v, want %+v", report.Warnings, want)
	}
	if !strings.Contains(report.Warnings[0].String(), "expected_result") {
		t.Fatalf("warning text=%q, want field name", report.Warnings[0].String())
	}
}

func TestValidateNonStringFieldsAreReplaced(t *testing.T) {
	t.Parallel()

	report, err := Validate([]map[string]any{{
		FieldID:             float64(7),
		FieldName:           nil,
		FieldPrecondition:   map[string]any{"state": "x"},
		FieldSteps:          []any{"Click", 3},
		FieldExpectedResult: true,
	}})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Flagged != 1 {
		t.Fatalf("flagged=%d, want 1 (per record, not per field)", report.Flagged)
	}
	got := report.TestCases[0]
	if got.ID != Missing || got.Name != Missing || got.Precondition != Missing || got.ExpectedResult != Missing {
		t.Fatalf("test case=%+v, want every text field %q", got, Missing)
	}
	if !reflect.DeepEqual(got.Steps, []string{Missing}) {
		t.Fatalf("steps=%q, want [%q]", got.Steps, Missing)
	}
	if !reflect.DeepEqual(report.Warnings[0].Fields, RequiredFields) {
		t.Fatalf("warning fields=%v, want %v", report.Warnings[0].Fields, RequiredFields)
	}
}

func TestValidateAcceptsStepArrays(t *testing.T) {
	t.Parallel()

	record := completeRecord("TC01")
	record[FieldSteps] = []any{"Navigate to Processes", "  ", "Click Rate"}

	report, err := Validate([]map[string]any{record})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Flagged != 0 {
		t.Fatalf("flagged=%d, want 0", report.Flagged)
	}
	if got := report.TestCases[0].StepsText(); got != "Navigate to Processes\nClick Rate" {
		t.Fatalf("StepsText()=%q", got)
	}
}

func TestValidateBlankIDAndEmptyStepsAreFlagged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		id         any
		steps      any
		wantID     string
		wantFields []string
	}{
		{name: "empty id and empty steps string", id: "", steps: "", wantID: Missing, wantFields: []string{FieldID, FieldSteps}},
		{name: "whitespace id", id: "  \t", steps: "Click Rate", wantID: Missing, wantFields: []string{FieldID}},
		{name: "empty steps array", id: "TC01", steps: []any{}, wantID: "TC01", wantFields: []string{FieldSteps}},
		{name: "whitespace-only steps", id: "TC01", steps: []any{" ", "\n"}, wantID: "TC01", wantFields: []string{FieldSteps}},
		{name: "blank steps lines", id: "TC01", steps: "\n  \n", wantID: "TC01", wantFields: []string{FieldSteps}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			record := completeRecord("")
			record[FieldID] = tt.id
			record[FieldSteps] = tt.steps

			report, err := Validate([]map[string]any{record})
			if err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if report.Flagged != 1 {
				t.Fatalf("flagged=%d, want 1", report.Flagged)
			}
			got := report.TestCases[0]
			if got.Status != StatusRepaired {
				t.Fatalf("status=%q, want %q", got.Status, StatusRepaired)
			}
			if got.ID != tt.wantID {
				t.Fatalf("id=%q, want %q", got.ID, tt.wantID)
			}
			if slices.Contains(tt.wantFields, FieldSteps) && !reflect.DeepEqual(got.Steps, []string{Missing}) {
				t.Fatalf("steps=%q, want [%q]", got.Steps, Missing)
			}
			if !reflect.DeepEqual(report.Warnings[0].Fields, tt.wantFields) {
				t.Fatalf("warning fields=%v, want %v", report.Warnings[0].Fields, tt.wantFields)
			}
		})
	}
}

func TestValidateEmptyArray(t *testing.T) {
	t.Parallel()

	for _, records := range [][]map[string]any{nil, {}} {
		_, err := Validate(records)
		if !errors.Is(err, ErrEmptyResult) {
			t.Fatalf("Validate(%v) error=%v, want ErrEmptyResult", records, err)
		}
	}
}

func TestValidateKeepsDuplicateIDs(t *testing.T) {
	t.Parallel()

	report, err := Validate([]map[string]any{completeRecord("TC01"), completeRecord("TC01")})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if len(report.TestCases) != 2 || report.TestCases[0].ID != "TC01" || report.TestCases[1].ID != "TC01" {
		t.Fatalf("test cases=%+v, want both TC01 records", report.TestCases)
	}
	if report.Flagged != 0 {
		t.Fatalf("flagged=%d, want 0", report.Flagged)
	}
}

func TestRowMatchesColumns(t *testing.T) {
	t.Parallel()

	tc := TestCase{
		ID:             "TC01",
		Name:           "Verify Title",
		Precondition:   "Signed in",
		Steps:          []string{"Open page", "Read title"},
		ExpectedResult: "Title reads Rate",
	}
	row := tc.Row()
	if len(row) != len(Columns) {
		t.Fatalf("row width=%d, want %d", len(row), len(Columns))
	}
	want := []string{"TC01", "Verify Title", "Signed in", "Open page\nRead title", "Title reads Rate", "", ""}
	if !reflect.DeepEqual(row, want) {
		t.Fatalf("Row()=%q, want %q", row, want)
	}
}
