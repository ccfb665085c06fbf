package testcase

import "strings"

// Missing is written into any required field the model left out.
const Missing = "N/A"

// Field names as they appear in model output.
const (
	FieldID             = "test_case_id"
	FieldName           = "test_case_name"
	FieldPrecondition   = "precondition"
	FieldSteps          = "steps"
	FieldExpectedResult = "expected_result"
)

// RequiredFields lists every field a record must carry, in column order.
var RequiredFields = []string{FieldID, FieldName, FieldPrecondition, FieldSteps, FieldExpectedResult}

// Status tags how a record came out of validation.
type Status string

const (
	StatusValid    Status = "valid"
	StatusRepaired Status = "repaired"
)

// TestCase is one row of a manual testbook.
type TestCase struct {
	ID             string   `json:"test_case_id"`
	Name           string   `json:"test_case_name"`
	Precondition   string   `json:"precondition"`
	Steps          []string `json:"steps"`
	ExpectedResult string   `json:"expected_result"`
	Status         Status   `json:"status"`
}

// StepsText renders the steps as one newline-separated cell.
func (tc TestCase) StepsText() string {
	return strings.Join(tc.Steps, "\n")
}

// Columns are the exported testbook headers. Result and Note are left for
// the tester to fill in.
var Columns = []string{
	"Test Case ID",
	"Test Case Name",
	"Precondition",
	"Steps",
	"Expected Result",
	"Result",
	"Note",
}

// Row renders the record in Columns order.
func (tc TestCase) Row() []string {
	return []string{tc.ID, tc.Name, tc.Precondition, tc.StepsText(), tc.ExpectedResult, "", ""}
}
