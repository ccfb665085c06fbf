package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ongoingai/testbook/internal/catalog"
	"github.com/ongoingai/testbook/internal/cost"
	"github.com/ongoingai/testbook/internal/parse"
	"github.com/ongoingai/testbook/internal/prompt"
	"github.com/ongoingai/testbook/internal/testcase"
)

// ErrInvalidRequest marks a request that cannot start a generation cycle.
var ErrInvalidRequest = errors.New("invalid generation request")

// Request is one user action. It is passed by value and never modified by
// the pipeline.
type Request struct {
	UserStory    string
	Glossary     string
	Instructions string
	Images       []prompt.Image
	// Model is the requested model. Empty selects the pipeline default.
	Model string
}

// Validate checks the fields every cycle depends on. Size and format limits
// belong to intake and are expected to have been applied already.
func (r Request) Validate() error {
	if strings.TrimSpace(r.UserStory) == "" {
		return fmt.Errorf("%w: user story is required", ErrInvalidRequest)
	}
	for idx, img := range r.Images {
		if len(img.Data) == 0 {
			name := img.Name
			if name == "" {
				name = fmt.Sprintf("#%d", idx+1)
			}
			return fmt.Errorf("%w: image %s is empty", ErrInvalidRequest, name)
		}
	}
	return nil
}

func (r Request) promptInput() prompt.Input {
	return prompt.Input{
		UserStory:    r.UserStory,
		Glossary:     r.Glossary,
		Instructions: r.Instructions,
		Images:       r.Images,
	}
}

// Plan is the pre-call view of a request. Estimate and Generate share it.
type Plan struct {
	Selection catalog.Selection
	Profile   catalog.Profile
	// Known is false when the effective model is missing from the catalog.
	// Profile then carries the prices of PricedAs.
	Known    bool
	PricedAs string
	// ExceedsContext is set when the estimated prompt is larger than the
	// effective model's context window.
	ExceedsContext bool
	Prompt         prompt.Prompt
	Estimate       cost.Estimate
}

// Outcome is the result of one successful cycle.
type Outcome struct {
	// GenerationID identifies the cycle in logs and traces.
	GenerationID string              `json:"generation_id"`
	TestCases    []testcase.TestCase `json:"test_cases"`
	Flagged      int                 `json:"flagged"`
	Warnings     []testcase.Warning  `json:"warnings,omitempty"`
	Selection    catalog.Selection   `json:"selection"`
	Estimate     cost.Estimate       `json:"estimate"`
	Actual       cost.Amount         `json:"actual"`
	Strategy     parse.Strategy      `json:"parse_strategy"`
	// Partial is set when records were salvaged from a truncated response.
	Partial      bool                `json:"partial"`
	Truncated    bool                `json:"truncated"`
}

// Model returns the model actually used.
func (o *Outcome) Model() string {
	return o.Selection.Effective
}
