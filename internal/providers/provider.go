package providers

import (
	"context"

	"github.com/ongoingai/testbook/internal/prompt"
)

// Request is one generation call against the effective model.
type Request struct {
	Model           string
	Prompt          prompt.Prompt
	MaxOutputTokens int
	Temperature     float32
}

// Response is the provider's raw answer with its usage counters.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	// Truncated is set when generation stopped at the output token limit.
	Truncated    bool
	FinishReason string
}

// Generator sends a prompt and returns text plus usage. Implementations make
// exactly one attempt per call.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}
