package pipeline

import (
	"errors"

	"github.com/ongoingai/testbook/internal/intake"
	"github.com/ongoingai/testbook/internal/parse"
	"github.com/ongoingai/testbook/internal/providers"
	"github.com/ongoingai/testbook/internal/testcase"
)

// UserMessage maps a terminal cycle error to a sentence fit for the person
// who triggered the generation. Messages are stable across releases.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var providerErr *providers.Error
	if errors.As(err, &providerErr) {
		switch {
		case errors.Is(providerErr, providers.ErrContextLength):
			return "Input too long for model. Try a shorter user story."
		case errors.Is(providerErr, providers.ErrCanceled):
			return "Generation was canceled."
		}
		switch providerErr.Kind {
		case providers.KindAuthentication:
			return "Invalid OpenAI API key. Check the OPENAI_API_KEY setting."
		case providers.KindRateLimit:
			return "Rate limit or quota exceeded. Please wait and try again."
		case providers.KindTimeout:
			return "Request timed out. Try a shorter user story or try again."
		default:
			return "Could not reach the model provider. Please try again."
		}
	}

	var parseErr *parse.Failure
	if errors.As(err, &parseErr) {
		if parseErr.Truncated {
			return "The response was cut off before any complete test case. Try a shorter user story."
		}
		return "Could not parse test cases from the response. Please try again."
	}
	if errors.Is(err, parse.ErrParse) {
		return "Could not parse test cases from the response. Please try again."
	}

	if errors.Is(err, testcase.ErrEmptyResult) {
		return "No test cases were generated. Add more detail to the user story and try again."
	}

	var validationErr *intake.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	if errors.Is(err, ErrInvalidRequest) {
		return err.Error()
	}
	if errors.Is(err, ErrNoGenerator) {
		return "Generation is not configured. Set OPENAI_API_KEY and try again."
	}

	return "An unexpected error occurred. Please try again."
}
