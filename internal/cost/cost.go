package cost

import (
	"math"

	"github.com/ongoingai/testbook/internal/catalog"
)

const tokensPerMillion = 1_000_000

// DefaultOutputRatio projects output tokens as a multiple of input tokens for
// the upper bound of a pre-call estimate.
const DefaultOutputRatio = 2.0

// Amount is a priced token usage in USD.
type Amount struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	InputUSD     float64 `json:"input_usd"`
	OutputUSD    float64 `json:"output_usd"`
	TotalUSD     float64 `json:"total_usd"`
}

// Calculate prices token counts with the profile's per-million rates.
// The result is linear in each count.
func Calculate(profile catalog.Profile, inputTokens, outputTokens int) Amount {
	inputTokens = max(inputTokens, 0)
	outputTokens = max(outputTokens, 0)

	inputUSD := float64(inputTokens) * profile.InputPerMillion / tokensPerMillion
	outputUSD := float64(outputTokens) * profile.OutputPerMillion / tokensPerMillion
	return Amount{
		Model:        profile.Name,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputUSD:     inputUSD,
		OutputUSD:    outputUSD,
		TotalUSD:     inputUSD + outputUSD,
	}
}

// Estimate is a pre-call cost range. Low covers input only; High adds a
// projected response.
type Estimate struct {
	Model                 string `json:"model"`
	InputTokens           int    `json:"input_tokens"`
	ProjectedOutputTokens int    `json:"projected_output_tokens"`
	Low                   Amount `json:"low"`
	High                  Amount `json:"high"`
}

// EstimateRange prices an estimated prompt. The projected output is
// outputRatio times the input, capped at maxOutputTokens when positive.
func EstimateRange(profile catalog.Profile, inputTokens int, outputRatio float64, maxOutputTokens int) Estimate {
	if outputRatio <= 0 {
		outputRatio = DefaultOutputRatio
	}
	inputTokens = max(inputTokens, 0)

	projected := int(math.Ceil(float64(inputTokens) * outputRatio))
	if maxOutputTokens > 0 && projected > maxOutputTokens {
		projected = maxOutputTokens
	}

	return Estimate{
		Model:                 profile.Name,
		InputTokens:           inputTokens,
		ProjectedOutputTokens: projected,
		Low:                   Calculate(profile, inputTokens, 0),
		High:                  Calculate(profile, inputTokens, projected),
	}
}
