// Package tokens approximates prompt token counts before a provider call.
//
// Counts are heuristic. Text is split into runs of letters, runs of digits and
// single symbol or ideographic runes; a run of n letters costs ceil(n/k)
// tokens where k depends on the model's tokenizer family. Every step of the
// walk can only add tokens, so appending text never lowers a count.
package tokens

import (
	"strings"
	"unicode"
)

// Family names a tokenizer vocabulary.
type Family string

const (
	FamilyCL100K Family = "cl100k_base"
	FamilyO200K  Family = "o200k_base"
)

// DefaultFamily is used for models the estimator does not recognize.
const DefaultFamily = FamilyCL100K

// DefaultImageTokens approximates one image at high detail on a 1024x1024
// canvas: 85 base tokens plus 170 for each of four 512px tiles. Provider-side
// tiling depends on resolution, so this is a planning number, not an invoice.
const DefaultImageTokens = 765

const (
	// Chat framing: every message carries a few tokens of role markup and the
	// reply is primed with another few.
	tokensPerMessage = 3
	tokensReplyPrime = 3

	digitsPerToken = 3
)

type familyRule struct {
	prefix string
	family Family
}

// Longer prefixes first so gpt-4o wins over gpt-4.
var familyPrefixes = []familyRule{
	{prefix: "gpt-4o", family: FamilyO200K},
	{prefix: "gpt-4.1", family: FamilyO200K},
	{prefix: "gpt-5", family: FamilyO200K},
	{prefix: "o1", family: FamilyO200K},
	{prefix: "o3", family: FamilyO200K},
	{prefix: "o4", family: FamilyO200K},
	{prefix: "gpt-4", family: FamilyCL100K},
	{prefix: "gpt-3.5", family: FamilyCL100K},
	{prefix: "text-embedding-3", family: FamilyCL100K},
}

var lettersPerToken = map[Family]int{
	FamilyCL100K: 5,
	FamilyO200K:  6,
}

// FamilyForModel reports the tokenizer family for a model name. The boolean
// is false when the model is unknown and DefaultFamily was substituted.
func FamilyForModel(model string) (Family, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return DefaultFamily, false
	}
	for _, rule := range familyPrefixes {
		if strings.HasPrefix(model, rule.prefix) {
			return rule.family, true
		}
	}
	return DefaultFamily, false
}

// Estimator counts tokens for text and image inputs.
type Estimator struct {
	imageTokens int
}

// NewEstimator returns an estimator charging imageTokens per image.
// Non-positive values select DefaultImageTokens.
func NewEstimator(imageTokens int) *Estimator {
	if imageTokens <= 0 {
		imageTokens = DefaultImageTokens
	}
	return &Estimator{imageTokens: imageTokens}
}

// ImageTokens returns the fixed per-image charge.
func (e *Estimator) ImageTokens() int {
	return e.imageTokens
}

// Count returns the summed token estimate of fragments for model.
// Unknown models are counted with DefaultFamily.
func (e *Estimator) Count(model string, fragments ...string) int {
	family, _ := FamilyForModel(model)
	perToken := lettersPerToken[family]

	total := 0
	for _, fragment := range fragments {
		total += countText(fragment, perToken)
	}
	return total
}

// Images returns the approximate token charge for n images.
func (e *Estimator) Images(n int) int {
	if n <= 0 {
		return 0
	}
	return n * e.imageTokens
}

// Prompt estimates a two-message chat request: system and user text plus
// attached images.
func (e *Estimator) Prompt(model, system, user string, images int) int {
	total := e.Count(model, system) + e.Count(model, user)
	total += 2*tokensPerMessage + tokensReplyPrime
	total += e.Images(images)
	return total
}

type runClass int

const (
	runNone runClass = iota
	runLetters
	runDigits
)

func countText(text string, perToken int) int {
	count := 0
	class := runNone
	length := 0

	flush := func() {
		switch class {
		case runLetters:
			count += ceilDiv(length, perToken)
		case runDigits:
			count += ceilDiv(length, digitsPerToken)
		}
		class = runNone
		length = 0
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsDigit(r):
			if class != runDigits {
				flush()
				class = runDigits
			}
			length++
		case unicode.IsLetter(r) && !isIdeographic(r):
			if class != runLetters {
				flush()
				class = runLetters
			}
			length++
		default:
			// Punctuation, symbols and ideographs are charged one token each.
			flush()
			count++
		}
	}
	flush()

	return count
}

func isIdeographic(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
