// Package parse recovers a JSON array of objects from free-form model output.
//
// Strategies run in a fixed order and the first one that yields an array whose
// elements are all objects wins:
//
//  1. the whole text as JSON
//  2. the body of a fenced code block (``` with optional language tag)
//  3. a balanced [...] span found by bracket-depth scanning
//  4. when the response was cut off, the prefix up to the last closed object
//
// Parse never panics on malformed input; it returns a *Failure instead.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Strategy names the step that produced a result.
type Strategy string

const (
	StrategyDirect           Strategy = "direct"
	StrategyFencedBlock      Strategy = "fenced_block"
	StrategyBracketScan      Strategy = "bracket_scan"
	StrategyTruncationRepair Strategy = "truncation_repair"
)

// ErrParse is matched by every *Failure.
var ErrParse = errors.New("could not parse test cases from response")

// maxScanStarts bounds how many '[' positions the scanners try.
const maxScanStarts = 64

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)```")

// Result is a decoded array of raw records.
type Result struct {
	Records  []map[string]any
	Strategy Strategy
	// Partial is set when records were salvaged from a truncated response.
	Partial bool
}

// Failure reports that no strategy produced an array of objects.
type Failure struct {
	Raw       string
	Truncated bool
	Reason    string
}

func (f *Failure) Error() string {
	if f.Reason == "" {
		return ErrParse.Error()
	}
	return fmt.Sprintf("%s: %s", ErrParse.Error(), f.Reason)
}

func (f *Failure) Unwrap() error {
	return ErrParse
}

// Parse extracts records from text. truncated reports that the provider
// stopped at its output limit, which enables the repair strategy.
func Parse(text string, truncated bool) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}, &Failure{Raw: text, Truncated: truncated, Reason: "response is empty"}
	}

	if records, ok := decodeObjects(trimmed); ok {
		return Result{Records: records, Strategy: StrategyDirect}, nil
	}

	body := trimmed
	if inner, ok := stripFence(trimmed); ok {
		if records, ok := decodeObjects(inner); ok {
			return Result{Records: records, Strategy: StrategyFencedBlock}, nil
		}
		body = inner
	}

	// A fence may wrap an example rather than the answer, or close early on a
	// backtick inside a string, so the full text is scanned as well.
	candidates := []string{body}
	if body != trimmed {
		candidates = append(candidates, trimmed)
	}

	for _, candidate := range candidates {
		if records, ok := scanArray(candidate); ok {
			return Result{Records: records, Strategy: StrategyBracketScan}, nil
		}
	}

	if !truncated {
		return Result{}, &Failure{Raw: text, Reason: "no JSON array of objects found"}
	}
	for _, candidate := range candidates {
		if records, ok := repairTruncated(candidate); ok {
			return Result{Records: records, Strategy: StrategyTruncationRepair, Partial: true}, nil
		}
	}
	return Result{}, &Failure{Raw: text, Truncated: true, Reason: "truncated response has no complete object"}
}

func decodeObjects(text string) ([]map[string]any, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") {
		return nil, false
	}

	var raw []any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}

	records := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		records = append(records, obj)
	}
	return records, true
}

func stripFence(text string) (string, bool) {
	if match := fencedBlock.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1]), true
	}

	// An opening fence without its closing marker, typical of cut-off output.
	if strings.HasPrefix(text, "```") {
		inner := text[3:]
		if idx := strings.IndexByte(inner, '\n'); idx >= 0 {
			inner = inner[idx+1:]
		} else {
			inner = strings.TrimLeft(inner, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_+-")
		}
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(inner), "```")), true
	}
	return "", false
}

func scanArray(text string) ([]map[string]any, bool) {
	for _, start := range openBrackets(text) {
		end, ok := matchBracket(text, start)
		if !ok {
			continue
		}
		if records, ok := decodeObjects(text[start : end+1]); ok {
			return records, true
		}
	}

	// Widest span: first '[' through last ']'.
	first := strings.IndexByte(text, '[')
	last := strings.LastIndexByte(text, ']')
	if first >= 0 && last > first {
		return decodeObjects(text[first : last+1])
	}
	return nil, false
}

// matchBracket returns the index of the ']' closing the '[' at start, skipping
// brackets that appear inside JSON string literals.
func matchBracket(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}

// repairTruncated closes an array after its last complete top-level object.
func repairTruncated(text string) ([]map[string]any, bool) {
	for _, start := range openBrackets(text) {
		next := strings.TrimLeft(text[start+1:], " \t\r\n")
		if !strings.HasPrefix(next, "{") {
			continue
		}

		lastClose := lastClosedObject(text, start)
		if lastClose < 0 {
			continue
		}
		if records, ok := decodeObjects(text[start:lastClose+1] + "]"); ok && len(records) > 0 {
			return records, true
		}
	}
	return nil, false
}

// lastClosedObject walks the array opened at start and returns the index of
// the last '}' that closed an element of that array, or -1.
func lastClosedObject(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	lastClose := -1
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if c == '}' && depth == 1 {
				lastClose = i
			}
			if depth <= 0 {
				return lastClose
			}
		}
	}
	return lastClose
}

func openBrackets(text string) []int {
	var starts []int
	for i := 0; i < len(text) && len(starts) < maxScanStarts; i++ {
		if text[i] == '[' {
			starts = append(starts, i)
		}
	}
	return starts
}
