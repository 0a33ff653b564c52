package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/stacklight/triage/internal/types"
)

// Pre-compiled patterns. Compiling on every parse is measurably slower and
// model responses are parsed on every triage run.
var (
	// Code fences around JSON output, with or without a language tag.
	codeFenceRegex = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\n?([\\s\\S]*?)\n?`{3}")

	// Trailing commas before closing braces/brackets, a common model quirk.
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseResult is the tagged outcome of a parse: success with data, or
// degraded with a reason. Parse failures are a normal, expected outcome
// under model output variance, never a panic and never an exception path.
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	OriginalText string
}

// Parse recovers a JSON value of type T from free-form model output.
//
// Strategy sequence:
//  1. Direct parse of the trimmed text
//  2. Strip code fences and retry
//  3. Fix trailing commas and retry
//  4. Extract the first brace-matched {...} span (the model may wrap the
//     JSON in prose) and retry
func Parse[T any](text, context string) ParseResult[T] {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseError[T]("empty input", text, context)
	}

	if result, err := tryDirectParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: result, OriginalText: text}
	}

	slog.Debug("direct JSON parse failed, trying cleanup strategies",
		"textPreview", truncate(trimmed, 100),
		"context", context)

	withoutFences := codeFenceRegex.ReplaceAllString(trimmed, "$1")
	if withoutFences != trimmed {
		if result, err := tryDirectParse[T](strings.TrimSpace(withoutFences)); err == nil {
			return ParseResult[T]{Success: true, Data: result, OriginalText: text}
		}
	}

	cleaned := strings.TrimSpace(trailingCommaRegex.ReplaceAllString(withoutFences, "$1"))
	if result, err := tryDirectParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: result, OriginalText: text}
	}

	if extracted := firstJSONObject(cleaned); extracted != "" {
		if result, err := tryDirectParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: result, OriginalText: text}
		}
	}

	return parseError[T]("all JSON parsing strategies failed", text, context)
}

func tryDirectParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// firstJSONObject returns the first brace-matched {...} span in text, or ""
// when none closes. The scan is string-aware so braces inside JSON string
// values do not unbalance the count.
func firstJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func parseError[T any](message, text, context string) ParseResult[T] {
	var zero T
	if context != "" {
		message = context + ": " + message
	}
	slog.Warn("model response parse failed", "error", message, "textPreview", truncate(text, 100))
	return ParseResult[T]{Success: false, Data: zero, Error: message, OriginalText: text}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// classificationPayload is the JSON shape the classification prompt asks
// the model to produce.
type classificationPayload struct {
	Labels     []string           `json:"labels"`
	Confidence map[string]float64 `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
}

// ParseClassification converts raw model output into a
// ClassificationResult. Any failure yields a degraded result with Error set
// and empty collections; it never propagates.
func ParseClassification(raw string) types.ClassificationResult {
	parsed := Parse[classificationPayload](raw, "classification response")
	if !parsed.Success {
		return types.DegradedClassification(parsed.Error)
	}

	result := types.ClassificationResult{
		RecommendedLabels: parsed.Data.Labels,
		ConfidenceByLabel: parsed.Data.Confidence,
		Reasoning:         parsed.Data.Reasoning,
	}
	if result.RecommendedLabels == nil {
		result.RecommendedLabels = []string{}
	}
	if result.ConfidenceByLabel == nil {
		result.ConfidenceByLabel = map[string]float64{}
	}
	return result
}

// DuplicateScore is one model-scored comparison from a duplicate scan.
type DuplicateScore struct {
	IssueNumber int     `json:"issue_number"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
}

// duplicateScanPayload is the JSON shape the duplicate-scan prompt asks the
// model to produce.
type duplicateScanPayload struct {
	Duplicates []DuplicateScore `json:"duplicates"`
}

// ParseDuplicateScan converts raw model output into duplicate scores. A
// parse failure is returned as an error so the caller can degrade that
// batch to an empty result; out-of-range scores are rejected the same way.
func ParseDuplicateScan(raw string) ([]DuplicateScore, error) {
	parsed := Parse[duplicateScanPayload](raw, "duplicate scan response")
	if !parsed.Success {
		return nil, fmt.Errorf("parsing duplicate scan: %s", parsed.Error)
	}
	for _, d := range parsed.Data.Duplicates {
		if d.Score < 0.0 || d.Score > 1.0 {
			return nil, fmt.Errorf("invalid similarity score %.2f for issue #%d (must be 0.0-1.0)",
				d.Score, d.IssueNumber)
		}
	}
	return parsed.Data.Duplicates, nil
}
