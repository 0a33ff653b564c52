// Package sanitize neutralizes adversarial patterns in untrusted issue text
// before that text is embedded in a model prompt.
//
// The defense is a denial list of the highest-leverage prompt-override
// phrasings; the input space is unbounded free text, so no allow list is
// possible. The list is not a complete defense on its own and is paired with
// the structural prompt delimiters in the ai package, which bound what even
// a successful injection can achieve.
package sanitize

import (
	"regexp"
	"strings"
)

// RedactionMarker replaces every denial-listed match. Matches are replaced
// rather than deleted: deleting a match could reassemble the surrounding
// text into a new dangerous phrase.
const RedactionMarker = "[REDACTED]"

// TruncationNotice is appended when the input exceeded the length cap, so
// the model and anyone reading logs can see content was cut.
const TruncationNotice = "\n\n[Content truncated for security]"

// Rule pairs an injection pattern with its replacement. Rules apply in
// order. The list is pluggable so new attack patterns can be added without
// touching call sites.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// defaultRules catches known prompt-override phrasings, role markers, and
// pseudo-special tokens.
var defaultRules = []Rule{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+instructions?`), RedactionMarker},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+instructions?`), RedactionMarker},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|above|prior)\s+instructions?`), RedactionMarker},
	{regexp.MustCompile(`(?i)new\s+instructions?:`), RedactionMarker},
	{regexp.MustCompile(`(?i)system\s*:`), RedactionMarker},
	{regexp.MustCompile(`(?i)assistant\s*:`), RedactionMarker},
	{regexp.MustCompile(`(?i)\[SYSTEM\]`), RedactionMarker},
	{regexp.MustCompile(`(?i)\[ASSISTANT\]`), RedactionMarker},
	{regexp.MustCompile(`(?i)<\|im_start\|>`), RedactionMarker},
	{regexp.MustCompile(`(?i)<\|im_end\|>`), RedactionMarker},
}

// newlineFloodRegex matches runs of 4+ newlines. Collapsing them bounds an
// attacker's ability to push the real instructions out of the model's
// effective context with vertical whitespace.
var newlineFloodRegex = regexp.MustCompile(`\n{4,}`)

// DefaultRules returns a copy of the built-in rule list.
func DefaultRules() []Rule {
	rules := make([]Rule, len(defaultRules))
	copy(rules, defaultRules)
	return rules
}

// Sanitize truncates text to maxLen, redacts denial-listed phrasings,
// escapes backticks, and collapses newline floods. It never fails: every
// input, however malformed, yields a string. Empty input yields "".
func Sanitize(text string, maxLen int) string {
	return SanitizeWith(text, maxLen, defaultRules)
}

// SanitizeWith is Sanitize with a caller-supplied rule list.
func SanitizeWith(text string, maxLen int, rules []Rule) string {
	if text == "" {
		return ""
	}

	// Re-sanitizing previously sanitized output must be a no-op, so a
	// trailing truncation notice is lifted off before the length check and
	// restored afterwards rather than truncated into garbage.
	body := strings.TrimSuffix(text, TruncationNotice)
	truncated := body != text

	if len(body) > maxLen {
		body = body[:maxLen]
		truncated = true
	}

	for _, rule := range rules {
		body = rule.Pattern.ReplaceAllString(body, rule.Replacement)
	}

	// Backticks would break the delimiter structure of the templated prompt.
	body = strings.ReplaceAll(body, "`", "'")

	body = newlineFloodRegex.ReplaceAllString(body, "\n\n\n")

	// The redaction marker can be longer than the phrase it replaced, so
	// redaction may push the text back over the cap. Re-truncate silently:
	// the notice below is reserved for caller content that was cut.
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	if truncated {
		body += TruncationNotice
	}
	return body
}
