package ai

import (
	"context"
	"fmt"

	"github.com/stacklight/triage/internal/sanitize"
	"github.com/stacklight/triage/internal/types"
)

// ScoreDuplicateBatch asks the model to score one batch of candidate issues
// for similarity against the target issue. All untrusted text is sanitized
// before prompt assembly; candidate bodies are cut to excerptLen before
// sanitizing so a single verbose candidate cannot dominate the prompt.
func ScoreDuplicateBatch(ctx context.Context, invoker Invoker, title, body string, candidates []types.IssueSnapshot, excerptLen int) ([]DuplicateScore, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	cleanTitle := sanitize.Sanitize(title, MaxTitleLength)
	cleanBody := sanitize.Sanitize(body, MaxBodyLength)

	summaries := make([]CandidateSummary, 0, len(candidates))
	for _, cand := range candidates {
		excerpt := cand.Body
		if len(excerpt) > excerptLen {
			excerpt = excerpt[:excerptLen]
		}
		summaries = append(summaries, CandidateSummary{
			Number:  cand.Number,
			Title:   sanitize.Sanitize(cand.Title, MaxTitleLength),
			Excerpt: sanitize.Sanitize(excerpt, excerptLen),
		})
	}

	prompt := BuildDuplicateScanPrompt(cleanTitle, cleanBody, summaries)

	raw, err := invoker.Invoke(ctx, "duplicate-scan", prompt, 0)
	if err != nil {
		return nil, fmt.Errorf("duplicate scan model call: %w", err)
	}

	scores, err := ParseDuplicateScan(raw)
	if err != nil {
		return nil, err
	}

	// The model occasionally invents issue numbers; only scores for issues
	// actually in the batch count.
	known := make(map[int]bool, len(candidates))
	for _, cand := range candidates {
		known[cand.Number] = true
	}
	valid := scores[:0]
	for _, s := range scores {
		if known[s.IssueNumber] {
			valid = append(valid, s)
		}
	}
	return valid, nil
}
