package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/stacklight/triage/internal/retry"
	"github.com/stacklight/triage/internal/taxonomy"
	"github.com/stacklight/triage/internal/types"
)

// CommentHeader opens every duplicate-detection comment. The duplicate
// closer later finds the comment by this marker, so it must stay stable.
const CommentHeader = "## Potential Duplicate Issues Detected"

// FormatDuplicateComment renders the matches as a markdown comment. Returns
// "" for an empty match set.
func FormatDuplicateComment(matches []types.DuplicateMatch) string {
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(CommentHeader)
	b.WriteString("\n\nThis issue appears to be similar to the following existing issue(s):\n\n")

	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "- [#%d: %s](%s) (%.0f%% similar)\n  %s",
			m.IssueNumber, m.IssueTitle, m.URL, m.SimilarityScore*100, m.Reasoning)
	}

	b.WriteString("\n\n---\n\nIf you believe this is not a duplicate, please provide additional details to help us understand the difference. A maintainer will review and remove the duplicate label if appropriate.")
	return b.String()
}

// PostComment posts the duplicate-detection comment on the issue.
func (d *Detector) PostComment(ctx context.Context, issueNumber int, matches []types.DuplicateMatch) error {
	body := FormatDuplicateComment(matches)
	if body == "" {
		return nil
	}
	err := retry.Do(ctx, "post duplicate comment", d.cfg.Retry, func(ctx context.Context) error {
		return d.tracker.CreateComment(ctx, issueNumber, body)
	})
	if err != nil {
		return fmt.Errorf("posting duplicate comment on issue #%d: %w", issueNumber, err)
	}
	return nil
}

// MarkDuplicate applies the duplicate workflow label. Callers must only do
// this after the explanatory comment was posted.
func (d *Detector) MarkDuplicate(ctx context.Context, issueNumber int) error {
	err := retry.Do(ctx, "apply duplicate label", d.cfg.Retry, func(ctx context.Context) error {
		return d.tracker.AddLabels(ctx, issueNumber, []string{taxonomy.LabelDuplicate})
	})
	if err != nil {
		return fmt.Errorf("labeling issue #%d as duplicate: %w", issueNumber, err)
	}
	return nil
}
