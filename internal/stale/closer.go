// Package stale closes issues that waited too long for a reporter
// response.
package stale

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/stacklight/triage/internal/taxonomy"
	"github.com/stacklight/triage/internal/tracker"
)

// DefaultCloseAfter is how long an issue may sit with the
// pending-response label and no activity before it is closed.
const DefaultCloseAfter = 7 * 24 * time.Hour

// Closer closes inactive pending-response issues.
type Closer struct {
	tracker    tracker.Client
	closeAfter time.Duration

	now func() time.Time
}

// CloseStats summarizes one closer run.
type CloseStats struct {
	Processed int
	Closed    int
	Skipped   int
}

// NewCloser creates a stale closer. closeAfter <= 0 uses the default.
func NewCloser(tc tracker.Client, closeAfter time.Duration) *Closer {
	if closeAfter <= 0 {
		closeAfter = DefaultCloseAfter
	}
	return &Closer{tracker: tc, closeAfter: closeAfter, now: time.Now}
}

// Run closes every open pending-response issue with no activity since the
// threshold. Inactivity is measured from the most recent of the label
// application and the last comment or label event; a reply resets the
// clock. Per-issue failures are logged and skipped.
func (c *Closer) Run(ctx context.Context) (CloseStats, error) {
	issues, err := c.tracker.ListIssues(ctx, tracker.ListFilter{
		State:  "opened",
		Labels: []string{taxonomy.LabelPendingResponse},
	})
	if err != nil {
		return CloseStats{}, fmt.Errorf("listing pending-response issues: %w", err)
	}
	fmt.Printf("Found %d open issue(s) with pending-response label\n", len(issues))

	stats := CloseStats{Processed: len(issues)}
	for _, issue := range issues {
		fmt.Printf("Processing issue #%d: %s\n", issue.Number, issue.Title)

		if !issue.HasLabel(taxonomy.LabelPendingResponse) {
			fmt.Printf("  Skipped: pending-response label was removed\n")
			stats.Skipped++
			continue
		}

		reference, err := c.referenceTime(ctx, issue.Number)
		if err != nil || reference.IsZero() {
			fmt.Printf("  Skipped: could not determine label date\n")
			stats.Skipped++
			continue
		}

		inactive := c.now().Sub(reference)
		fmt.Printf("  Inactive for: %.1f days\n", inactive.Hours()/24)
		if inactive < c.closeAfter {
			fmt.Printf("  Skipped: not inactive long enough (needs %.0f days)\n", c.closeAfter.Hours()/24)
			stats.Skipped++
			continue
		}

		if err := c.closeWithComment(ctx, issue.Number); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing issue #%d: %v\n", issue.Number, err)
			stats.Skipped++
			continue
		}
		fmt.Printf("  Closed issue #%d due to inactivity\n", issue.Number)
		stats.Closed++
	}
	return stats, nil
}

// referenceTime is the instant the inactivity clock starts: the most
// recent of the pending-response label application, the latest comment,
// and the latest label event. Zero when the label application cannot be
// determined.
func (c *Closer) referenceTime(ctx context.Context, issueNumber int) (time.Time, error) {
	events, err := c.tracker.ListLabelEvents(ctx, issueNumber)
	if err != nil {
		return time.Time{}, err
	}

	var labeledAt, lastEvent time.Time
	for _, ev := range events {
		if ev.Action == "add" && ev.Label == taxonomy.LabelPendingResponse && ev.CreatedAt.After(labeledAt) {
			labeledAt = ev.CreatedAt
		}
		if ev.CreatedAt.After(lastEvent) {
			lastEvent = ev.CreatedAt
		}
	}
	if labeledAt.IsZero() {
		return time.Time{}, nil
	}

	reference := labeledAt
	if lastEvent.After(reference) {
		reference = lastEvent
	}

	comments, err := c.tracker.ListComments(ctx, issueNumber)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching activity for issue #%d: %v\n", issueNumber, err)
		return reference, nil
	}
	for _, comment := range comments {
		if comment.CreatedAt.After(reference) {
			reference = comment.CreatedAt
		}
	}
	return reference, nil
}

func (c *Closer) closeWithComment(ctx context.Context, issueNumber int) error {
	body := fmt.Sprintf(`This issue has been automatically closed due to inactivity. It has been %.0f days since we requested additional information.

If you still need help with this issue, please feel free to reopen it or create a new issue with the requested details.`, c.closeAfter.Hours()/24)

	if err := c.tracker.CreateComment(ctx, issueNumber, body); err != nil {
		return fmt.Errorf("posting close comment: %w", err)
	}
	if err := c.tracker.CloseIssue(ctx, issueNumber); err != nil {
		return fmt.Errorf("closing: %w", err)
	}
	return nil
}
