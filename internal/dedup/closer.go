package dedup

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stacklight/triage/internal/taxonomy"
	"github.com/stacklight/triage/internal/tracker"
)

// DefaultCloseAfter is how long an issue keeps the duplicate label before
// it is closed, giving the reporter time to dispute.
const DefaultCloseAfter = 3 * 24 * time.Hour

// Matches the first issue reference in the detection comment. Fragile: a
// format change to FormatDuplicateComment that moves the "#N:" pattern
// breaks original-issue recovery and closes fall back to a generic
// reference.
var originalIssueRegex = regexp.MustCompile(`#(\d+):`)

// Closer closes issues that have carried the duplicate label long enough.
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

// NewCloser creates a duplicate closer. closeAfter <= 0 uses the default.
func NewCloser(tc tracker.Client, closeAfter time.Duration) *Closer {
	if closeAfter <= 0 {
		closeAfter = DefaultCloseAfter
	}
	return &Closer{tracker: tc, closeAfter: closeAfter, now: time.Now}
}

// Run closes every open duplicate-labeled issue whose label is older than
// the threshold. Per-issue failures are logged and skipped; only the
// initial listing can fail the run.
func (c *Closer) Run(ctx context.Context) (CloseStats, error) {
	issues, err := c.tracker.ListIssues(ctx, tracker.ListFilter{
		State:  "opened",
		Labels: []string{taxonomy.LabelDuplicate},
	})
	if err != nil {
		return CloseStats{}, fmt.Errorf("listing duplicate-labeled issues: %w", err)
	}
	fmt.Printf("Found %d open issue(s) with duplicate label\n", len(issues))

	stats := CloseStats{Processed: len(issues)}
	for _, issue := range issues {
		fmt.Printf("Processing issue #%d: %s\n", issue.Number, issue.Title)

		if !issue.HasLabel(taxonomy.LabelDuplicate) {
			fmt.Printf("  Skipped: duplicate label was removed\n")
			stats.Skipped++
			continue
		}

		labeledAt, err := c.labelAppliedAt(ctx, issue.Number)
		if err != nil || labeledAt.IsZero() {
			fmt.Printf("  Skipped: could not determine label date\n")
			stats.Skipped++
			continue
		}

		age := c.now().Sub(labeledAt)
		fmt.Printf("  Label age: %.1f days\n", age.Hours()/24)
		if age < c.closeAfter {
			fmt.Printf("  Skipped: not yet %.0f days old\n", c.closeAfter.Hours()/24)
			stats.Skipped++
			continue
		}

		original := c.originalIssue(ctx, issue.Number)
		if err := c.closeWithComment(ctx, issue.Number, original); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing issue #%d: %v\n", issue.Number, err)
			stats.Skipped++
			continue
		}
		fmt.Printf("  Closed issue #%d as duplicate\n", issue.Number)
		stats.Closed++
	}
	return stats, nil
}

// labelAppliedAt returns when the duplicate label was most recently added.
func (c *Closer) labelAppliedAt(ctx context.Context, issueNumber int) (time.Time, error) {
	events, err := c.tracker.ListLabelEvents(ctx, issueNumber)
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, ev := range events {
		if ev.Action == "add" && ev.Label == taxonomy.LabelDuplicate && ev.CreatedAt.After(latest) {
			latest = ev.CreatedAt
		}
	}
	return latest, nil
}

// originalIssue recovers the issue this one duplicates by scanning the
// detection comment. Returns 0 when no reference can be found; the close
// proceeds with a generic reference.
func (c *Closer) originalIssue(ctx context.Context, issueNumber int) int {
	comments, err := c.tracker.ListComments(ctx, issueNumber)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding original issue for #%d: %v\n", issueNumber, err)
		return 0
	}
	for _, comment := range comments {
		if !strings.Contains(comment.Body, CommentHeader) {
			continue
		}
		if m := originalIssueRegex.FindStringSubmatch(comment.Body); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n
		}
	}
	return 0
}

func (c *Closer) closeWithComment(ctx context.Context, issueNumber, originalIssue int) error {
	ref := "an existing issue"
	if originalIssue > 0 {
		ref = fmt.Sprintf("#%d", originalIssue)
	}
	body := fmt.Sprintf(`This issue has been automatically closed as it appears to be a duplicate of %s.

If you believe this is incorrect, please comment on this issue and a maintainer will review it.`, ref)

	if err := c.tracker.CreateComment(ctx, issueNumber, body); err != nil {
		return fmt.Errorf("posting close comment: %w", err)
	}
	if err := c.tracker.CloseIssue(ctx, issueNumber); err != nil {
		return fmt.Errorf("closing: %w", err)
	}
	return nil
}
