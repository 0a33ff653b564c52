// Package tracker abstracts the issue-tracker API behind a small
// capability set and governs the request rate against it.
package tracker

import (
	"context"
	"time"

	"github.com/stacklight/triage/internal/types"
)

// ListFilter narrows an issue listing. Zero values mean "no constraint".
type ListFilter struct {
	State        string    // "opened", "closed", or "" for all
	Labels       []string  // Issues must carry every listed label
	CreatedAfter time.Time // Only issues created at or after this instant
}

// Comment is one discussion note on an issue.
type Comment struct {
	Body      string
	CreatedAt time.Time
	System    bool // Tracker-generated, not authored by a user or bot
}

// LabelEvent records a label being added to or removed from an issue.
type LabelEvent struct {
	Label     string
	Action    string // "add" or "remove"
	CreatedAt time.Time
}

// RateStatus is a snapshot of the remaining API quota.
type RateStatus struct {
	Remaining int
	ResetAt   time.Time
	Known     bool // False when the tracker exposed no quota headers
}

// Client is the capability set the triage pipeline needs from a tracker.
// Implementations wrap a concrete API; tests substitute fakes.
type Client interface {
	// GetIssue fetches one issue by number.
	GetIssue(ctx context.Context, number int) (*types.IssueSnapshot, error)

	// ListIssues returns issues matching the filter, newest first,
	// paginating internally until exhausted.
	ListIssues(ctx context.Context, filter ListFilter) ([]types.IssueSnapshot, error)

	// AddLabels appends labels to an issue without disturbing existing ones.
	AddLabels(ctx context.Context, number int, labels []string) error

	// CreateComment posts a comment on an issue.
	CreateComment(ctx context.Context, number int, body string) error

	// ListComments returns an issue's comments, oldest first.
	ListComments(ctx context.Context, number int) ([]Comment, error)

	// ListLabelEvents returns the label add/remove history of an issue.
	ListLabelEvents(ctx context.Context, number int) ([]LabelEvent, error)

	// CloseIssue closes an issue.
	CloseIssue(ctx context.Context, number int) error

	// RateStatus reports the remaining API quota, when the tracker
	// exposes one.
	RateStatus(ctx context.Context) (RateStatus, error)
}
