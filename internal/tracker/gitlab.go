package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/stacklight/triage/internal/types"
)

const listPageSize = 100

// GitLab implements Client against the GitLab REST API. The underlying
// client already retries transient HTTP failures, so methods here map
// calls and translate types without their own retry loop.
type GitLab struct {
	client  *gitlab.Client
	project string
}

var _ Client = (*GitLab)(nil)

// NewGitLab creates a tracker client for one project. project is the
// path ("group/repo") or numeric ID; baseURL "" means gitlab.com.
func NewGitLab(token, baseURL, project string) (*GitLab, error) {
	if token == "" {
		return nil, fmt.Errorf("tracker token is required")
	}
	if project == "" {
		return nil, fmt.Errorf("tracker project is required")
	}

	opts := []gitlab.ClientOptionFunc{}
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL+"/api/v4"))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLab{client: client, project: project}, nil
}

func (g *GitLab) GetIssue(ctx context.Context, number int) (*types.IssueSnapshot, error) {
	issue, _, err := g.client.Issues.GetIssue(g.project, int64(number), gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	snapshot := snapshotFromIssue(issue)
	return &snapshot, nil
}

func (g *GitLab) ListIssues(ctx context.Context, filter ListFilter) ([]types.IssueSnapshot, error) {
	opt := &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{PerPage: listPageSize, Page: 1},
		OrderBy:     gitlab.Ptr("created_at"),
		Sort:        gitlab.Ptr("desc"),
	}
	if filter.State != "" {
		opt.State = gitlab.Ptr(filter.State)
	}
	if len(filter.Labels) > 0 {
		labels := gitlab.LabelOptions(filter.Labels)
		opt.Labels = &labels
	}
	if !filter.CreatedAfter.IsZero() {
		after := filter.CreatedAfter
		opt.CreatedAfter = &after
	}

	var snapshots []types.IssueSnapshot
	for {
		issues, resp, err := g.client.Issues.ListProjectIssues(g.project, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing issues: %w", err)
		}
		for _, issue := range issues {
			snapshots = append(snapshots, snapshotFromIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return snapshots, nil
}

func (g *GitLab) AddLabels(ctx context.Context, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	add := gitlab.LabelOptions(labels)
	_, _, err := g.client.Issues.UpdateIssue(g.project, int64(number), &gitlab.UpdateIssueOptions{
		AddLabels: &add,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("adding labels to issue #%d: %w", number, err)
	}
	return nil
}

func (g *GitLab) CreateComment(ctx context.Context, number int, body string) error {
	_, _, err := g.client.Notes.CreateIssueNote(g.project, int64(number), &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("commenting on issue #%d: %w", number, err)
	}
	return nil
}

func (g *GitLab) ListComments(ctx context.Context, number int) ([]Comment, error) {
	opt := &gitlab.ListIssueNotesOptions{
		ListOptions: gitlab.ListOptions{PerPage: listPageSize, Page: 1},
		OrderBy:     gitlab.Ptr("created_at"),
		Sort:        gitlab.Ptr("asc"),
	}
	var comments []Comment
	for {
		notes, resp, err := g.client.Notes.ListIssueNotes(g.project, int64(number), opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing comments on issue #%d: %w", number, err)
		}
		for _, note := range notes {
			c := Comment{Body: note.Body, System: note.System}
			if note.CreatedAt != nil {
				c.CreatedAt = *note.CreatedAt
			}
			comments = append(comments, c)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return comments, nil
}

func (g *GitLab) ListLabelEvents(ctx context.Context, number int) ([]LabelEvent, error) {
	opt := &gitlab.ListLabelEventsOptions{
		ListOptions: gitlab.ListOptions{PerPage: listPageSize, Page: 1},
	}
	var events []LabelEvent
	for {
		page, resp, err := g.client.ResourceLabelEvents.ListIssueLabelEvents(g.project, int64(number), opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing label events on issue #%d: %w", number, err)
		}
		for _, ev := range page {
			e := LabelEvent{Label: ev.Label.Name, Action: ev.Action}
			if ev.CreatedAt != nil {
				e.CreatedAt = *ev.CreatedAt
			}
			events = append(events, e)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return events, nil
}

func (g *GitLab) CloseIssue(ctx context.Context, number int) error {
	_, _, err := g.client.Issues.UpdateIssue(g.project, int64(number), &gitlab.UpdateIssueOptions{
		StateEvent: gitlab.Ptr("close"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("closing issue #%d: %w", number, err)
	}
	return nil
}

// RateStatus issues a cheap authenticated request and reads the quota
// headers off the response. GitLab has no dedicated quota endpoint.
func (g *GitLab) RateStatus(ctx context.Context) (RateStatus, error) {
	_, resp, err := g.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return RateStatus{}, fmt.Errorf("querying rate status: %w", err)
	}

	remaining := resp.Header.Get("RateLimit-Remaining")
	reset := resp.Header.Get("RateLimit-Reset")
	if remaining == "" {
		return RateStatus{}, nil
	}

	status := RateStatus{Known: true}
	status.Remaining, err = strconv.Atoi(remaining)
	if err != nil {
		return RateStatus{}, fmt.Errorf("parsing RateLimit-Remaining %q: %w", remaining, err)
	}
	if reset != "" {
		epoch, err := strconv.ParseInt(reset, 10, 64)
		if err != nil {
			return RateStatus{}, fmt.Errorf("parsing RateLimit-Reset %q: %w", reset, err)
		}
		status.ResetAt = time.Unix(epoch, 0)
	}
	return status, nil
}

func snapshotFromIssue(issue *gitlab.Issue) types.IssueSnapshot {
	s := types.IssueSnapshot{
		Number: int(issue.IID),
		Title:  issue.Title,
		Body:   issue.Description,
		Labels: append([]string(nil), issue.Labels...),
		URL:    issue.WebURL,
		State:  issue.State,
	}
	if issue.CreatedAt != nil {
		s.CreatedAt = *issue.CreatedAt
	}
	if issue.UpdatedAt != nil {
		s.UpdatedAt = *issue.UpdatedAt
	}
	return s
}
