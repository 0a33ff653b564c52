package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklight/triage/internal/ai"
	"github.com/stacklight/triage/internal/dedup"
	"github.com/stacklight/triage/internal/retry"
	"github.com/stacklight/triage/internal/taxonomy"
	"github.com/stacklight/triage/internal/tracker"
	"github.com/stacklight/triage/internal/types"
)

type fakeTracker struct {
	issues     []types.IssueSnapshot
	listErr    error
	labels     map[int][]string
	labelErr   error
	comments   map[int][]string
	commentErr error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{labels: make(map[int][]string), comments: make(map[int][]string)}
}

func (f *fakeTracker) GetIssue(context.Context, int) (*types.IssueSnapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTracker) ListIssues(context.Context, tracker.ListFilter) ([]types.IssueSnapshot, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.issues, nil
}

func (f *fakeTracker) AddLabels(_ context.Context, number int, labels []string) error {
	if f.labelErr != nil {
		return f.labelErr
	}
	f.labels[number] = append(f.labels[number], labels...)
	return nil
}

func (f *fakeTracker) CreateComment(_ context.Context, number int, body string) error {
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments[number] = append(f.comments[number], body)
	return nil
}

func (f *fakeTracker) ListComments(context.Context, int) ([]tracker.Comment, error) {
	return nil, nil
}

func (f *fakeTracker) ListLabelEvents(context.Context, int) ([]tracker.LabelEvent, error) {
	return nil, nil
}

func (f *fakeTracker) CloseIssue(context.Context, int) error { return nil }

func (f *fakeTracker) RateStatus(context.Context) (tracker.RateStatus, error) {
	return tracker.RateStatus{}, nil
}

// scriptedInvoker replays responses in invocation order.
type scriptedInvoker struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedInvoker) Invoke(_ context.Context, _, _ string, _ int) (string, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return `{"duplicates": []}`, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func buildPipeline(t *testing.T, ft *fakeTracker, inv ai.Invoker) *Pipeline {
	t.Helper()
	tax := taxonomy.Default()
	classifier := ai.NewClassifier(inv, tax)
	cfg := dedup.DefaultConfig()
	cfg.Retry = fastPolicy()
	detector, err := dedup.NewDetector(ft, inv, cfg)
	require.NoError(t, err)
	return New(classifier, detector, ft, tax, fastPolicy())
}

func candidate(number int) types.IssueSnapshot {
	return types.IssueSnapshot{
		Number:    number,
		Title:     fmt.Sprintf("candidate %d", number),
		Body:      "candidate body",
		CreatedAt: time.Now().Add(-time.Hour),
		State:     "opened",
		URL:       fmt.Sprintf("https://example.com/issues/%d", number),
	}
}

func newIssue() types.IssueSnapshot {
	return types.IssueSnapshot{Number: 99, Title: "App crashes on save", Body: "Crash every time"}
}

const classificationOK = `{"labels": ["theme:unexpected-error"], "confidence": {"theme:unexpected-error": 0.9}, "reasoning": "crash report"}`

func TestRunFullSuccess(t *testing.T) {
	ft := newFakeTracker()
	ft.issues = []types.IssueSnapshot{candidate(1)}
	inv := &scriptedInvoker{responses: []string{
		classificationOK,
		`{"duplicates": [{"issue_number": 1, "score": 0.9, "reason": "same crash"}]}`,
	}}
	p := buildPipeline(t, ft, inv)

	errs := p.Run(context.Background(), newIssue())
	assert.Empty(t, errs)
	assert.ElementsMatch(t, []string{"theme:unexpected-error", "pending-triage"}, ft.labels[99][:2])
	assert.Contains(t, ft.labels[99], "duplicate")
	require.Len(t, ft.comments[99], 1)
	assert.Contains(t, ft.comments[99][0], dedup.CommentHeader)
}

func TestRunDegradedClassificationStillLabels(t *testing.T) {
	ft := newFakeTracker()
	inv := &scriptedInvoker{responses: []string{"not json at all"}}
	p := buildPipeline(t, ft, inv)

	errs := p.Run(context.Background(), newIssue())
	require.Len(t, errs, 1)
	assert.Equal(t, StageClassification, errs[0].Stage)
	assert.Equal(t, 99, errs[0].IssueNumber)
	// The workflow label is applied even without a classification.
	assert.Equal(t, []string{"pending-triage"}, ft.labels[99])
}

func TestRunDiscardsLabelsOutsideTaxonomy(t *testing.T) {
	ft := newFakeTracker()
	inv := &scriptedInvoker{responses: []string{
		`{"labels": ["theme:unexpected-error", "invented-label"], "confidence": {}, "reasoning": ""}`,
	}}
	p := buildPipeline(t, ft, inv)

	errs := p.Run(context.Background(), newIssue())
	assert.Empty(t, errs)
	assert.Equal(t, []string{"theme:unexpected-error", "pending-triage"}, ft.labels[99])
}

func TestRunLabelAssignmentFailureContinues(t *testing.T) {
	ft := newFakeTracker()
	ft.issues = []types.IssueSnapshot{candidate(1)}
	ft.labelErr = errors.New("forbidden")
	inv := &scriptedInvoker{responses: []string{classificationOK, `{"duplicates": []}`}}
	p := buildPipeline(t, ft, inv)

	errs := p.Run(context.Background(), newIssue())
	require.Len(t, errs, 1)
	assert.Equal(t, StageLabelAssignment, errs[0].Stage)
	// Detection still ran: one classify call plus one scan call.
	assert.Equal(t, 2, inv.calls)
}

func TestRunDetectionFailureRecorded(t *testing.T) {
	ft := newFakeTracker()
	ft.listErr = errors.New("tracker down")
	inv := &scriptedInvoker{responses: []string{classificationOK}}
	p := buildPipeline(t, ft, inv)

	errs := p.Run(context.Background(), newIssue())
	require.Len(t, errs, 1)
	assert.Equal(t, StageDuplicateDetection, errs[0].Stage)
}

func TestRunCommentFailureSuppressesDuplicateLabel(t *testing.T) {
	ft := newFakeTracker()
	ft.issues = []types.IssueSnapshot{candidate(1)}
	ft.commentErr = errors.New("forbidden")
	inv := &scriptedInvoker{responses: []string{
		classificationOK,
		`{"duplicates": [{"issue_number": 1, "score": 0.9, "reason": "same"}]}`,
	}}
	p := buildPipeline(t, ft, inv)

	errs := p.Run(context.Background(), newIssue())
	require.Len(t, errs, 1)
	assert.Equal(t, StageDuplicateComment, errs[0].Stage)
	assert.NotContains(t, ft.labels[99], "duplicate")
}

func TestRunNoDuplicatesNoComment(t *testing.T) {
	ft := newFakeTracker()
	ft.issues = []types.IssueSnapshot{candidate(1)}
	inv := &scriptedInvoker{responses: []string{classificationOK, `{"duplicates": []}`}}
	p := buildPipeline(t, ft, inv)

	errs := p.Run(context.Background(), newIssue())
	assert.Empty(t, errs)
	assert.Empty(t, ft.comments)
	assert.NotContains(t, ft.labels[99], "duplicate")
}
