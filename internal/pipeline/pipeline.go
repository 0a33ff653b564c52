// Package pipeline orchestrates the per-issue triage stages and reports
// the run outcome.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/stacklight/triage/internal/ai"
	"github.com/stacklight/triage/internal/dedup"
	"github.com/stacklight/triage/internal/retry"
	"github.com/stacklight/triage/internal/taxonomy"
	"github.com/stacklight/triage/internal/tracker"
	"github.com/stacklight/triage/internal/types"
)

// Stage identifies one step of the triage sequence.
type Stage string

const (
	StageClassification     Stage = "classification"
	StageLabelAssignment    Stage = "label_assignment"
	StageDuplicateDetection Stage = "duplicate_detection"
	StageDuplicateComment   Stage = "duplicate_comment"
	StageDuplicateLabel     Stage = "duplicate_label"
)

// StageError records one stage failure without stopping the run.
type StageError struct {
	IssueNumber int
	Stage       Stage
	Message     string
}

// Pipeline runs the triage stages for one issue. Stages are isolated: a
// failure is recorded and later stages still run, with one exception:
// the duplicate label is never applied when its explanatory comment could
// not be posted.
type Pipeline struct {
	classifier *ai.Classifier
	detector   *dedup.Detector
	tracker    tracker.Client
	tax        *taxonomy.Taxonomy
	policy     retry.Policy
}

// New assembles a pipeline. The tracker client should already be governed.
func New(classifier *ai.Classifier, detector *dedup.Detector, tc tracker.Client, tax *taxonomy.Taxonomy, policy retry.Policy) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		detector:   detector,
		tracker:    tc,
		tax:        tax,
		policy:     policy,
	}
}

// Run triages one issue and returns the stage errors it accumulated. An
// empty slice means full success.
func (p *Pipeline) Run(ctx context.Context, issue types.IssueSnapshot) []StageError {
	var errs []StageError
	record := func(stage Stage, err error) {
		fmt.Fprintf(os.Stderr, "Stage %s failed for issue #%d: %v\n", stage, issue.Number, err)
		errs = append(errs, StageError{IssueNumber: issue.Number, Stage: stage, Message: err.Error()})
	}

	fmt.Printf("Triaging issue #%d: %s\n", issue.Number, issue.Title)

	// Classification. A degraded result is a stage error but the issue
	// still gets its workflow label below.
	result := p.classifier.Classify(ctx, issue.Title, issue.Body)
	if result.Degraded() {
		record(StageClassification, fmt.Errorf("%s", result.Error))
	}

	// Label validation and assignment. pending-triage is always applied,
	// even when classification recommended nothing.
	labels := p.assignableLabels(result)
	err := retry.Do(ctx, "assign labels", p.policy, func(ctx context.Context) error {
		return p.tracker.AddLabels(ctx, issue.Number, labels)
	})
	if err != nil {
		record(StageLabelAssignment, err)
	} else {
		fmt.Printf("Applied %d label(s): %v\n", len(labels), labels)
	}

	// Duplicate detection.
	matches, err := p.detector.Detect(ctx, issue.Title, issue.Body, issue.Number)
	if err != nil {
		record(StageDuplicateDetection, err)
		return errs
	}
	if len(matches) == 0 {
		fmt.Printf("No duplicates found\n")
		return errs
	}
	fmt.Printf("Found %d likely duplicate(s)\n", len(matches))

	// Comment, then label. Labeling without the comment would close the
	// discussion door the comment opens.
	if err := p.detector.PostComment(ctx, issue.Number, matches); err != nil {
		record(StageDuplicateComment, err)
		return errs
	}
	if err := p.detector.MarkDuplicate(ctx, issue.Number); err != nil {
		record(StageDuplicateLabel, err)
	}
	return errs
}

// assignableLabels intersects the recommendation with the taxonomy and
// unions in the workflow label.
func (p *Pipeline) assignableLabels(result types.ClassificationResult) []string {
	valid, invalid := p.tax.Filter(result.RecommendedLabels)
	if len(invalid) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: discarding %d label(s) outside the taxonomy: %v\n",
			len(invalid), invalid)
	}
	for _, label := range valid {
		if label == taxonomy.LabelPendingTriage {
			return valid
		}
	}
	return append(valid, taxonomy.LabelPendingTriage)
}
