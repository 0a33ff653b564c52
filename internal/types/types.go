// Package types defines the shared domain types for the triage service.
package types

import (
	"fmt"
	"time"
)

// IssueSnapshot is a read-only projection of tracker state at fetch time.
// Staleness is expected and tolerated: duplicate scans are advisory, not
// transactional, so a snapshot that lags the tracker is still usable.
type IssueSnapshot struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Labels    []string  `json:"labels"`
	URL       string    `json:"url"`
	State     string    `json:"state"`
}

// HasLabel reports whether the snapshot carried the given label at fetch time.
func (s *IssueSnapshot) HasLabel(name string) bool {
	for _, l := range s.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// ClassificationResult is the outcome of one classification call. It is
// created once and never mutated. A non-empty Error marks a degraded
// placeholder: the model could not be consulted (or its output could not be
// parsed) and all other fields are best-effort empty.
type ClassificationResult struct {
	RecommendedLabels []string           `json:"recommended_labels"`
	ConfidenceByLabel map[string]float64 `json:"confidence_scores"`
	Reasoning         string             `json:"reasoning"`
	Error             string             `json:"error,omitempty"`
}

// Degraded reports whether this result is a placeholder produced in lieu of
// a real model answer.
func (r *ClassificationResult) Degraded() bool {
	return r.Error != ""
}

// DegradedClassification builds the placeholder result returned when
// classification fails. Collections are non-nil so callers can range over
// them without nil checks.
func DegradedClassification(reason string) ClassificationResult {
	return ClassificationResult{
		RecommendedLabels: []string{},
		ConfidenceByLabel: map[string]float64{},
		Error:             reason,
	}
}

// DuplicateMatch is one model-scored duplicate candidate. A detection run
// produces a set of these, deduplicated by issue number and ordered
// descending by similarity score.
type DuplicateMatch struct {
	IssueNumber     int     `json:"issue_number"`
	IssueTitle      string  `json:"issue_title"`
	SimilarityScore float64 `json:"similarity_score"`
	Reasoning       string  `json:"reasoning"`
	URL             string  `json:"url"`
}

// Validate checks the match for out-of-range values.
func (m *DuplicateMatch) Validate() error {
	if m.IssueNumber <= 0 {
		return fmt.Errorf("issue_number must be positive (got %d)", m.IssueNumber)
	}
	if m.SimilarityScore < 0.0 || m.SimilarityScore > 1.0 {
		return fmt.Errorf("similarity_score must be between 0.0 and 1.0 (got %.2f)", m.SimilarityScore)
	}
	return nil
}
