// Package dedup finds likely duplicates of a new issue among recent open
// issues and handles the downstream comment, label, and close actions.
package dedup

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/stacklight/triage/internal/ai"
	"github.com/stacklight/triage/internal/retry"
	"github.com/stacklight/triage/internal/tracker"
	"github.com/stacklight/triage/internal/types"
)

// Config bounds the duplicate scan.
type Config struct {
	SimilarityThreshold float64       // Matches below this are discarded
	Window              time.Duration // Candidate issues must be created within this window
	BatchSize           int           // Candidates per model call
	ExcerptLength       int           // Candidate body excerpt length in the prompt
	Retry               retry.Policy
}

// DefaultConfig returns standard scan bounds: the 90-day window and
// 10-issue batches keep the scan linear and each prompt small.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.8,
		Window:              90 * 24 * time.Hour,
		BatchSize:           10,
		ExcerptLength:       200,
		Retry:               retry.DefaultPolicy(),
	}
}

// Validate rejects unusable bounds.
func (c Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold %.2f out of range [0,1]", c.SimilarityThreshold)
	}
	if c.Window <= 0 {
		return fmt.Errorf("candidate window must be positive, got %v", c.Window)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.ExcerptLength <= 0 {
		return fmt.Errorf("excerpt length must be positive, got %d", c.ExcerptLength)
	}
	return nil
}

// Detector scans recent open issues for duplicates of a target issue.
type Detector struct {
	tracker tracker.Client
	invoker ai.Invoker
	cfg     Config

	now func() time.Time
}

// NewDetector creates a detector. The tracker client should already be
// governed; the detector adds retry around its own calls.
func NewDetector(tc tracker.Client, invoker ai.Invoker, cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{tracker: tc, invoker: invoker, cfg: cfg, now: time.Now}, nil
}

// Detect returns likely duplicates of the given issue, sorted by score
// descending. A batch whose model call fails after retries degrades to no
// matches from that batch; the scan itself only fails when the candidate
// fetch does.
func (d *Detector) Detect(ctx context.Context, title, body string, issueNumber int) ([]types.DuplicateMatch, error) {
	candidates, err := d.fetchCandidates(ctx, issueNumber)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		fmt.Printf("No candidate issues in window, skipping duplicate scan\n")
		return nil, nil
	}
	fmt.Printf("Scanning %d candidate issue(s) in %d-issue batches\n", len(candidates), d.cfg.BatchSize)

	byNumber := make(map[int]types.IssueSnapshot, len(candidates))
	for _, c := range candidates {
		byNumber[c.Number] = c
	}

	var matches []types.DuplicateMatch
	for start := 0; start < len(candidates); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		scores, err := ai.ScoreDuplicateBatch(ctx, d.invoker, title, body, batch, d.cfg.ExcerptLength)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: duplicate scan batch %d-%d failed: %v\n", start, end-1, err)
			continue
		}
		for _, s := range scores {
			if s.Score < d.cfg.SimilarityThreshold {
				continue
			}
			cand := byNumber[s.IssueNumber]
			matches = append(matches, types.DuplicateMatch{
				IssueNumber:     s.IssueNumber,
				IssueTitle:      cand.Title,
				SimilarityScore: s.Score,
				Reasoning:       s.Reason,
				URL:             cand.URL,
			})
		}
	}

	return SortAndDedupe(matches), nil
}

func (d *Detector) fetchCandidates(ctx context.Context, issueNumber int) ([]types.IssueSnapshot, error) {
	filter := tracker.ListFilter{
		State:        "opened",
		CreatedAfter: d.now().Add(-d.cfg.Window),
	}

	var issues []types.IssueSnapshot
	err := retry.Do(ctx, "list duplicate candidates", d.cfg.Retry, func(ctx context.Context) error {
		var listErr error
		issues, listErr = d.tracker.ListIssues(ctx, filter)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching duplicate candidates: %w", err)
	}

	candidates := issues[:0]
	for _, issue := range issues {
		if issue.Number == issueNumber {
			continue
		}
		candidates = append(candidates, issue)
	}
	return candidates, nil
}

// SortAndDedupe orders matches by score descending (stable on ties) and
// collapses repeated issue numbers, keeping the higher-scored entry.
func SortAndDedupe(matches []types.DuplicateMatch) []types.DuplicateMatch {
	if len(matches) == 0 {
		return matches
	}

	sorted := append([]types.DuplicateMatch(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SimilarityScore > sorted[j].SimilarityScore
	})

	seen := make(map[int]bool, len(sorted))
	result := sorted[:0]
	for _, m := range sorted {
		if seen[m.IssueNumber] {
			continue
		}
		seen[m.IssueNumber] = true
		result = append(result, m)
	}
	return result
}
