package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklight/triage/internal/ai"
	"github.com/stacklight/triage/internal/config"
	"github.com/stacklight/triage/internal/dedup"
	"github.com/stacklight/triage/internal/pipeline"
	"github.com/stacklight/triage/internal/retry"
	"github.com/stacklight/triage/internal/taxonomy"
	"github.com/stacklight/triage/internal/tracker"
	"github.com/stacklight/triage/internal/types"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Triage one issue: classify, label, and detect duplicates",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := config.Load()
		if err == nil {
			err = cfg.ValidateForTriage()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Issue Triage ==="))

		tax, err := loadTaxonomy(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		tc, err := newTracker(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		model, err := ai.NewClient(&ai.Config{APIKey: cfg.AnthropicAPIKey, Model: cfg.Model})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		issue, err := loadIssue(ctx, tc, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		classifier := ai.NewClassifier(model, tax)
		detector, err := dedup.NewDetector(tc, model, dedup.DefaultConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		p := pipeline.New(classifier, detector, tc, tax, retry.DefaultPolicy())

		summary := pipeline.NewSummary()
		summary.RecordResult(p.Run(ctx, *issue))
		summary.Render(os.Stdout)
		if err := summary.AppendToStepSummary(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		if !summary.Success() {
			os.Exit(1)
		}
	},
}

// loadIssue fetches the target issue, honoring the title/body overrides
// the triggering workflow may pass through the environment.
func loadIssue(ctx context.Context, tc tracker.Client, cfg *config.Config) (*types.IssueSnapshot, error) {
	issue, err := tc.GetIssue(ctx, cfg.IssueNumber)
	if err != nil {
		if cfg.IssueTitle == "" {
			return nil, err
		}
		// The workflow payload is enough to triage with.
		issue = &types.IssueSnapshot{Number: cfg.IssueNumber}
	}
	if cfg.IssueTitle != "" {
		issue.Title = cfg.IssueTitle
	}
	if cfg.IssueBody != "" {
		issue.Body = cfg.IssueBody
	}
	return issue, nil
}

func loadTaxonomy(cfg *config.Config) (*taxonomy.Taxonomy, error) {
	if cfg.TaxonomyFile == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.LoadFile(cfg.TaxonomyFile)
}

// newTracker builds the governed tracker client every command shares.
func newTracker(cfg *config.Config) (tracker.Client, error) {
	gl, err := tracker.NewGitLab(cfg.TrackerToken, cfg.TrackerBaseURL, cfg.TrackerProject)
	if err != nil {
		return nil, err
	}
	gov := tracker.NewGovernor(gl, tracker.DefaultGovernorConfig())
	return tracker.Govern(gl, gov), nil
}

func init() {
	rootCmd.AddCommand(issueCmd)
}
