package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklight/triage/internal/config"
	"github.com/stacklight/triage/internal/stale"
)

var closeStaleCmd = &cobra.Command{
	Use:   "close-stale",
	Short: "Close pending-response issues inactive for 7+ days",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := config.Load()
		if err == nil {
			err = cfg.ValidateForMaintenance()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Closing Stale Issues ==="))

		tc, err := newTracker(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		stats, err := stale.NewCloser(tc, 0).Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printCloseSummary(stats.Closed, stats.Skipped, stats.Processed)
	},
}

func init() {
	rootCmd.AddCommand(closeStaleCmd)
}
