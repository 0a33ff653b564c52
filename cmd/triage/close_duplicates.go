package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklight/triage/internal/config"
	"github.com/stacklight/triage/internal/dedup"
)

var closeDuplicatesCmd = &cobra.Command{
	Use:   "close-duplicates",
	Short: "Close issues that have carried the duplicate label for 3+ days",
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
		fmt.Printf("\n%s\n\n", cyan("=== Closing Duplicate Issues ==="))

		tc, err := newTracker(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		stats, err := dedup.NewCloser(tc, 0).Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printCloseSummary(stats.Closed, stats.Skipped, stats.Processed)
	},
}

func printCloseSummary(closed, skipped, total int) {
	bold := color.New(color.Bold)
	fmt.Println()
	bold.Println("=== Summary ===")
	fmt.Printf("Closed:  %d\n", closed)
	fmt.Printf("Skipped: %d\n", skipped)
	fmt.Printf("Total:   %d\n", total)
}

func init() {
	rootCmd.AddCommand(closeDuplicatesCmd)
}
