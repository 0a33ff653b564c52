// triage classifies new issues, flags duplicates, and runs the workflow
// maintenance jobs for an issue tracker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "AI-assisted issue triage",
	Long: `Classifies tracker issues against a label taxonomy, detects likely
duplicates among recent issues, and closes issues that sat too long as
duplicates or without a reporter response.

Configuration comes from the environment (optionally via .env):
TRACKER_TOKEN, TRACKER_PROJECT, ANTHROPIC_API_KEY and, for "triage issue",
ISSUE_NUMBER.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
