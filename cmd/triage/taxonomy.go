package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklight/triage/internal/config"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Print the active label taxonomy",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		tax, err := loadTaxonomy(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s (version %s)\n\n", cyan("=== Label Taxonomy ==="), tax.Version())

		for _, category := range tax.Categories() {
			fmt.Printf("%s\n", yellow(category.Name))
			for _, label := range category.Labels {
				fmt.Printf("  %s\n", label)
			}
			fmt.Println()
		}
		fmt.Printf("%d label(s) total\n", len(tax.AllLabels()))
	},
}

func init() {
	rootCmd.AddCommand(taxonomyCmd)
}
