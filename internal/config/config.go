// Package config loads triage configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries everything the commands need from the environment.
type Config struct {
	TrackerToken   string // TRACKER_TOKEN
	TrackerProject string // TRACKER_PROJECT ("group/repo" or numeric ID)
	TrackerBaseURL string // TRACKER_BASE_URL, empty for gitlab.com

	IssueNumber int    // ISSUE_NUMBER, triage issue target
	IssueTitle  string // ISSUE_TITLE, optional override of the fetched title
	IssueBody   string // ISSUE_BODY, optional override of the fetched body

	AnthropicAPIKey string // ANTHROPIC_API_KEY
	Model           string // TRIAGE_MODEL, optional override
	TaxonomyFile    string // TRIAGE_TAXONOMY, optional YAML override
}

// Load reads configuration from the process environment, after loading a
// .env file when one exists. Values are not validated here; each command
// validates the subset it needs.
func Load() (*Config, error) {
	// .env is a local-development convenience; absence is normal in CI.
	_ = godotenv.Load()

	cfg := &Config{
		TrackerToken:    os.Getenv("TRACKER_TOKEN"),
		TrackerProject:  os.Getenv("TRACKER_PROJECT"),
		TrackerBaseURL:  os.Getenv("TRACKER_BASE_URL"),
		IssueTitle:      os.Getenv("ISSUE_TITLE"),
		IssueBody:       os.Getenv("ISSUE_BODY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		Model:           os.Getenv("TRIAGE_MODEL"),
		TaxonomyFile:    os.Getenv("TRIAGE_TAXONOMY"),
	}

	if raw := os.Getenv("ISSUE_NUMBER"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing ISSUE_NUMBER %q: %w", raw, err)
		}
		cfg.IssueNumber = n
	}
	return cfg, nil
}

// ValidateForTriage checks the variables the issue-triage command needs.
func (c *Config) ValidateForTriage() error {
	if err := c.ValidateForMaintenance(); err != nil {
		return err
	}
	if c.IssueNumber <= 0 {
		return fmt.Errorf("ISSUE_NUMBER must be a positive issue number")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return nil
}

// ValidateForMaintenance checks the variables the closer commands need.
func (c *Config) ValidateForMaintenance() error {
	if c.TrackerToken == "" {
		return fmt.Errorf("TRACKER_TOKEN is required")
	}
	if c.TrackerProject == "" {
		return fmt.Errorf("TRACKER_PROJECT is required")
	}
	return nil
}
