package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// maxErrorMessage bounds the message column in the error table.
const maxErrorMessage = 100

// Summary aggregates the outcome of one triage run.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	Errors    []StageError
}

// NewSummary starts an empty run summary.
func NewSummary() *Summary {
	return &Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// RecordResult tallies one processed issue and its stage errors.
func (s *Summary) RecordResult(errs []StageError) {
	s.Processed++
	if len(errs) == 0 {
		s.Succeeded++
	} else {
		s.Failed++
		s.Errors = append(s.Errors, errs...)
	}
}

// RecordSkipped tallies an issue that was not processed.
func (s *Summary) RecordSkipped() {
	s.Processed++
	s.Skipped++
}

// Success reports whether the run recorded no stage errors.
func (s *Summary) Success() bool {
	return len(s.Errors) == 0
}

// Render writes the human-readable summary.
func (s *Summary) Render(w io.Writer) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w)
	bold.Fprintln(w, "=== Triage Run Summary ===")
	fmt.Fprintf(w, "Run ID:    %s\n", s.RunID)
	fmt.Fprintf(w, "Duration:  %v\n", time.Since(s.StartedAt).Round(time.Millisecond))

	if s.Success() {
		green.Fprintln(w, "Status:    success")
	} else {
		red.Fprintln(w, "Status:    failed")
	}

	fmt.Fprintf(w, "Processed: %d  Succeeded: %d  Failed: %d  Skipped: %d\n",
		s.Processed, s.Succeeded, s.Failed, s.Skipped)

	if len(s.Errors) > 0 {
		fmt.Fprintln(w)
		yellow.Fprintln(w, "Stage errors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  issue #%d  %-20s %s\n", e.IssueNumber, e.Stage, clip(e.Message))
		}
	}
	fmt.Fprintln(w)
}

// Markdown renders the summary for a workflow step report.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("## Triage Run Summary\n\n")

	status := "✅ Success"
	if !s.Success() {
		status = "❌ Failed"
	}
	fmt.Fprintf(&b, "**Status:** %s\n\n", status)
	fmt.Fprintf(&b, "**Run ID:** `%s`\n\n", s.RunID)
	fmt.Fprintf(&b, "| Processed | Succeeded | Failed | Skipped |\n|---|---|---|---|\n| %d | %d | %d | %d |\n",
		s.Processed, s.Succeeded, s.Failed, s.Skipped)

	if len(s.Errors) > 0 {
		b.WriteString("\n### Stage Errors\n\n| Issue | Stage | Message |\n|---|---|---|\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "| #%d | %s | %s |\n", e.IssueNumber, e.Stage,
				strings.ReplaceAll(clip(e.Message), "|", "\\|"))
		}
	}
	return b.String()
}

// AppendToStepSummary appends the markdown summary to the file named by
// STEP_SUMMARY_FILE. A no-op when the variable is unset.
func (s *Summary) AppendToStepSummary() error {
	path := os.Getenv("STEP_SUMMARY_FILE")
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening step summary file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(s.Markdown() + "\n"); err != nil {
		return fmt.Errorf("writing step summary: %w", err)
	}
	return nil
}

func clip(msg string) string {
	if len(msg) <= maxErrorMessage {
		return msg
	}
	return msg[:maxErrorMessage-3] + "..."
}
