package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklight/triage/internal/sanitize"
	"github.com/stacklight/triage/internal/taxonomy"
	"github.com/stacklight/triage/internal/types"
)

// Input caps applied before prompt assembly. Oversized issue bodies are a
// cost and injection-surface problem, not useful signal.
const (
	MaxTitleLength = 500
	MaxBodyLength  = 10000
)

// Classifier assigns taxonomy labels to issues via the model. A
// classification failure never becomes an error: the pipeline must keep
// running, so failures surface as degraded results.
type Classifier struct {
	invoker Invoker
	tax     *taxonomy.Taxonomy
}

// NewClassifier creates a classifier over the given invoker and taxonomy.
func NewClassifier(invoker Invoker, tax *taxonomy.Taxonomy) *Classifier {
	return &Classifier{invoker: invoker, tax: tax}
}

// Classify sanitizes the issue text, asks the model for labels, and filters
// the response against the taxonomy. The returned result always has non-nil
// collections; on any failure it is degraded with Error set.
func (c *Classifier) Classify(ctx context.Context, title, body string) types.ClassificationResult {
	start := time.Now()

	cleanTitle := sanitize.Sanitize(title, MaxTitleLength)
	cleanBody := sanitize.Sanitize(body, MaxBodyLength)

	taxonomyJSON, err := c.tax.ContextJSON()
	if err != nil {
		return types.DegradedClassification(fmt.Sprintf("encoding taxonomy: %v", err))
	}

	prompt := BuildClassificationPrompt(cleanTitle, cleanBody, taxonomyJSON)

	raw, err := c.invoker.Invoke(ctx, "classify", prompt, 0)
	if err != nil {
		return types.DegradedClassification(fmt.Sprintf("model call failed: %v", err))
	}

	// Label validation against the taxonomy happens downstream; the
	// classifier reports what the model recommended.
	result := ParseClassification(raw)
	if result.Degraded() {
		return result
	}

	fmt.Printf("Classified issue in %.1fs: %d label(s)\n",
		time.Since(start).Seconds(), len(result.RecommendedLabels))
	return result
}
