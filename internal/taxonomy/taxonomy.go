// Package taxonomy holds the fixed catalog of valid issue labels, grouped
// by category. A taxonomy is loaded once per process and treated as
// read-only configuration.
package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Workflow labels the pipeline applies regardless of model output.
const (
	// LabelPendingTriage marks every processed issue so that nothing leaves
	// the pipeline without a triage state, even when classification failed.
	LabelPendingTriage = "pending-triage"
	// LabelPendingResponse marks issues waiting on reporter input; the stale
	// closer acts on it.
	LabelPendingResponse = "pending-response"
	// LabelDuplicate marks confirmed near-duplicates; the duplicate closer
	// acts on it.
	LabelDuplicate = "duplicate"
)

// Category is an ordered set of labels under one name.
type Category struct {
	Name   string   `yaml:"name"`
	Labels []string `yaml:"labels"`
}

// Taxonomy is a versioned mapping from category name to its valid labels.
// Immutable after construction. Label strings are globally unique across
// categories, and the union of all categories is the valid label universe.
type Taxonomy struct {
	version    string
	categories []Category
	universe   map[string]struct{}
}

// taxonomyFile is the YAML override format.
type taxonomyFile struct {
	Version    string     `yaml:"version"`
	Categories []Category `yaml:"categories"`
}

// New builds a taxonomy from categories, rejecting any label attached to
// two categories.
func New(version string, categories []Category) (*Taxonomy, error) {
	universe := make(map[string]struct{})
	owner := make(map[string]string)
	for _, cat := range categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		if len(cat.Labels) == 0 {
			return nil, fmt.Errorf("category %q has no labels", cat.Name)
		}
		for _, label := range cat.Labels {
			if label == "" {
				return nil, fmt.Errorf("category %q contains an empty label", cat.Name)
			}
			if prev, dup := owner[label]; dup {
				return nil, fmt.Errorf("label %q appears in both %q and %q", label, prev, cat.Name)
			}
			owner[label] = cat.Name
			universe[label] = struct{}{}
		}
	}

	copied := make([]Category, len(categories))
	for i, cat := range categories {
		labels := make([]string, len(cat.Labels))
		copy(labels, cat.Labels)
		copied[i] = Category{Name: cat.Name, Labels: labels}
	}

	return &Taxonomy{version: version, categories: copied, universe: universe}, nil
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := New("1", []Category{
		{Name: "feature_component", Labels: []string{
			"auth", "autocomplete", "chat", "cli", "extensions", "hooks",
			"ide", "mcp", "models", "specs", "ssh", "steering", "sub-agents",
			"terminal", "ui", "usability", "pricing", "documentation",
			"dependencies", "compaction",
		}},
		{Name: "os_specific", Labels: []string{
			"os: linux", "os: mac", "os: windows",
		}},
		{Name: "theme", Labels: []string{
			"theme:account", "theme:agent-latency", "theme:agent-quality",
			"theme:context-limit-issue", "theme:ide-performance",
			"theme:slow-unresponsive", "theme:ssh-wsl", "theme:unexpected-error",
		}},
		{Name: "workflow", Labels: []string{
			LabelPendingTriage, LabelPendingResponse, LabelDuplicate,
			"pending-maintainer-response", "question",
		}},
	})
	if err != nil {
		// The built-in data is validated by tests; reaching here is a bug.
		panic(fmt.Sprintf("built-in taxonomy invalid: %v", err))
	}
	return t
}

// LoadFile reads a YAML taxonomy override.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file: %w", err)
	}
	var f taxonomyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing taxonomy file %s: %w", path, err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("taxonomy file %s: version is required", path)
	}
	t, err := New(f.Version, f.Categories)
	if err != nil {
		return nil, fmt.Errorf("taxonomy file %s: %w", path, err)
	}
	return t, nil
}

// Version returns the taxonomy version string.
func (t *Taxonomy) Version() string {
	return t.version
}

// Categories returns a copy of the category list in declaration order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, cat := range t.categories {
		labels := make([]string, len(cat.Labels))
		copy(labels, cat.Labels)
		out[i] = Category{Name: cat.Name, Labels: labels}
	}
	return out
}

// AllLabels returns the label universe: every category's labels, in
// category then declaration order.
func (t *Taxonomy) AllLabels() []string {
	var all []string
	for _, cat := range t.categories {
		all = append(all, cat.Labels...)
	}
	return all
}

// Contains reports whether label belongs to the universe.
func (t *Taxonomy) Contains(label string) bool {
	_, ok := t.universe[label]
	return ok
}

// Filter splits labels into the subset that belongs to the universe and the
// rejected remainder, both preserving input order. The invalid subset is for
// logging only; it is never an error.
func (t *Taxonomy) Filter(labels []string) (valid, invalid []string) {
	for _, label := range labels {
		if t.Contains(label) {
			valid = append(valid, label)
		} else {
			invalid = append(invalid, label)
		}
	}
	return valid, invalid
}

// ContextJSON renders the category → labels mapping as indented JSON for
// embedding in a classification prompt. Keys are emitted sorted, so output
// is deterministic.
func (t *Taxonomy) ContextJSON() (string, error) {
	m := make(map[string][]string, len(t.categories))
	for _, cat := range t.categories {
		m[cat.Name] = cat.Labels
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling taxonomy: %w", err)
	}
	return string(data), nil
}
