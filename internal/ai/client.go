// Package ai provides the model-inference client, prompt construction, and
// resilient parsing of model output for issue triage.
package ai

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/stacklight/triage/internal/retry"
)

const (
	// ModelSonnet is the default model for triage calls.
	ModelSonnet = "claude-sonnet-4-5-20250929"

	defaultMaxTokens = 2048
	temperature      = 0.3
	topP             = 0.9
)

// GetDefaultModel returns the model to use, checking TRIAGE_MODEL first.
func GetDefaultModel() string {
	if model := os.Getenv("TRIAGE_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// Invoker is the minimal model-inference capability: send one prompt, get
// the generated text back. The pipeline and detector depend on this
// interface so tests can substitute a fake without network access.
type Invoker interface {
	Invoke(ctx context.Context, operation, prompt string, maxTokens int) (string, error)
}

// Client wraps the Anthropic API with retry and an optional cap on
// concurrent calls.
type Client struct {
	client *anthropic.Client
	model  string
	policy retry.Policy
	sem    *semaphore.Weighted
}

// Compile-time check that Client implements Invoker.
var _ Invoker = (*Client)(nil)

// Config holds model client configuration.
type Config struct {
	APIKey             string       // If empty, read from ANTHROPIC_API_KEY
	Model              string       // Default: ModelSonnet (or TRIAGE_MODEL)
	Retry              retry.Policy // Zero value: retry.DefaultPolicy()
	MaxConcurrentCalls int          // 0 = unlimited
}

// NewClient creates a model client.
func NewClient(cfg *Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	policy := cfg.Retry
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = retry.DefaultPolicy()
	}

	var sem *semaphore.Weighted
	if cfg.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  model,
		policy: policy,
		sem:    sem,
	}, nil
}

// Invoke sends one prompt to the model and returns the concatenated text
// content of the response. The call is wrapped in retry with exponential
// backoff; retries repeat the identical request, which is safe because
// inference has no tracker-visible side effects.
func (c *Client) Invoke(ctx context.Context, operation, prompt string, maxTokens int) (string, error) {
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("acquiring model call slot for %s: %w", operation, err)
		}
		defer c.sem.Release(1)
	}

	startTime := time.Now()

	var response *anthropic.Message
	err := retry.Do(ctx, operation, c.policy, func(ctx context.Context) error {
		resp, apiErr := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(c.model),
			MaxTokens:   int64(maxTokens),
			Temperature: anthropic.Float(temperature),
			TopP:        anthropic.Float(topP),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("model %s call failed: %w", operation, err)
	}

	text := textContent(response)

	duration := time.Since(startTime)
	fmt.Printf("AI %s call: input=%d tokens, output=%d tokens, duration=%v\n",
		operation, response.Usage.InputTokens, response.Usage.OutputTokens, duration)

	return text, nil
}

// textContent concatenates the text-typed blocks of a response envelope.
// A response with no text blocks yields "".
func textContent(msg *anthropic.Message) string {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}
