package tracker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stacklight/triage/internal/types"
)

// Governor defaults. The quota probe is itself an API call, so probing on
// every request would burn the budget it protects; every tenth call keeps
// the overhead proportional.
const (
	defaultCheckEvery   = 10
	defaultThreshold    = 100
	defaultResetBuffer  = 1 * time.Second
	defaultCallsPerSec  = 5
	defaultMaxResetWait = 5 * time.Minute
)

// GovernorConfig tunes quota governance.
type GovernorConfig struct {
	CheckEvery   int           // Probe quota every Nth call
	Threshold    int           // Pause when remaining quota drops below this
	ResetBuffer  time.Duration // Extra wait past the reported reset instant
	CallsPerSec  float64       // Steady-state pacing between calls
	MaxResetWait time.Duration // Cap on a single quota pause
}

// DefaultGovernorConfig returns the standard governance settings.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		CheckEvery:   defaultCheckEvery,
		Threshold:    defaultThreshold,
		ResetBuffer:  defaultResetBuffer,
		CallsPerSec:  defaultCallsPerSec,
		MaxResetWait: defaultMaxResetWait,
	}
}

// Governor paces tracker calls and pauses when the remaining API quota
// runs low. Probe failures are tolerated: governance degrades to pacing
// only, it never blocks the work it exists to protect.
type Governor struct {
	client  Client
	cfg     GovernorConfig
	limiter *rate.Limiter

	mu    sync.Mutex
	calls int

	// Test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGovernor creates a governor probing quota through client.
func NewGovernor(client Client, cfg GovernorConfig) *Governor {
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCheckEvery
	}
	if cfg.CallsPerSec <= 0 {
		cfg.CallsPerSec = defaultCallsPerSec
	}
	if cfg.MaxResetWait <= 0 {
		cfg.MaxResetWait = defaultMaxResetWait
	}
	return &Governor{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.CallsPerSec), 1),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire blocks until the next tracker call may proceed. It paces via the
// limiter on every call and probes the quota on every Nth; a low quota
// pauses until just past the reported reset.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	g.calls++
	probe := g.calls%g.cfg.CheckEvery == 0
	g.mu.Unlock()
	if !probe {
		return nil
	}

	status, err := g.client.RateStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: rate status probe failed: %v\n", err)
		return nil
	}
	if !status.Known || status.Remaining >= g.cfg.Threshold {
		return nil
	}

	wait := status.ResetAt.Sub(g.now()) + g.cfg.ResetBuffer
	if wait <= 0 {
		return nil
	}
	if wait > g.cfg.MaxResetWait {
		wait = g.cfg.MaxResetWait
	}
	fmt.Printf("API quota low (%d remaining), pausing %v until reset\n", status.Remaining, wait.Round(time.Second))
	return g.sleep(ctx, wait)
}

// governed decorates a Client so every call passes through the governor.
// RateStatus is exempt: the governor's own probes must not recurse.
type governed struct {
	inner Client
	gov   *Governor
}

// Govern wraps client so all calls are paced and quota-checked.
func Govern(client Client, gov *Governor) Client {
	return &governed{inner: client, gov: gov}
}

func (g *governed) GetIssue(ctx context.Context, number int) (*types.IssueSnapshot, error) {
	if err := g.gov.Acquire(ctx); err != nil {
		return nil, err
	}
	return g.inner.GetIssue(ctx, number)
}

func (g *governed) ListIssues(ctx context.Context, filter ListFilter) ([]types.IssueSnapshot, error) {
	if err := g.gov.Acquire(ctx); err != nil {
		return nil, err
	}
	return g.inner.ListIssues(ctx, filter)
}

func (g *governed) AddLabels(ctx context.Context, number int, labels []string) error {
	if err := g.gov.Acquire(ctx); err != nil {
		return err
	}
	return g.inner.AddLabels(ctx, number, labels)
}

func (g *governed) CreateComment(ctx context.Context, number int, body string) error {
	if err := g.gov.Acquire(ctx); err != nil {
		return err
	}
	return g.inner.CreateComment(ctx, number, body)
}

func (g *governed) ListComments(ctx context.Context, number int) ([]Comment, error) {
	if err := g.gov.Acquire(ctx); err != nil {
		return nil, err
	}
	return g.inner.ListComments(ctx, number)
}

func (g *governed) ListLabelEvents(ctx context.Context, number int) ([]LabelEvent, error) {
	if err := g.gov.Acquire(ctx); err != nil {
		return nil, err
	}
	return g.inner.ListLabelEvents(ctx, number)
}

func (g *governed) CloseIssue(ctx context.Context, number int) error {
	if err := g.gov.Acquire(ctx); err != nil {
		return err
	}
	return g.inner.CloseIssue(ctx, number)
}

func (g *governed) RateStatus(ctx context.Context) (RateStatus, error) {
	return g.inner.RateStatus(ctx)
}
