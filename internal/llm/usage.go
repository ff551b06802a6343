package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUsageLimitExceeded is returned when a run exhausts its request or token budget.
var ErrUsageLimitExceeded = errors.New("usage limit exceeded")

// Limits bounds the model usage of one triage run. Zero means unlimited.
type Limits struct {
	RequestLimit     int
	TotalTokensLimit int
}

// UsageSnapshot is a point-in-time copy of a run's counters.
type UsageSnapshot struct {
	Requests     int `json:"requests"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens sums input and output tokens.
func (s UsageSnapshot) TotalTokens() int {
	return s.InputTokens + s.OutputTokens
}

// Usage accumulates requests and tokens across every model call of one run.
type Usage struct {
	mu     sync.Mutex
	limits Limits
	snap   UsageSnapshot
}

// NewUsage creates a tracker with the given limits.
func NewUsage(limits Limits) *Usage {
	return &Usage{limits: limits}
}

// BeginRequest reserves a request slot and charges the prompt tokens.
func (u *Usage) BeginRequest(promptTokens int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.limits.RequestLimit > 0 && u.snap.Requests+1 > u.limits.RequestLimit {
		return fmt.Errorf("%w: request limit of %d reached", ErrUsageLimitExceeded, u.limits.RequestLimit)
	}
	if u.limits.TotalTokensLimit > 0 && u.snap.TotalTokens()+promptTokens > u.limits.TotalTokensLimit {
		return fmt.Errorf("%w: prompt of %d tokens exceeds remaining budget of %d",
			ErrUsageLimitExceeded, promptTokens, u.limits.TotalTokensLimit-u.snap.TotalTokens())
	}
	u.snap.Requests++
	u.snap.InputTokens += promptTokens
	return nil
}

// EndRequest charges completion tokens and reports whether the ceiling was crossed.
func (u *Usage) EndRequest(completionTokens int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.snap.OutputTokens += completionTokens
	if u.limits.TotalTokensLimit > 0 && u.snap.TotalTokens() > u.limits.TotalTokensLimit {
		return fmt.Errorf("%w: %d total tokens exceeds limit of %d",
			ErrUsageLimitExceeded, u.snap.TotalTokens(), u.limits.TotalTokensLimit)
	}
	return nil
}

// Snapshot returns the current counters.
func (u *Usage) Snapshot() UsageSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.snap
}

type usageKey struct{}

// WithUsage attaches a run's tracker to ctx.
func WithUsage(ctx context.Context, u *Usage) context.Context {
	return context.WithValue(ctx, usageKey{}, u)
}

// UsageFromContext returns the run's tracker, or nil when none is attached.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}
