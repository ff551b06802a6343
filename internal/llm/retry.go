package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff between attempts.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfig is used when no overrides are configured.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryingClient re-attempts retryable failures until attempts or ctx run out.
type RetryingClient struct {
	inner Client
	cfg   RetryConfig
}

// NewRetryingClient wraps inner with cfg.
func NewRetryingClient(inner Client, cfg RetryConfig) *RetryingClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	return &RetryingClient{inner: inner, cfg: cfg}
}

func (c *RetryingClient) Model() string {
	return c.inner.Model()
}

func (c *RetryingClient) Complete(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return Response{}, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := c.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

func (c *RetryingClient) delay(attempt int) time.Duration {
	d := float64(c.cfg.InitialDelay) * math.Pow(c.cfg.BackoffFactor, float64(attempt-1))
	if c.cfg.MaxDelay > 0 && d > float64(c.cfg.MaxDelay) {
		d = float64(c.cfg.MaxDelay)
	}
	if c.cfg.Jitter && d > 0 {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}
