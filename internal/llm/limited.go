package llm

import (
	"context"
	"time"
)

// Recorder receives per-call model metrics.
type Recorder interface {
	ObserveLLMRequest(model string, success bool, promptTokens, completionTokens int, duration time.Duration)
}

// LimitedClient charges every call against the Usage attached to the context.
type LimitedClient struct {
	inner    Client
	counter  *TokenCounter
	recorder Recorder
}

// NewLimitedClient wraps inner. recorder may be nil.
func NewLimitedClient(inner Client, counter *TokenCounter, recorder Recorder) *LimitedClient {
	return &LimitedClient{inner: inner, counter: counter, recorder: recorder}
}

func (c *LimitedClient) Model() string {
	return c.inner.Model()
}

func (c *LimitedClient) Complete(ctx context.Context, req Request) (Response, error) {
	promptTokens := c.counter.Count(req.PromptText())
	usage := UsageFromContext(ctx)
	if usage != nil {
		if err := usage.BeginRequest(promptTokens); err != nil {
			return Response{}, err
		}
	}

	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	completionTokens := 0
	if err == nil {
		completionTokens = c.counter.Count(resp.Content)
	}
	if c.recorder != nil {
		c.recorder.ObserveLLMRequest(c.inner.Model(), err == nil, promptTokens, completionTokens, time.Since(start))
	}
	if err != nil {
		return Response{}, err
	}

	if usage != nil {
		if err := usage.EndRequest(completionTokens); err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}
