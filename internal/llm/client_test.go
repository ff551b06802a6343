package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	mu        sync.Mutex
	responses []Response
	errs      []error
	calls     int
}

func (s *scriptedClient) Model() string { return "scripted" }

func (s *scriptedClient) Complete(_ context.Context, _ Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Response{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return Response{Content: "ok"}, nil
}

type recordedCall struct {
	success bool
	prompt  int
	output  int
}

type fakeRecorder struct {
	calls []recordedCall
}

func (f *fakeRecorder) ObserveLLMRequest(_ string, success bool, prompt, output int, _ time.Duration) {
	f.calls = append(f.calls, recordedCall{success: success, prompt: prompt, output: output})
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, NewRequest("sys", "user").Validate())
	assert.Error(t, Request{MaxTokens: 1}.Validate())
	assert.Error(t, Request{Messages: []Message{{Role: RoleSystem, Content: "x"}}, MaxTokens: 1}.Validate())
	assert.Error(t, Request{Messages: []Message{{Role: "tool", Content: "x"}}, MaxTokens: 1}.Validate())
	assert.Error(t, Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}.Validate())
}

func TestRequestSplitSystem(t *testing.T) {
	req := Request{Messages: []Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleSystem, Content: "c"},
	}}
	system, turns := req.SplitSystem()
	assert.Equal(t, "a\n\nc", system)
	require.Len(t, turns, 1)
	assert.Equal(t, RoleUser, turns[0].Role)
}

func TestLimitedClientChargesUsage(t *testing.T) {
	inner := &scriptedClient{responses: []Response{{Content: "response text"}}}
	rec := &fakeRecorder{}
	client := NewLimitedClient(inner, nil, rec)

	usage := NewUsage(Limits{RequestLimit: 1})
	ctx := WithUsage(context.Background(), usage)

	resp, err := client.Complete(ctx, NewRequest("system prompt", "user prompt"))
	require.NoError(t, err)
	assert.Equal(t, "response text", resp.Content)

	snap := usage.Snapshot()
	assert.Equal(t, 1, snap.Requests)
	assert.Positive(t, snap.InputTokens)
	assert.Positive(t, snap.OutputTokens)
	require.Len(t, rec.calls, 1)
	assert.True(t, rec.calls[0].success)

	_, err = client.Complete(ctx, NewRequest("system prompt", "user prompt"))
	assert.ErrorIs(t, err, ErrUsageLimitExceeded)
	assert.Equal(t, 1, inner.calls)
}

func TestLimitedClientWithoutUsage(t *testing.T) {
	inner := &scriptedClient{errs: []error{errors.New("boom")}}
	rec := &fakeRecorder{}
	client := NewLimitedClient(inner, nil, rec)

	_, err := client.Complete(context.Background(), NewRequest("s", "u"))
	assert.EqualError(t, err, "boom")
	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].success)
}

func TestRetryingClientRetriesTransientErrors(t *testing.T) {
	inner := &scriptedClient{errs: []error{
		NewError(KindTransient, "test", errors.New("503")),
		NewError(KindRateLimit, "test", errors.New("429")),
	}}
	client := NewRetryingClient(inner, RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2})

	resp, err := client.Complete(context.Background(), NewRequest("s", "u"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingClientStopsOnPermanentErrors(t *testing.T) {
	inner := &scriptedClient{errs: []error{NewError(KindAuth, "test", errors.New("401"))}}
	client := NewRetryingClient(inner, RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})

	_, err := client.Complete(context.Background(), NewRequest("s", "u"))
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)

	inner = &scriptedClient{errs: []error{ErrUsageLimitExceeded}}
	client = NewRetryingClient(inner, RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})
	_, err = client.Complete(context.Background(), NewRequest("s", "u"))
	assert.ErrorIs(t, err, ErrUsageLimitExceeded)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingClientHonoursCancellation(t *testing.T) {
	inner := &scriptedClient{errs: []error{NewError(KindTransient, "test", errors.New("timeout"))}}
	client := NewRetryingClient(inner, RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, NewRequest("s", "u"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, inner.calls)
}

func TestClassify(t *testing.T) {
	cases := map[string]ErrorKind{
		"status 429 too many requests": KindRateLimit,
		"401 unauthorized":             KindAuth,
		"400 invalid request":          KindBadRequest,
		"503 service unavailable":      KindTransient,
		"connection reset by peer":     KindTransient,
		"something odd":                KindUnknown,
	}
	for msg, kind := range cases {
		err := Classify("p", errors.New(msg))
		var classified *Error
		require.ErrorAs(t, err, &classified, msg)
		assert.Equal(t, kind, classified.Kind, msg)
	}

	assert.ErrorIs(t, Classify("p", context.Canceled), context.Canceled)
	assert.False(t, IsRetryable(context.Canceled))
	assert.Nil(t, Classify("p", nil))
}
