package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	KindRateLimit     ErrorKind = "rate_limit"
	KindTransient     ErrorKind = "transient"
	KindEmptyResponse ErrorKind = "empty_response"
	KindAuth          ErrorKind = "auth"
	KindBadRequest    ErrorKind = "bad_request"
	KindUnknown       ErrorKind = "unknown"
)

// Error is a classified provider error.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTransient, KindEmptyResponse:
		return true
	default:
		return false
	}
}

// NewError wraps err with a kind and provider name.
func NewError(kind ErrorKind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// Classify maps a raw SDK error onto an ErrorKind by inspecting its text.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return NewError(KindRateLimit, provider, err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized"):
		return NewError(KindAuth, provider, err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "404") || strings.Contains(msg, "invalid"):
		return NewError(KindBadRequest, provider, err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "504") || strings.Contains(msg, "529") || strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "eof"):
		return NewError(KindTransient, provider, err)
	default:
		return NewError(KindUnknown, provider, err)
	}
}

// IsRetryable reports whether err is a classified, retryable provider error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrUsageLimitExceeded) {
		return false
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Retryable()
	}
	return false
}
