// Package llm defines the hosted language model contract used by the classifier
// and the per-run usage accounting that bounds every call.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	// DefaultMaxTokens bounds a single completion.
	DefaultMaxTokens = 512
	// DefaultTemperature keeps classification output stable.
	DefaultTemperature = 0.1
)

// Message is a single prompt turn.
type Message struct {
	Role    Role
	Content string
}

// Request is a completion request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Response is a completion response.
type Response struct {
	Content string
	Model   string
}

// Client is implemented by every provider adapter and decorator.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Model() string
}

// NewRequest builds a request with a system prompt and a user turn.
func NewRequest(system, user string) Request {
	return Request{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// Validate checks the request shape shared by all providers.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("message list cannot be empty")
	}
	hasUser := false
	for i := range r.Messages {
		switch r.Messages[i].Role {
		case RoleSystem, RoleAssistant:
		case RoleUser:
			hasUser = true
		default:
			return fmt.Errorf("unsupported message role %q at index %d", r.Messages[i].Role, i)
		}
	}
	if !hasUser {
		return fmt.Errorf("request needs at least one user message")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	return nil
}

// SplitSystem separates system instructions from the conversation turns.
func (r Request) SplitSystem() (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// PromptText flattens a request into the text counted against token limits.
func (r Request) PromptText() string {
	var b strings.Builder
	for i, m := range r.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
