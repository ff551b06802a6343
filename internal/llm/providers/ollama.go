package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/spec-kit/ticket-triage/internal/llm"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient adapts a local Ollama server to llm.Client.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllama creates a client for hostURL.
func NewOllama(hostURL, model string) (*OllamaClient, error) {
	if hostURL == "" {
		hostURL = DefaultOllamaURL
	}
	parsed, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	return &OllamaClient{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}, nil
}

func (c *OllamaClient) Model() string {
	return c.model
}

func (c *OllamaClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := req.Validate(); err != nil {
		return llm.Response{}, llm.NewError(llm.KindBadRequest, "ollama", err)
	}

	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	chat := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.Response{}, classifyOllama(err)
	}
	if strings.TrimSpace(response.Message.Content) == "" {
		return llm.Response{}, llm.NewError(llm.KindEmptyResponse, "ollama", errors.New("empty message"))
	}
	return llm.Response{Content: response.Message.Content, Model: c.model}, nil
}

func classifyOllama(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return llm.NewError(llm.KindTransient, "ollama", fmt.Errorf("server not reachable: %w", err))
	case strings.Contains(msg, "model") && strings.Contains(msg, "not found"):
		return llm.NewError(llm.KindBadRequest, "ollama", err)
	default:
		return llm.Classify("ollama", err)
	}
}
