package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/spec-kit/ticket-triage/internal/llm"
)

// OpenAIClient adapts the Responses API to llm.Client.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a raw client.
func NewOpenAI(apiKey, model, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := req.Validate(); err != nil {
		return llm.Response{}, llm.NewError(llm.KindBadRequest, "openai", err)
	}

	// The Responses API takes a single input string here, so turns are flattened.
	var input strings.Builder
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&input, "System: %s\n\n", m.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&input, "Assistant: %s\n\n", m.Content)
		default:
			fmt.Fprintf(&input, "%s\n\n", m.Content)
		}
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
		Temperature:     openai.Float(float64(req.Temperature)),
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.Response{}, llm.Classify("openai", err)
	}
	if resp == nil {
		return llm.Response{}, llm.NewError(llm.KindEmptyResponse, "openai", errors.New("nil response"))
	}
	content := resp.OutputText()
	if strings.TrimSpace(content) == "" {
		return llm.Response{}, llm.NewError(llm.KindEmptyResponse, "openai", errors.New("empty output text"))
	}
	return llm.Response{Content: content, Model: c.model}, nil
}
