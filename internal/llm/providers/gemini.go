package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/spec-kit/ticket-triage/internal/llm"
)

// GeminiClient adapts the Gemini API to llm.Client. The SDK client needs a
// context to build, so it is created on first use.
type GeminiClient struct {
	mu     sync.Mutex
	client *genai.Client
	apiKey string
	model  string
}

// NewGemini creates a lazily-initialised client.
func NewGemini(apiKey, model string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

func (c *GeminiClient) Model() string {
	return c.model
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llm.NewError(llm.KindAuth, "gemini", fmt.Errorf("create client: %w", err))
	}
	c.client = client
	return client, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := req.Validate(); err != nil {
		return llm.Response{}, llm.NewError(llm.KindBadRequest, "gemini", err)
	}
	client, err := c.sdk(ctx)
	if err != nil {
		return llm.Response{}, err
	}

	system, turns := req.SplitSystem()
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return llm.Response{}, llm.Classify("gemini", err)
	}
	if result == nil {
		return llm.Response{}, llm.NewError(llm.KindEmptyResponse, "gemini", errors.New("nil response"))
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return llm.Response{}, llm.NewError(llm.KindEmptyResponse, "gemini", errors.New("empty response text"))
	}
	return llm.Response{Content: text, Model: c.model}, nil
}
