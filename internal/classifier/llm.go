package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/llm"
)

// ErrUnknownCategory is returned when the model answers outside the closed set.
var ErrUnknownCategory = errors.New("model returned a category outside the closed set")

// LLMClassifier asks a hosted model for the category.
type LLMClassifier struct {
	client      llm.Client
	maxTokens   int
	temperature float32
}

// NewLLMClassifier wraps client. Zero maxTokens uses llm.DefaultMaxTokens.
func NewLLMClassifier(client llm.Client, maxTokens int, temperature float32) *LLMClassifier {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	return &LLMClassifier{client: client, maxTokens: maxTokens, temperature: temperature}
}

func systemPrompt() string {
	labels := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		labels[i] = fmt.Sprintf("%q", string(c))
	}
	return "You categorize customer support tickets. Base the decision on the subject first " +
		"and the message second. Use only information present in the ticket.\n" +
		"Allowed categories: " + strings.Join(labels, ", ") + ".\n" +
		"Login, password and access problems are \"Account Management\". Defects in existing " +
		"behaviour are \"Bug Report\"; integration, API and infrastructure problems are \"Technical\".\n" +
		`Answer with JSON only, exactly {"category": "<one allowed category>"}.`
}

func userPrompt(subject, message string) string {
	return fmt.Sprintf("Subject: %s\nMessage: %s", subject, message)
}

func (c *LLMClassifier) Classify(ctx context.Context, subject, message string) (domain.Category, error) {
	req := llm.NewRequest(systemPrompt(), userPrompt(subject, message))
	req.MaxTokens = c.maxTokens
	req.Temperature = c.temperature

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("classify with %s: %w", c.client.Model(), err)
	}
	return ParseAnswer(resp.Content)
}

// ParseAnswer extracts a category from a model reply. It accepts the requested
// JSON object, the same wrapped in a markdown fence, or a bare label.
func ParseAnswer(content string) (domain.Category, error) {
	text := stripFence(strings.TrimSpace(content))

	var answer struct {
		Category string `json:"category"`
	}
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &answer); err != nil {
			return "", fmt.Errorf("decode model answer: %w", err)
		}
		text = answer.Category
	}
	text = strings.Trim(strings.TrimSpace(text), `"'.`)

	category, ok := domain.ParseCategory(text)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, text)
	}
	return category, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
