package llm

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates token counts with the cl100k encoding. Provider
// tokenizers differ slightly; the estimate is what usage limits are enforced on.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter loads the GPT-4 codec.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the token count of text, falling back to four characters per token.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return approxTokens(text)
	}
	n, err := tc.codec.Count(text)
	if err != nil {
		return approxTokens(text)
	}
	return n
}

func approxTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}
