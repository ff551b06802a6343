package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-triage/internal/llm"
)

type nopClient struct{}

func (nopClient) Model() string { return "nop" }

func (nopClient) Complete(ctx context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{}, ctx.Err()
}

func TestBuildModes(t *testing.T) {
	c, err := Build(ModeRules, "", nil, 64, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &RuleClassifier{}, c)

	c, err = Build(ModeLLM, "", nopClient{}, 64, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &LLMClassifier{}, c)

	c, err = Build(ModeLLMAndRules, "", nopClient{}, 64, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &Fallback{}, c)

	_, err = Build(ModeLLM, "", nil, 64, 0, nil)
	assert.Error(t, err)

	_, err = Build("magic", "", nil, 64, 0, nil)
	assert.Error(t, err)

	_, err = Build(ModeRules, "/does/not/exist.yaml", nil, 64, 0, nil)
	assert.Error(t, err)
}
