package classifier

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/llm"
)

// Classifier modes accepted by Build.
const (
	ModeRules       = "rules"
	ModeLLM         = "llm"
	ModeLLMAndRules = "llm+rules"
)

// Build assembles the classifier for mode. client may be nil only in rules
// mode. An empty rulesFile selects the embedded rule set.
func Build(mode, rulesFile string, client llm.Client, maxTokens int, temperature float32, logger *zap.Logger) (Classifier, error) {
	var rules *RuleClassifier
	var err error
	if rulesFile != "" {
		rules, err = LoadRules(rulesFile)
	} else {
		rules, err = NewRuleClassifier()
	}
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeRules:
		return rules, nil
	case ModeLLM, ModeLLMAndRules:
		if client == nil {
			return nil, fmt.Errorf("classifier mode %q needs a model client", mode)
		}
		model := NewLLMClassifier(client, maxTokens, temperature)
		if mode == ModeLLM {
			return model, nil
		}
		return NewFallback(logger, model, rules), nil
	default:
		return nil, fmt.Errorf("unknown classifier mode %q", mode)
	}
}
