package classifier

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

//go:embed rules.yaml
var defaultRules []byte

// RuleFile is the on-disk shape of a keyword rule set.
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Rule scores one category.
type Rule struct {
	Category string      `yaml:"category"`
	Groups   []TermGroup `yaml:"groups"`
}

// TermGroup shares a weight across several terms.
type TermGroup struct {
	Weight int      `yaml:"weight"`
	Terms  []string `yaml:"terms"`
}

type compiledTerm struct {
	pattern *regexp.Regexp
	weight  int
}

type compiledRule struct {
	category domain.Category
	terms    []compiledTerm
}

// RuleClassifier scores weighted keywords. It never calls out and never fails
// on well-formed input, which makes it the fallback of last resort.
type RuleClassifier struct {
	rules []compiledRule
}

// NewRuleClassifier compiles the embedded default rules.
func NewRuleClassifier() (*RuleClassifier, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads a rule file from disk.
func LoadRules(path string) (*RuleClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules compiles a YAML rule set.
func ParseRules(data []byte) (*RuleClassifier, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rule set is empty")
	}

	rc := &RuleClassifier{rules: make([]compiledRule, 0, len(file.Rules))}
	for i, r := range file.Rules {
		category, ok := domain.ParseCategory(r.Category)
		if !ok {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
		compiled := compiledRule{category: category}
		for _, g := range r.Groups {
			if g.Weight <= 0 {
				return nil, fmt.Errorf("rule %d (%s): weight must be positive", i, category)
			}
			for _, term := range g.Terms {
				pattern, err := termPattern(term)
				if err != nil {
					return nil, fmt.Errorf("rule %d (%s): term %q: %w", i, category, term, err)
				}
				compiled.terms = append(compiled.terms, compiledTerm{pattern: pattern, weight: g.Weight})
			}
		}
		rc.rules = append(rc.rules, compiled)
	}
	return rc, nil
}

// termPattern matches a term on word boundaries, case-insensitively, with
// flexible inner whitespace and an optional plural "s".
func termPattern(term string) (*regexp.Regexp, error) {
	words := strings.Fields(term)
	if len(words) == 0 {
		return nil, fmt.Errorf("empty term")
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.Compile(`(?i)\b` + strings.Join(words, `\s+`) + `s?\b`)
}

func (rc *RuleClassifier) Classify(ctx context.Context, subject, message string) (domain.Category, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	best, bestScore := domain.CategoryOther, 0
	for _, r := range rc.rules {
		score := r.score(subject, message)
		if score > bestScore {
			best, bestScore = r.category, score
		}
	}
	return best, nil
}

// Scores reports the per-category totals.
func (rc *RuleClassifier) Scores(subject, message string) map[domain.Category]int {
	out := make(map[domain.Category]int, len(rc.rules))
	for _, r := range rc.rules {
		out[r.category] += r.score(subject, message)
	}
	return out
}

func (r compiledRule) score(subject, message string) int {
	total := 0
	for _, t := range r.terms {
		if t.pattern.MatchString(subject) {
			total += 2 * t.weight
		}
		if t.pattern.MatchString(message) {
			total += t.weight
		}
	}
	return total
}
