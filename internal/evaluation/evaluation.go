// Package evaluation scores the triage pipeline against labelled tickets.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// Field names used in mismatches and scores.
const (
	FieldCategory   = "category"
	FieldPriority   = "priority"
	FieldRoutedTeam = "routed_team"
)

// Expected holds the labels for one case. Empty labels are not scored.
type Expected struct {
	Category   string `json:"category"`
	Priority   string `json:"priority"`
	RoutedTeam string `json:"routed_team"`
}

// Case is one labelled ticket.
type Case struct {
	Input    json.RawMessage `json:"input"`
	Expected Expected        `json:"expected"`
}

// Runner triages a raw ticket payload. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Process(ctx context.Context, payload []byte) (*domain.TriageResult, error)
}

// Score counts correct answers for one field.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Accuracy returns Correct/Total, or 0 when nothing was scored.
func (s Score) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// MarshalJSON adds the accuracy to the counts.
func (s Score) MarshalJSON() ([]byte, error) {
	type plain Score
	return json.Marshal(struct {
		plain
		Accuracy float64 `json:"accuracy"`
	}{plain(s), s.Accuracy()})
}

// Mismatch is one wrong field of one case.
type Mismatch struct {
	Index    int    `json:"index"`
	TicketID string `json:"ticket_id,omitempty"`
	Field    string `json:"field"`
	Want     string `json:"want"`
	Got      string `json:"got"`
}

// CaseError records a case the pipeline returned an error for.
type CaseError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Report aggregates an evaluation run.
type Report struct {
	Cases      int              `json:"cases"`
	Scores     map[string]Score `json:"scores"`
	Mismatches []Mismatch       `json:"mismatches"`
	Errors     []CaseError      `json:"errors"`
}

// Passed reports whether every scored field matched.
func (r Report) Passed() bool {
	return len(r.Mismatches) == 0
}

// LoadCases reads a JSON array of cases from path.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCases(data)
}

// ParseCases decodes a JSON array of cases.
func ParseCases(data []byte) ([]Case, error) {
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("decode evaluation cases: %w", err)
	}
	if len(cases) == 0 {
		return nil, errors.New("no evaluation cases")
	}
	for i, c := range cases {
		if len(c.Input) == 0 {
			return nil, fmt.Errorf("case %d: input is required", i)
		}
	}
	return cases, nil
}

// Evaluate runs each case through runner in order and compares category,
// priority and routed team. A case that yields no record scores every
// labelled field as a miss. Incomplete records are still compared.
func Evaluate(ctx context.Context, runner Runner, cases []Case) Report {
	report := Report{
		Cases: len(cases),
		Scores: map[string]Score{
			FieldCategory:   {},
			FieldPriority:   {},
			FieldRoutedTeam: {},
		},
		Mismatches: []Mismatch{},
		Errors:     []CaseError{},
	}

	for i, c := range cases {
		result, err := runner.Process(ctx, c.Input)
		if err != nil {
			report.Errors = append(report.Errors, CaseError{Index: i, Error: err.Error()})
		}

		var ticketID string
		got := map[string]string{}
		if result != nil {
			ticketID = result.TicketID.String()
			got[FieldCategory] = string(result.Category)
			got[FieldPriority] = string(result.Priority)
			got[FieldRoutedTeam] = string(result.RouteTo)
		}

		for _, field := range []string{FieldCategory, FieldPriority, FieldRoutedTeam} {
			want := expectedValue(c.Expected, field)
			if want == "" {
				continue
			}
			score := report.Scores[field]
			score.Total++
			if want == normalize(field, got[field]) {
				score.Correct++
			} else {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Index:    i,
					TicketID: ticketID,
					Field:    field,
					Want:     want,
					Got:      got[field],
				})
			}
			report.Scores[field] = score
		}
	}
	return report
}

func expectedValue(e Expected, field string) string {
	switch field {
	case FieldCategory:
		return normalize(field, e.Category)
	case FieldPriority:
		return normalize(field, e.Priority)
	default:
		return normalize(field, e.RoutedTeam)
	}
}

// normalize maps label aliases onto canonical values so "billing" and
// "Billing Support" compare equal.
func normalize(field, value string) string {
	switch field {
	case FieldCategory:
		if c, ok := domain.ParseCategory(value); ok {
			return string(c)
		}
	case FieldPriority:
		if p, ok := domain.ParsePriority(value); ok {
			return string(p)
		}
	}
	return value
}
