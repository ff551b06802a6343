package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const billingTicket = `{
	"ticket_id": 77,
	"customer_tier": "premium",
	"subject": "Refund for double charge",
	"message": "My credit card was charged twice for the invoice.",
	"previous_tickets": 1,
	"monthly_revenue": 120.50,
	"account_age_days": 30
}`

func setRulesEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("CLASSIFIER_MODE", "rules")
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRunSingleTicketFromStdin(t *testing.T) {
	setRulesEnv(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"--compact"}, strings.NewReader(billingTicket), &out))

	var got output
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.NotNil(t, got.Record)
	assert.Equal(t, "Billing Support", string(got.Record.Category))
	assert.Equal(t, "Medium", string(got.Record.Priority))
	assert.Equal(t, "Billing_Team", string(got.Record.RouteTo))
}

func TestRunBatchFromFile(t *testing.T) {
	setRulesEnv(t)
	path := filepath.Join(t.TempDir(), "tickets.json")
	require.NoError(t, os.WriteFile(path, []byte("["+billingTicket+`, {"ticket_id": "broken"}]`), 0o600))
	var out bytes.Buffer

	err := run([]string{"--file", path, "--compact"}, strings.NewReader(""), &out)
	require.Error(t, err, "one ticket is invalid")

	dec := json.NewDecoder(&out)
	var first, second output
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, 0, first.Index)
	assert.Empty(t, first.Error)
	assert.Equal(t, 1, second.Index)
	assert.Contains(t, second.Error, "Give valid ticket")
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	setRulesEnv(t)
	err := run([]string{"--nope"}, strings.NewReader(""), &bytes.Buffer{})
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.code)
}

func TestRunEvalReportsAccuracyAndMismatches(t *testing.T) {
	setRulesEnv(t)
	cases := `[
		{"input": ` + billingTicket + `, "expected": {"category": "billing", "priority": "Medium", "routed_team": "Billing_Team"}},
		{"input": ` + billingTicket + `, "expected": {"category": "Technical Support", "priority": "Medium"}}
	]`
	path := filepath.Join(t.TempDir(), "cases.json")
	require.NoError(t, os.WriteFile(path, []byte(cases), 0o600))
	var out bytes.Buffer

	err := run([]string{"--eval", path}, strings.NewReader(""), &out)
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)

	var report struct {
		Cases  int `json:"cases"`
		Scores map[string]struct {
			Correct  int     `json:"correct"`
			Total    int     `json:"total"`
			Accuracy float64 `json:"accuracy"`
		} `json:"scores"`
		Mismatches []struct {
			Index int    `json:"index"`
			Field string `json:"field"`
			Got   string `json:"got"`
		} `json:"mismatches"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 2, report.Cases)
	assert.Equal(t, 0.5, report.Scores["category"].Accuracy)
	assert.Equal(t, 1.0, report.Scores["priority"].Accuracy)
	assert.Equal(t, 1, report.Scores["routed_team"].Total)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, 1, report.Mismatches[0].Index)
	assert.Equal(t, "category", report.Mismatches[0].Field)
	assert.Equal(t, "Billing Support", report.Mismatches[0].Got)
}

func TestRunEvalMissingFile(t *testing.T) {
	setRulesEnv(t)
	err := run([]string{"--eval", filepath.Join(t.TempDir(), "missing.json")}, strings.NewReader(""), &bytes.Buffer{})
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 2, ee.code)
}
