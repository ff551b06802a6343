package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

const validPayload = `{
	"ticket_id": "SUP-002",
	"customer_tier": "Enterprise",
	"subject": "  API 500 errors ",
	"message": "Our production integration is failing with 500 responses.",
	"previous_tickets": 3,
	"monthly_revenue": 5000.50,
	"account_age_days": 450
}`

func TestParseTicket(t *testing.T) {
	ticket, err := ParseTicket([]byte(validPayload))
	require.NoError(t, err)

	assert.Equal(t, domain.TicketID("SUP-002"), ticket.ID)
	assert.Equal(t, domain.TierEnterprise, ticket.Tier)
	assert.Equal(t, "API 500 errors", ticket.Subject)
	assert.Equal(t, 450, ticket.AccountAgeDays)
	assert.Equal(t, 3, ticket.PreviousTickets)
	assert.True(t, decimal.RequireFromString("5000.5").Equal(ticket.MonthlyRevenue))
}

func TestParseTicketAcceptsPastedSample(t *testing.T) {
	payload := `
		{
			"ticket_id": 7,
			"customer_tier": "free",
			"subject": "This product is completely broken!!!",
			"message": "Nothing works! I can't even log in.",
			"previous_tickets": 0,
			"monthly_revenue": 0,
			"account_age_days": 2
		},
	`
	ticket, err := ParseTicket([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketID("7"), ticket.ID)

	ticket, err = ParseTicket([]byte("[" + validPayload + "]"))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketID("SUP-002"), ticket.ID)
}

func TestParseTicketRejectsMissingAccountAge(t *testing.T) {
	payload := `{
		"ticket_id": "SUP-003",
		"customer_tier": "premium",
		"subject": "Refund",
		"message": "Please refund me",
		"previous_tickets": 1,
		"monthly_revenue": 20
	}`
	_, err := ParseTicket([]byte(payload))
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "missing", ve.Problems["account_age_days"])
	assert.Contains(t, err.Error(), InvalidTicketMessage)
	assert.True(t, IsValidationError(err))
}

func TestParseTicketRejectsMalformedFields(t *testing.T) {
	payload := `{
		"ticket_id": null,
		"customer_tier": "gold",
		"subject": "   ",
		"message": 12,
		"previous_tickets": -1,
		"monthly_revenue": "lots",
		"account_age_days": "old"
	}`
	_, err := ParseTicket([]byte(payload))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{"ticket_id": "null"}, ve.Problems)

	payload = `{
		"ticket_id": "A",
		"customer_tier": "gold",
		"subject": "   ",
		"message": 12,
		"previous_tickets": -1,
		"monthly_revenue": "lots",
		"account_age_days": "old"
	}`
	_, err = ParseTicket([]byte(payload))
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 6)
	assert.NotContains(t, ve.Problems, "ticket_id")
}

func TestParseTicketRejectsNonObjects(t *testing.T) {
	for _, payload := range []string{"", "not json", `"ticket"`, `[]`, `[{}, {}]`} {
		_, err := ParseTicket([]byte(payload))
		assert.True(t, IsValidationError(err), payload)
	}
}

func TestParseBatch(t *testing.T) {
	items, err := ParseBatch([]byte("[" + validPayload + ", {}]"))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = ParseBatch([]byte(`[]`))
	assert.True(t, IsValidationError(err))

	_, err = ParseBatch([]byte(validPayload))
	assert.True(t, IsValidationError(err))
}
