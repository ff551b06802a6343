// Package ingest extracts ticket records from raw payloads.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// InvalidTicketMessage is the fixed message returned for every rejected payload.
const InvalidTicketMessage = "Give valid ticket"

// RequiredFields lists the payload keys every ticket must carry.
var RequiredFields = []string{
	"ticket_id",
	"customer_tier",
	"subject",
	"message",
	"previous_tickets",
	"monthly_revenue",
	"account_age_days",
}

// ValidationError reports a rejected payload. Problems maps field names to reasons.
type ValidationError struct {
	Problems map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return InvalidTicketMessage
	}
	keys := make([]string, 0, len(e.Problems))
	for k := range e.Problems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Problems[k])
	}
	return fmt.Sprintf("%s (%s)", InvalidTicketMessage, strings.Join(parts, "; "))
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Problems: map[string]string{field: reason}}
}

// IsValidationError reports whether err is a payload rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParseTicket decodes and validates a single ticket payload.
func ParseTicket(payload []byte) (domain.Ticket, error) {
	payload = normalize(payload)
	if len(payload) > 0 && payload[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(payload, &items); err != nil || len(items) != 1 {
			return domain.Ticket{}, invalid("payload", "expected a single ticket object")
		}
		payload = items[0]
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return domain.Ticket{}, invalid("payload", "not a JSON object")
	}
	return fromFields(fields)
}

// ParseBatch decodes a JSON array of ticket payloads without validating them, so
// each element can be accepted or rejected on its own.
func ParseBatch(payload []byte) ([]json.RawMessage, error) {
	payload = normalize(payload)
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, invalid("payload", "expected a JSON array of tickets")
	}
	if len(items) == 0 {
		return nil, invalid("payload", "no tickets")
	}
	return items, nil
}

func fromFields(fields map[string]json.RawMessage) (domain.Ticket, error) {
	problems := map[string]string{}
	for _, name := range RequiredFields {
		raw, ok := fields[name]
		if !ok {
			problems[name] = "missing"
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			problems[name] = "null"
		}
	}
	if len(problems) > 0 {
		return domain.Ticket{}, &ValidationError{Problems: problems}
	}

	var ticket domain.Ticket
	if err := json.Unmarshal(fields["ticket_id"], &ticket.ID); err != nil || ticket.ID == "" {
		problems["ticket_id"] = "must be a non-empty string or integer"
	}

	var tier string
	if err := json.Unmarshal(fields["customer_tier"], &tier); err != nil {
		problems["customer_tier"] = "must be a string"
	} else if parsed, err := domain.ParseTier(tier); err != nil {
		problems["customer_tier"] = "must be one of free, premium, enterprise"
	} else {
		ticket.Tier = parsed
	}

	if err := json.Unmarshal(fields["subject"], &ticket.Subject); err != nil {
		problems["subject"] = "must be a string"
	} else if ticket.Subject = strings.TrimSpace(ticket.Subject); ticket.Subject == "" {
		problems["subject"] = "must not be empty"
	}

	if err := json.Unmarshal(fields["message"], &ticket.Message); err != nil {
		problems["message"] = "must be a string"
	} else if ticket.Message = strings.TrimSpace(ticket.Message); ticket.Message == "" {
		problems["message"] = "must not be empty"
	}

	if n, reason := nonNegativeInt(fields["previous_tickets"]); reason != "" {
		problems["previous_tickets"] = reason
	} else {
		ticket.PreviousTickets = n
	}

	if n, reason := nonNegativeInt(fields["account_age_days"]); reason != "" {
		problems["account_age_days"] = reason
	} else {
		ticket.AccountAgeDays = n
	}

	var revenue decimal.Decimal
	if err := json.Unmarshal(fields["monthly_revenue"], &revenue); err != nil {
		problems["monthly_revenue"] = "must be a number"
	} else if revenue.IsNegative() {
		problems["monthly_revenue"] = "must be non-negative"
	} else {
		ticket.MonthlyRevenue = revenue
	}

	if len(problems) > 0 {
		return domain.Ticket{}, &ValidationError{Problems: problems}
	}
	return ticket, nil
}

func nonNegativeInt(raw json.RawMessage) (int, string) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, "must be an integer"
	}
	if n < 0 {
		return 0, "must be non-negative"
	}
	return n, ""
}

// normalize trims whitespace and a trailing comma left over from pasted samples.
func normalize(payload []byte) []byte {
	payload = bytes.TrimSpace(payload)
	payload = bytes.TrimSuffix(payload, []byte(","))
	return bytes.TrimSpace(payload)
}
