package dto

import (
	"github.com/spec-kit/ticket-triage/internal/domain"
)

// PriorityRequest payload for POST /v1/priority.
type PriorityRequest struct {
	TicketID       domain.TicketID `json:"ticket_id"`
	CustomerTier   string          `json:"customer_tier"`
	AccountAgeDays *int            `json:"account_age_days"`
}

// RouteRequest payload for POST /v1/route.
type RouteRequest struct {
	TicketID string `json:"ticket_id"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// ErrorBody mirrors the error envelope used by every endpoint.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// BatchItemResponse is one entry of a batch triage response.
type BatchItemResponse struct {
	Index int                  `json:"index"`
	Data  *domain.TriageResult `json:"data,omitempty"`
	Error *ErrorBody           `json:"error,omitempty"`
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total      int `json:"total"`
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
	Rejected   int `json:"rejected"`
}
