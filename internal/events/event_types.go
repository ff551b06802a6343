package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketTriaged      EventType = "ticket_triaged"
	EventTicketEscalated    EventType = "ticket_escalated"
	EventTicketTriageFailed EventType = "ticket_triage_failed"
)

// AllEventTypes lists every type a forwarder should subscribe to.
var AllEventTypes = []EventType{EventTicketTriaged, EventTicketEscalated, EventTicketTriageFailed}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type     domain.SubjectType `json:"type"`
	ClientID string             `json:"client_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	RunID     string      `json:"run_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, result *domain.TriageResult, actor Actor, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  result.TicketID.String(),
		RunID:     result.RunID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketTriagedPayload payload.
type TicketTriagedPayload struct {
	Category        domain.Category `json:"category"`
	Priority        domain.Priority `json:"priority"`
	RouteTo         domain.Team     `json:"route_to"`
	SLAHours        *int            `json:"sla_hours"`
	RoutingFallback bool            `json:"routing_fallback"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Category       domain.Category `json:"category"`
	Priority       domain.Priority `json:"priority"`
	RouteTo        domain.Team     `json:"route_to"`
	EscalationPath string          `json:"escalation_path"`
	Subject        string          `json:"subject"`
}

// TicketTriageFailedPayload payload.
type TicketTriageFailedPayload struct {
	FailedStage domain.Stage          `json:"failed_stage"`
	Failures    []domain.StageFailure `json:"failures"`
	Category    domain.Category       `json:"category"`
	Priority    domain.Priority       `json:"priority,omitempty"`
}
