package domain

import "time"

// Stage names a step of the triage pipeline.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageClassify   Stage = "classify"
	StagePrioritize Stage = "prioritize"
	StageRoute      Stage = "route"
)

// TriageStatus reports whether every stage produced a value.
type TriageStatus string

const (
	TriageStatusComplete   TriageStatus = "complete"
	TriageStatusIncomplete TriageStatus = "incomplete"
)

// StageFailure records a stage error on a result.
type StageFailure struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// UsageStats counts the model usage charged to one triage run.
type UsageStats struct {
	Requests int `json:"requests"`
	Tokens   int `json:"tokens"`
}

// TriageResult is the assembled output record for one ticket.
type TriageResult struct {
	RunID           string         `json:"run_id"`
	TicketID        TicketID       `json:"TicketID"`
	Subject         string         `json:"Subject"`
	Message         string         `json:"Message"`
	Category        Category       `json:"Category"`
	Priority        Priority       `json:"Priority"`
	RouteTo         Team           `json:"RouteTo"`
	SLAHours        *int           `json:"sla_hours"`
	EscalationPath  *string        `json:"escalation_path"`
	RegularCustomer bool           `json:"regular_customer"`
	RoutingFallback bool           `json:"routing_fallback,omitempty"`
	Status          TriageStatus   `json:"status"`
	FailedStage     Stage          `json:"failed_stage,omitempty"`
	Failures        []StageFailure `json:"failures,omitempty"`
	Usage           UsageStats     `json:"usage"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Complete reports whether the record carries no unresolved fields.
func (r *TriageResult) Complete() bool {
	return r.Status == TriageStatusComplete
}

// Routed reports whether the routing stage ran.
func (r *TriageResult) Routed() bool {
	return r.RouteTo != ""
}

// Escalated reports whether routing attached an escalation instruction.
func (r *TriageResult) Escalated() bool {
	return r.EscalationPath != nil && *r.EscalationPath != ""
}
