package domain

import "time"

// SubjectType differentiates the kinds of token holders.
type SubjectType string

const (
	SubjectTypeClient SubjectType = "CLIENT"
)

// Scope limits what a token holder may call.
type Scope string

const (
	ScopeTriageWrite Scope = "triage:write"
	ScopeTriageRead  Scope = "triage:read"
)

// Token represents issued authentication token metadata.
type Token struct {
	SubjectID string
	Subject   SubjectType
	Scopes    []Scope
	ExpiresAt time.Time
	IssuedAt  time.Time
}
