// Package policy holds the deterministic triage business rules.
package policy

import (
	"context"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

const (
	escalationProductHead = "Notify product head for expedited review"
	escalationOnCall      = "Escalate to on-call engineer"
)

type routeRule struct {
	team       domain.Team
	slaHours   int
	escalation string
}

var routingTable = map[domain.Category]map[domain.Priority]routeRule{
	domain.CategoryTechnical: {
		domain.PriorityHigh:   {team: domain.TeamTechSenior, slaHours: 4},
		domain.PriorityMedium: {team: domain.TeamTechL1, slaHours: 12},
		domain.PriorityLow:    {team: domain.TeamTechL2, slaHours: 24},
	},
	domain.CategoryBillingSupport: {
		domain.PriorityHigh:   {team: domain.TeamBilling, slaHours: 4},
		domain.PriorityMedium: {team: domain.TeamBilling, slaHours: 12},
		domain.PriorityLow:    {team: domain.TeamBilling, slaHours: 24},
	},
	domain.CategoryFeatureRequest: {
		domain.PriorityHigh:   {team: domain.TeamProductLeadership, escalation: escalationProductHead},
		domain.PriorityMedium: {team: domain.TeamProductManagement},
		domain.PriorityLow:    {team: domain.TeamProductManagement},
	},
	domain.CategoryBugReport: {
		domain.PriorityHigh:   {team: domain.TeamEngineeringCritical, escalation: escalationOnCall},
		domain.PriorityMedium: {team: domain.TeamEngineeringNormal},
		domain.PriorityLow:    {team: domain.TeamEngineeringNormal},
	},
	domain.CategoryAccountManagement: {
		domain.PriorityHigh:   {team: domain.TeamAccount},
		domain.PriorityMedium: {team: domain.TeamAccount},
		domain.PriorityLow:    {team: domain.TeamAccount},
	},
}

// Route maps (category, priority) to a routing decision. Unknown categories go to
// general support and unrecognized priorities are treated as Medium.
func Route(ticketID string, category domain.Category, priority domain.Priority) domain.RoutingDecision {
	decision := domain.RoutingDecision{TicketID: ticketID, RoutedTeam: domain.TeamGeneralSupport}

	if c, ok := domain.ParseCategory(string(category)); ok {
		category = c
	}
	rules, ok := routingTable[category]
	if !ok {
		return decision
	}

	p, ok := domain.ParsePriority(string(priority))
	if !ok {
		p = domain.PriorityMedium
	}
	rule := rules[p]

	decision.RoutedTeam = rule.team
	if rule.slaHours > 0 {
		sla := rule.slaHours
		decision.SLAHours = &sla
	}
	if rule.escalation != "" {
		path := rule.escalation
		decision.EscalationPath = &path
	}
	return decision
}

// TableRouter serves Route through the pipeline's router contract.
type TableRouter struct{}

// Route never fails; the error return satisfies routers that can.
func (TableRouter) Route(_ context.Context, ticketID domain.TicketID, category domain.Category, priority domain.Priority) (domain.RoutingDecision, error) {
	return Route(ticketID.String(), category, priority), nil
}
