package policy

import (
	"context"
	"fmt"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// RegularCustomerAgeDays is the account age after which a customer counts as regular.
const RegularCustomerAgeDays = 100

var tierPriority = map[domain.Tier]domain.Priority{
	domain.TierFree:       domain.PriorityLow,
	domain.TierPremium:    domain.PriorityMedium,
	domain.TierEnterprise: domain.PriorityHigh,
}

// AssignPriority derives the ticket priority from the customer tier, raised one
// level (capped at High) for regular customers.
func AssignPriority(ticketID domain.TicketID, tier domain.Tier, accountAgeDays int) (domain.PriorityDecision, error) {
	normalized, err := domain.ParseTier(string(tier))
	if err != nil {
		return domain.PriorityDecision{}, err
	}
	if accountAgeDays < 0 {
		return domain.PriorityDecision{}, fmt.Errorf("account age must be non-negative, got %d", accountAgeDays)
	}

	decision := domain.PriorityDecision{
		TicketID: ticketID,
		Tier:     normalized,
		Priority: tierPriority[normalized],
		Regular:  accountAgeDays > RegularCustomerAgeDays,
	}
	if decision.Regular {
		decision.Priority = decision.Priority.Raise()
	}
	return decision, nil
}

// PolicyPrioritizer serves AssignPriority through the pipeline's prioritizer contract.
type PolicyPrioritizer struct{}

func (PolicyPrioritizer) Prioritize(_ context.Context, ticket domain.Ticket) (domain.PriorityDecision, error) {
	return AssignPriority(ticket.ID, ticket.Tier, ticket.AccountAgeDays)
}
