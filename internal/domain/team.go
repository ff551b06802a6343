package domain

// Team names a support queue a ticket can be routed to.
type Team string

const (
	TeamTechSenior          Team = "Tech_Senior_Team"
	TeamTechL1              Team = "Tech_L1_Team"
	TeamTechL2              Team = "Tech_L2_Team"
	TeamBilling             Team = "Billing_Team"
	TeamProductLeadership   Team = "Product_Leadership"
	TeamProductManagement   Team = "Product_Management_Team"
	TeamEngineeringCritical Team = "Engineering_Critical_Bugs_Queue"
	TeamEngineeringNormal   Team = "Engineering_Normal_Bugs"
	TeamAccount             Team = "Account_Team"
	TeamGeneralSupport      Team = "General_Support_Team"
)

// RoutingDecision is the routing stage output and its JSON wire format.
type RoutingDecision struct {
	TicketID       string  `json:"ticket_id"`
	RoutedTeam     Team    `json:"routed_team"`
	SLAHours       *int    `json:"sla_hours"`
	EscalationPath *string `json:"escalation_path"`
}

// PriorityDecision is the priority stage output.
type PriorityDecision struct {
	TicketID TicketID `json:"ticket_id"`
	Tier     Tier     `json:"customer_tier"`
	Priority Priority `json:"priority"`
	Regular  bool     `json:"regular_customer"`
}
