package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownTier is returned when a customer tier is outside the declared set.
var ErrUnknownTier = errors.New("unknown customer tier")

// TicketID identifies a ticket. Upstream systems send either integers or strings.
type TicketID string

// UnmarshalJSON accepts a JSON string or an integral JSON number.
func (id *TicketID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("ticket id is null")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TicketID(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("ticket id must be a string or integer: %w", err)
	}
	*id = TicketID(strconv.FormatInt(n, 10))
	return nil
}

// MarshalJSON emits canonical numeric ids as integers and everything else as strings.
func (id TicketID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// Int reports the numeric form of the id when the id is the canonical decimal
// spelling of an integer. "007" and "+42" are not, so they stay strings.
func (id TicketID) Int() (int64, bool) {
	if id == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != string(id) {
		return 0, false
	}
	return n, true
}

func (id TicketID) String() string {
	return string(id)
}

// Tier enumerates customer account levels.
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// ParseTier normalizes raw tier input.
func ParseTier(raw string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(raw))); t {
	case TierFree, TierPremium, TierEnterprise:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
	}
}

// Category enumerates the closed classification domain.
type Category string

const (
	CategoryTechnical         Category = "Technical"
	CategoryBillingSupport    Category = "Billing Support"
	CategoryFeatureRequest    Category = "Feature Request"
	CategoryBugReport         Category = "Bug Report"
	CategoryAccountManagement Category = "Account Management"
	CategoryOther             Category = "Other"

	// CategoryUnresolved marks a record whose classification stage failed.
	CategoryUnresolved Category = "Unresolved"
)

// Categories lists the classifier output domain in canonical order.
var Categories = []Category{
	CategoryTechnical,
	CategoryBillingSupport,
	CategoryFeatureRequest,
	CategoryBugReport,
	CategoryAccountManagement,
	CategoryOther,
}

var categoryAliases = map[string]Category{
	"technical":          CategoryTechnical,
	"tech":               CategoryTechnical,
	"technical support":  CategoryTechnical,
	"billing support":    CategoryBillingSupport,
	"billing":            CategoryBillingSupport,
	"feature request":    CategoryFeatureRequest,
	"feature support":    CategoryFeatureRequest,
	"feature":            CategoryFeatureRequest,
	"bug report":         CategoryBugReport,
	"bug":                CategoryBugReport,
	"account management": CategoryAccountManagement,
	"account":            CategoryAccountManagement,
	"other":              CategoryOther,
}

// ParseCategory maps a free-form label onto the closed category set.
func ParseCategory(raw string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	c, ok := categoryAliases[key]
	return c, ok
}

// Priority enumerates ordinal urgency levels.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"

	// PriorityUnresolved marks a record whose prioritization stage failed.
	PriorityUnresolved Priority = "Unresolved"
)

// ParsePriority normalizes a priority label; ok is false for unrecognized values.
func ParsePriority(raw string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	default:
		return "", false
	}
}

// Rank returns 1 for Low through 3 for High, 0 for anything else.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	default:
		return 0
	}
}

// Raise moves the priority up one level, saturating at High.
func (p Priority) Raise() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium, PriorityHigh:
		return PriorityHigh
	default:
		return p
	}
}

// Ticket is an ingested support request. It is not mutated after ingestion.
type Ticket struct {
	ID              TicketID
	Subject         string
	Message         string
	Tier            Tier
	AccountAgeDays  int
	PreviousTickets int
	MonthlyRevenue  decimal.Decimal
}
