package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-triage/internal/api/dto"
	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util/errorutil"
)

// TriageHandler exposes the triage pipeline over HTTP.
type TriageHandler struct {
	service *service.TriageService
}

// NewTriageHandler constructs handler.
func NewTriageHandler(triageService *service.TriageService) *TriageHandler {
	return &TriageHandler{service: triageService}
}

// Triage POST /v1/triage.
func (h *TriageHandler) Triage(c *fiber.Ctx) error {
	result, err := h.service.Triage(c.UserContext(), c.Body(), actorFrom(c))
	if err != nil {
		if result != nil {
			return withRecord(err, result)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// TriageBatch POST /v1/triage/batch.
func (h *TriageHandler) TriageBatch(c *fiber.Ctx) error {
	outcomes, err := h.service.TriageBatch(c.UserContext(), c.Body(), actorFrom(c))
	if err != nil {
		return err
	}

	items := make([]dto.BatchItemResponse, 0, len(outcomes))
	summary := dto.BatchSummary{Total: len(outcomes)}
	for _, outcome := range outcomes {
		item := dto.BatchItemResponse{Index: outcome.Index, Data: outcome.Result}
		switch {
		case outcome.Result == nil:
			summary.Rejected++
		case outcome.Result.Complete():
			summary.Complete++
		default:
			summary.Incomplete++
		}
		if outcome.Err != nil {
			de := apperrors.ToDomainError(outcome.Err)
			item.Error = &dto.ErrorBody{Code: de.Code, Message: de.Message, Details: de.Details}
		}
		items = append(items, item)
	}
	return c.JSON(fiber.Map{"data": items, "summary": summary})
}

// GetDecision GET /v1/triage/:ticket_id.
func (h *TriageHandler) GetDecision(c *fiber.Ctx) error {
	ticketID, err := service.DecodeTicketID(c.Params("ticket_id"))
	if err != nil {
		return err
	}
	result, err := h.service.LatestDecision(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// ListDecisions GET /v1/triage.
func (h *TriageHandler) ListDecisions(c *fiber.Ctx) error {
	filter, err := parseDecisionQuery(c)
	if err != nil {
		return err
	}
	results, err := h.service.ListDecisions(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": results})
}

// Route POST /v1/route.
func (h *TriageHandler) Route(c *fiber.Ctx) error {
	var req dto.RouteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.TicketID) == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	decision := h.service.Route(req.TicketID, domain.Category(req.Category), domain.Priority(req.Priority))
	return c.JSON(fiber.Map{"data": decision})
}

// Prioritize POST /v1/priority.
func (h *TriageHandler) Prioritize(c *fiber.Ctx) error {
	var req dto.PriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TicketID == "" || req.CustomerTier == "" || req.AccountAgeDays == nil {
		return apperrors.NewValidationError("ticket_id, customer_tier, account_age_days required", nil)
	}
	decision, err := h.service.Prioritize(req.TicketID, domain.Tier(req.CustomerTier), *req.AccountAgeDays)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": decision})
}

func actorFrom(c *fiber.Ctx) events.Actor {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return events.Actor{Type: domain.SubjectTypeClient}
	}
	return events.Actor{Type: principal.SubjectType, ClientID: principal.SubjectID}
}

// withRecord attaches the incomplete record to a stage failure so callers
// keep every field that was resolved.
func withRecord(err error, result *domain.TriageResult) error {
	de := apperrors.ToDomainError(err)
	details := make(map[string]any, len(de.Details)+1)
	for k, v := range de.Details {
		details[k] = v
	}
	details["record"] = result
	return &apperrors.DomainError{
		Code:       de.Code,
		Message:    de.Message,
		HTTPStatus: de.HTTPStatus,
		Details:    details,
		Err:        de.Err,
	}
}

func parseDecisionQuery(c *fiber.Ctx) (repository.TriageFilter, error) {
	filter := repository.TriageFilter{
		Limit:  parseInt(c.Query("limit"), 20),
		Offset: parseInt(c.Query("offset"), 0),
	}
	if raw := c.Query("category"); raw != "" {
		category, ok := domain.ParseCategory(raw)
		if !ok {
			return filter, apperrors.NewValidationError("unknown category", map[string]any{"category": raw})
		}
		filter.Category = &category
	}
	if raw := c.Query("priority"); raw != "" {
		priority, ok := domain.ParsePriority(raw)
		if !ok {
			return filter, apperrors.NewValidationError("unknown priority", map[string]any{"priority": raw})
		}
		filter.Priority = &priority
	}
	if raw := c.Query("route_to"); raw != "" {
		team := domain.Team(raw)
		filter.RouteTo = &team
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.TriageStatus(strings.ToLower(raw))
		if status != domain.TriageStatusComplete && status != domain.TriageStatusIncomplete {
			return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": raw})
		}
		filter.Status = &status
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperrors.NewValidationError("since must be RFC3339", map[string]any{"since": raw})
		}
		filter.Since = &since
	}
	return filter, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}
