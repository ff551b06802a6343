package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/ingest"
	"github.com/spec-kit/ticket-triage/internal/limiter"
	"github.com/spec-kit/ticket-triage/internal/llm"
	"github.com/spec-kit/ticket-triage/internal/pipeline"
	"github.com/spec-kit/ticket-triage/internal/policy"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util/errorutil"
)

// Budget gates model usage across instances.
type Budget interface {
	Allow(ctx context.Context) error
	Record(ctx context.Context, requests, tokens int) error
}

// BudgetRecorder counts budget rejections.
type BudgetRecorder interface {
	RecordBudgetRejection()
}

// TriageService coordinates triage runs with storage, budget and events.
type TriageService struct {
	pipeline   *pipeline.Orchestrator
	decisions  repository.TriageRepository
	budget     Budget
	dispatcher events.Dispatcher
	recorder   BudgetRecorder
	logger     *zap.Logger
}

// TriageDependencies bundles collaborators for the triage service. Only
// Pipeline is required.
type TriageDependencies struct {
	Pipeline     *pipeline.Orchestrator
	DecisionRepo repository.TriageRepository
	Budget       Budget
	Dispatcher   events.Dispatcher
	Recorder     BudgetRecorder
	Logger       *zap.Logger
}

// BatchOutcome is one entry of a batch response.
type BatchOutcome struct {
	Index  int
	Result *domain.TriageResult
	Err    error
}

// NewTriageService constructs the service.
func NewTriageService(deps TriageDependencies) *TriageService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriageService{
		pipeline:   deps.Pipeline,
		decisions:  deps.DecisionRepo,
		budget:     deps.Budget,
		dispatcher: deps.Dispatcher,
		recorder:   deps.Recorder,
		logger:     logger,
	}
}

// Triage runs one raw ticket payload. A stage failure returns the incomplete
// record together with a STAGE_FAILED error.
func (s *TriageService) Triage(ctx context.Context, payload []byte, actor events.Actor) (*domain.TriageResult, error) {
	if err := s.checkBudget(ctx); err != nil {
		return nil, err
	}
	result, err := s.pipeline.Process(ctx, payload)
	if result != nil {
		s.afterRun(ctx, result, actor)
	}
	return result, s.mapError(result, err)
}

// TriageBatch runs every ticket of a JSON array independently. The budget is
// checked before each ticket and usage is recorded as soon as it finishes, so
// an exhausted budget rejects the remaining tickets with BUDGET_EXCEEDED. The
// overshoot is bounded by the tickets already in flight.
func (s *TriageService) TriageBatch(ctx context.Context, payload []byte, actor events.Actor) ([]BatchOutcome, error) {
	items, err := ingest.ParseBatch(payload)
	if err != nil {
		return nil, s.mapError(nil, err)
	}
	if err := s.checkBudget(ctx); err != nil {
		return nil, err
	}

	results := s.pipeline.ProcessBatchWithHooks(ctx, items, pipeline.BatchHooks{
		Before: func(ctx context.Context, _ int) error {
			return s.checkBudget(ctx)
		},
		After: func(ctx context.Context, item pipeline.BatchItem) {
			if item.Result != nil {
				s.afterRun(ctx, item.Result, actor)
			}
		},
	})
	outcomes := make([]BatchOutcome, len(results))
	for i, item := range results {
		outcomes[i] = BatchOutcome{Index: item.Index, Result: item.Result, Err: s.mapError(item.Result, item.Err)}
	}
	return outcomes, nil
}

// LatestDecision returns the most recent stored decision for a ticket.
func (s *TriageService) LatestDecision(ctx context.Context, ticketID domain.TicketID) (*domain.TriageResult, error) {
	if s.decisions == nil {
		return nil, apperrors.NewServiceUnavailable("decision store not configured")
	}
	result, err := s.decisions.LatestByTicketID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("triage decision", map[string]any{"ticket_id": ticketID.String()})
		}
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// ListDecisions returns stored decisions, newest first.
func (s *TriageService) ListDecisions(ctx context.Context, filter repository.TriageFilter) ([]domain.TriageResult, error) {
	if s.decisions == nil {
		return nil, apperrors.NewServiceUnavailable("decision store not configured")
	}
	results, err := s.decisions.ListRecent(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return results, nil
}

// Route applies the routing table directly. It never fails.
func (s *TriageService) Route(ticketID string, category domain.Category, priority domain.Priority) domain.RoutingDecision {
	return policy.Route(ticketID, category, priority)
}

// Prioritize applies the priority policy directly.
func (s *TriageService) Prioritize(ticketID domain.TicketID, tier domain.Tier, accountAgeDays int) (domain.PriorityDecision, error) {
	decision, err := policy.AssignPriority(ticketID, tier, accountAgeDays)
	if err != nil {
		return domain.PriorityDecision{}, apperrors.NewValidationError(err.Error(), nil)
	}
	return decision, nil
}

func (s *TriageService) checkBudget(ctx context.Context) error {
	if s.budget == nil {
		return nil
	}
	err := s.budget.Allow(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiter.ErrBudgetExceeded):
		if s.recorder != nil {
			s.recorder.RecordBudgetRejection()
		}
		return apperrors.NewBudgetExceeded("daily model budget exhausted", err)
	default:
		// The budget store is an outer surface; losing it must not stop triage.
		s.logger.Warn("budget check failed; allowing request", zap.Error(err))
		return nil
	}
}

func (s *TriageService) afterRun(ctx context.Context, result *domain.TriageResult, actor events.Actor) {
	if s.budget != nil {
		if err := s.budget.Record(ctx, result.Usage.Requests, result.Usage.Tokens); err != nil {
			s.logger.Warn("record budget usage failed", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}
	if s.decisions != nil {
		if err := s.decisions.Create(ctx, result); err != nil {
			s.logger.Error("persist triage decision failed", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}
	s.publish(ctx, result, actor)
}

func (s *TriageService) publish(ctx context.Context, result *domain.TriageResult, actor events.Actor) {
	if s.dispatcher == nil {
		return
	}
	var batch []events.Event
	if result.Complete() {
		batch = append(batch, events.New(events.EventTicketTriaged, result, actor, events.TicketTriagedPayload{
			Category:        result.Category,
			Priority:        result.Priority,
			RouteTo:         result.RouteTo,
			SLAHours:        result.SLAHours,
			RoutingFallback: result.RoutingFallback,
		}))
		if result.Escalated() {
			batch = append(batch, events.New(events.EventTicketEscalated, result, actor, events.TicketEscalatedPayload{
				Category:       result.Category,
				Priority:       result.Priority,
				RouteTo:        result.RouteTo,
				EscalationPath: *result.EscalationPath,
				Subject:        result.Subject,
			}))
		}
	} else {
		batch = append(batch, events.New(events.EventTicketTriageFailed, result, actor, events.TicketTriageFailedPayload{
			FailedStage: result.FailedStage,
			Failures:    result.Failures,
			Category:    result.Category,
			Priority:    result.Priority,
		}))
	}
	for _, event := range batch {
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
}

func (s *TriageService) mapError(result *domain.TriageResult, err error) error {
	if err == nil {
		return nil
	}
	var validation *ingest.ValidationError
	if errors.As(err, &validation) {
		details := make(map[string]any, len(validation.Problems))
		for field, problem := range validation.Problems {
			details[field] = problem
		}
		return apperrors.NewValidationError(ingest.InvalidTicketMessage, details)
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		details := map[string]any{"stage": string(stageErr.Stage)}
		if result != nil {
			details["ticket_id"] = result.TicketID.String()
			details["run_id"] = result.RunID
		}
		if errors.Is(err, llm.ErrUsageLimitExceeded) {
			details["reason"] = "usage_limit"
		}
		return apperrors.NewStageFailed(fmt.Sprintf("%s stage failed", stageErr.Stage), details, err)
	}
	return apperrors.MapError(err)
}

// DecodeTicketID parses a path parameter into a TicketID.
func DecodeTicketID(raw string) (domain.TicketID, error) {
	id := domain.TicketID(strings.TrimSpace(raw))
	if id == "" {
		return "", apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": raw})
	}
	return id, nil
}
