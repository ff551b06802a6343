// Package pipeline runs tickets through ingest, classify, prioritize and route.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/ingest"
	"github.com/spec-kit/ticket-triage/internal/llm"
)

// DefaultStageTimeout bounds a stage when none is configured.
const DefaultStageTimeout = 30 * time.Second

// Prioritizer assigns a priority from customer attributes.
type Prioritizer interface {
	Prioritize(ctx context.Context, ticket domain.Ticket) (domain.PriorityDecision, error)
}

// Router maps a category and priority to a team.
type Router interface {
	Route(ctx context.Context, ticketID domain.TicketID, category domain.Category, priority domain.Priority) (domain.RoutingDecision, error)
}

// Metrics receives stage timings and final results.
type Metrics interface {
	ObserveStage(stage domain.Stage, success bool, duration time.Duration)
	ObserveResult(result *domain.TriageResult)
}

// Dependencies wires an Orchestrator.
type Dependencies struct {
	Classifier       classifier.Classifier
	Prioritizer      Prioritizer
	Router           Router
	StageTimeout     time.Duration
	Limits           llm.Limits
	BatchConcurrency int
	Logger           *zap.Logger
	Metrics          Metrics
	Now              func() time.Time
}

// Orchestrator holds no per-ticket state and is safe for concurrent use.
type Orchestrator struct {
	classifier   classifier.Classifier
	prioritizer  Prioritizer
	router       Router
	stageTimeout time.Duration
	limits       llm.Limits
	concurrency  int
	logger       *zap.Logger
	metrics      Metrics
	now          func() time.Time
}

// NewOrchestrator validates deps and fills defaults.
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	if deps.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if deps.Prioritizer == nil {
		return nil, errors.New("pipeline: prioritizer is required")
	}
	if deps.Router == nil {
		return nil, errors.New("pipeline: router is required")
	}
	o := &Orchestrator{
		classifier:   deps.Classifier,
		prioritizer:  deps.Prioritizer,
		router:       deps.Router,
		stageTimeout: deps.StageTimeout,
		limits:       deps.Limits,
		concurrency:  deps.BatchConcurrency,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		now:          deps.Now,
	}
	if o.stageTimeout <= 0 {
		o.stageTimeout = DefaultStageTimeout
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = nopMetrics{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Process validates a raw payload and triages it. A validation failure
// returns an *ingest.ValidationError and no record.
func (o *Orchestrator) Process(ctx context.Context, payload []byte) (*domain.TriageResult, error) {
	start := time.Now()
	ticket, err := ingest.ParseTicket(payload)
	o.metrics.ObserveStage(domain.StageIngest, err == nil, time.Since(start))
	if err != nil {
		o.logger.Debug("ticket rejected", zap.Error(err))
		return nil, err
	}
	return o.ProcessTicket(ctx, ticket)
}

// ProcessTicket runs classify, prioritize and route in that order. When
// classification or prioritization fails the record is returned incomplete
// together with a *StageError naming the first failed stage. A routing failure
// falls back to the general support team and is not returned as an error.
func (o *Orchestrator) ProcessTicket(ctx context.Context, ticket domain.Ticket) (*domain.TriageResult, error) {
	usage := llm.NewUsage(o.limits)
	ctx = llm.WithUsage(ctx, usage)

	result := &domain.TriageResult{
		RunID:     uuid.NewString(),
		TicketID:  ticket.ID,
		Subject:   ticket.Subject,
		Message:   ticket.Message,
		Status:    domain.TriageStatusComplete,
		CreatedAt: o.now().UTC(),
	}
	logger := o.logger.With(zap.String("run_id", result.RunID), zap.String("ticket_id", ticket.ID.String()))

	var firstErr *StageError
	fail := func(stage domain.Stage, err error) {
		logger.Warn("stage failed", zap.String("stage", string(stage)), zap.Error(err))
		result.Failures = append(result.Failures, domain.StageFailure{Stage: stage, Message: err.Error()})
		if stage == domain.StageRoute {
			return
		}
		result.Status = domain.TriageStatusIncomplete
		if firstErr == nil {
			firstErr = &StageError{Stage: stage, Err: err}
			result.FailedStage = stage
		}
	}

	err := o.stage(ctx, domain.StageClassify, func(sctx context.Context) error {
		category, err := o.classifier.Classify(sctx, ticket.Subject, ticket.Message)
		if err != nil {
			return err
		}
		normalized, ok := domain.ParseCategory(string(category))
		if !ok {
			return fmt.Errorf("classifier returned %q outside the category set", category)
		}
		result.Category = normalized
		return nil
	})
	if err != nil {
		result.Category = domain.CategoryUnresolved
		fail(domain.StageClassify, err)
	}

	err = o.stage(ctx, domain.StagePrioritize, func(sctx context.Context) error {
		decision, err := o.prioritizer.Prioritize(sctx, ticket)
		if err != nil {
			return err
		}
		result.Priority = decision.Priority
		result.RegularCustomer = decision.Regular
		return nil
	})
	if err != nil {
		result.Priority = domain.PriorityUnresolved
		fail(domain.StagePrioritize, err)
	}

	// Routing an unresolved category or priority would invent a destination.
	if result.Complete() {
		err = o.stage(ctx, domain.StageRoute, func(sctx context.Context) error {
			decision, err := o.router.Route(sctx, ticket.ID, result.Category, result.Priority)
			if err != nil {
				return err
			}
			if decision.RoutedTeam == "" {
				return errors.New("router returned no team")
			}
			result.RouteTo = decision.RoutedTeam
			result.SLAHours = decision.SLAHours
			result.EscalationPath = decision.EscalationPath
			return nil
		})
		if err != nil {
			result.RouteTo = domain.TeamGeneralSupport
			result.SLAHours = nil
			result.EscalationPath = nil
			result.RoutingFallback = true
			fail(domain.StageRoute, err)
		}
	}

	snap := usage.Snapshot()
	result.Usage = domain.UsageStats{Requests: snap.Requests, Tokens: snap.TotalTokens()}
	o.metrics.ObserveResult(result)

	logger.Info("ticket triaged",
		zap.String("status", string(result.Status)),
		zap.String("category", string(result.Category)),
		zap.String("priority", string(result.Priority)),
		zap.String("route_to", string(result.RouteTo)),
		zap.Int("llm_requests", snap.Requests),
		zap.Int("llm_tokens", snap.TotalTokens()),
	)

	if firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// stage runs fn under its own timeout so a slow stage cannot starve later ones
// of their budget, and a cancelled parent stops every stage.
func (o *Orchestrator) stage(ctx context.Context, stage domain.Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		o.metrics.ObserveStage(stage, false, 0)
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	start := time.Now()
	err := fn(sctx)
	elapsed := time.Since(start)
	o.metrics.ObserveStage(stage, err == nil, elapsed)
	o.logger.Debug("stage finished",
		zap.String("stage", string(stage)),
		zap.Duration("elapsed", elapsed),
		zap.Bool("ok", err == nil),
	)
	return err
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(domain.Stage, bool, time.Duration) {}
func (nopMetrics) ObserveResult(*domain.TriageResult)             {}
