package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/ingest"
	"github.com/spec-kit/ticket-triage/internal/llm"
	"github.com/spec-kit/ticket-triage/internal/policy"
)

const supportAPIPayload = `{
	"ticket_id": "SUP-002",
	"customer_tier": "enterprise",
	"subject": "API 500 errors",
	"message": "Our production system has been failing since the last integration update. The API returns 500 every few minutes.",
	"previous_tickets": 3,
	"monthly_revenue": 5000,
	"account_age_days": 450
}`

const brokenLoginPayload = `{
	"ticket_id": "SUP-001",
	"customer_tier": "free",
	"subject": "This product is completely broken!!!",
	"message": "Nothing works! I can't even log in. This is the worst software I've ever used. I'm",
	"previous_tickets": 0,
	"monthly_revenue": 0,
	"account_age_days": 2
},`

func newTestOrchestrator(t *testing.T, c classifier.Classifier, opts ...func(*Dependencies)) *Orchestrator {
	t.Helper()
	if c == nil {
		rules, err := classifier.NewRuleClassifier()
		require.NoError(t, err)
		c = rules
	}
	deps := Dependencies{
		Classifier:       c,
		Prioritizer:      policy.PolicyPrioritizer{},
		Router:           policy.TableRouter{},
		StageTimeout:     time.Second,
		BatchConcurrency: 2,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	o, err := NewOrchestrator(deps)
	require.NoError(t, err)
	return o
}

func fixed(category domain.Category) classifier.Func {
	return func(context.Context, string, string) (domain.Category, error) {
		return category, nil
	}
}

type failingRouter struct{}

func (failingRouter) Route(context.Context, domain.TicketID, domain.Category, domain.Priority) (domain.RoutingDecision, error) {
	return domain.RoutingDecision{}, errors.New("routing service down")
}

type recordingMetrics struct {
	stages  map[domain.Stage]int
	results int
}

func (m *recordingMetrics) ObserveStage(stage domain.Stage, _ bool, _ time.Duration) {
	if m.stages == nil {
		m.stages = map[domain.Stage]int{}
	}
	m.stages[stage]++
}

func (m *recordingMetrics) ObserveResult(*domain.TriageResult) { m.results++ }

func TestProcessEnterpriseAPIOutage(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	result, err := o.Process(context.Background(), []byte(supportAPIPayload))
	require.NoError(t, err)

	assert.Equal(t, domain.TicketID("SUP-002"), result.TicketID)
	assert.Equal(t, domain.CategoryTechnical, result.Category)
	assert.Equal(t, domain.PriorityHigh, result.Priority)
	assert.Equal(t, domain.TeamTechSenior, result.RouteTo)
	require.NotNil(t, result.SLAHours)
	assert.Equal(t, 4, *result.SLAHours)
	assert.Nil(t, result.EscalationPath)
	assert.True(t, result.RegularCustomer)
	assert.True(t, result.Complete())
	assert.NotEmpty(t, result.RunID)
}

func TestProcessFreeAccountLogin(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	result, err := o.Process(context.Background(), []byte(brokenLoginPayload))
	require.NoError(t, err)

	assert.Equal(t, domain.CategoryAccountManagement, result.Category)
	assert.Equal(t, domain.PriorityLow, result.Priority)
	assert.Equal(t, domain.TeamAccount, result.RouteTo)
	assert.Nil(t, result.SLAHours)
	assert.Nil(t, result.EscalationPath)
	assert.False(t, result.RegularCustomer)
}

func TestProcessRejectsMissingField(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	result, err := o.Process(context.Background(), []byte(`{
		"ticket_id": 7, "customer_tier": "free", "subject": "s", "message": "m",
		"previous_tickets": 0, "monthly_revenue": 0
	}`))
	assert.Nil(t, result)
	require.True(t, ingest.IsValidationError(err))
	assert.Contains(t, err.Error(), ingest.InvalidTicketMessage)
	assert.Contains(t, err.Error(), "account_age_days")
}

func TestClassificationFailureIsNotInvented(t *testing.T) {
	boom := errors.New("model unavailable")
	o := newTestOrchestrator(t, classifier.Func(func(context.Context, string, string) (domain.Category, error) {
		return "", boom
	}))

	result, err := o.Process(context.Background(), []byte(supportAPIPayload))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StageClassify, stageErr.Stage)
	assert.ErrorIs(t, err, boom)

	require.NotNil(t, result)
	assert.Equal(t, domain.CategoryUnresolved, result.Category)
	assert.Equal(t, domain.TriageStatusIncomplete, result.Status)
	assert.Equal(t, domain.StageClassify, result.FailedStage)
	assert.Equal(t, domain.PriorityHigh, result.Priority)
	assert.False(t, result.Routed())
	require.Len(t, result.Failures, 1)
}

func TestClassifierOutsideClosedSetFails(t *testing.T) {
	o := newTestOrchestrator(t, fixed("Shipping"))

	result, err := o.Process(context.Background(), []byte(supportAPIPayload))
	require.Error(t, err)
	assert.Equal(t, domain.CategoryUnresolved, result.Category)
}

func TestPriorityFailureLeavesRecordIncomplete(t *testing.T) {
	o := newTestOrchestrator(t, fixed(domain.CategoryBillingSupport))

	result, err := o.ProcessTicket(context.Background(), domain.Ticket{
		ID:      "T-1",
		Subject: "s",
		Message: "m",
		Tier:    "gold",
	})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StagePrioritize, stageErr.Stage)
	assert.ErrorIs(t, err, domain.ErrUnknownTier)

	assert.Equal(t, domain.CategoryBillingSupport, result.Category)
	assert.Equal(t, domain.PriorityUnresolved, result.Priority)
	_, known := domain.ParsePriority(string(result.Priority))
	assert.False(t, known)
	assert.False(t, result.Routed())
	assert.False(t, result.Complete())
}

func TestRoutingFailureFallsBackToGeneralSupport(t *testing.T) {
	o := newTestOrchestrator(t, fixed(domain.CategoryTechnical), func(d *Dependencies) {
		d.Router = failingRouter{}
	})

	result, err := o.Process(context.Background(), []byte(supportAPIPayload))
	require.NoError(t, err)
	assert.Equal(t, domain.TeamGeneralSupport, result.RouteTo)
	assert.True(t, result.RoutingFallback)
	assert.True(t, result.Complete())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, domain.StageRoute, result.Failures[0].Stage)
}

func TestStageTimeoutIsEnforced(t *testing.T) {
	slow := classifier.Func(func(ctx context.Context, _, _ string) (domain.Category, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	o := newTestOrchestrator(t, slow, func(d *Dependencies) {
		d.StageTimeout = 20 * time.Millisecond
	})

	result, err := o.Process(context.Background(), []byte(supportAPIPayload))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.CategoryUnresolved, result.Category)
	// Prioritization has its own budget and still succeeds.
	assert.Equal(t, domain.PriorityHigh, result.Priority)
}

func TestUsageIsSharedAcrossStages(t *testing.T) {
	charge := classifier.Func(func(ctx context.Context, _, _ string) (domain.Category, error) {
		usage := llm.UsageFromContext(ctx)
		if usage == nil {
			return "", errors.New("no usage attached")
		}
		if err := usage.BeginRequest(40); err != nil {
			return "", err
		}
		if err := usage.EndRequest(10); err != nil {
			return "", err
		}
		return domain.CategoryOther, nil
	})
	o := newTestOrchestrator(t, charge, func(d *Dependencies) {
		d.Limits = llm.Limits{RequestLimit: 1, TotalTokensLimit: 100}
	})

	result, err := o.Process(context.Background(), []byte(supportAPIPayload))
	require.NoError(t, err)
	assert.Equal(t, domain.UsageStats{Requests: 1, Tokens: 50}, result.Usage)
}

func TestUsageLimitIsAStageFailure(t *testing.T) {
	charge := classifier.Func(func(ctx context.Context, _, _ string) (domain.Category, error) {
		if err := llm.UsageFromContext(ctx).BeginRequest(500); err != nil {
			return "", err
		}
		return domain.CategoryOther, nil
	})
	o := newTestOrchestrator(t, charge, func(d *Dependencies) {
		d.Limits = llm.Limits{TotalTokensLimit: 100}
	})

	_, err := o.Process(context.Background(), []byte(supportAPIPayload))
	assert.ErrorIs(t, err, llm.ErrUsageLimitExceeded)
}

func TestCancelledContextStopsStages(t *testing.T) {
	var calls atomic.Int32
	counting := classifier.Func(func(context.Context, string, string) (domain.Category, error) {
		calls.Add(1)
		return domain.CategoryOther, nil
	})
	o := newTestOrchestrator(t, counting)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := o.Process(ctx, []byte(supportAPIPayload))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
	assert.Equal(t, domain.TriageStatusIncomplete, result.Status)
}

func TestMetricsObserveEveryStage(t *testing.T) {
	metrics := &recordingMetrics{}
	o := newTestOrchestrator(t, nil, func(d *Dependencies) { d.Metrics = metrics })

	_, err := o.Process(context.Background(), []byte(supportAPIPayload))
	require.NoError(t, err)
	assert.Equal(t, map[domain.Stage]int{
		domain.StageIngest:     1,
		domain.StageClassify:   1,
		domain.StagePrioritize: 1,
		domain.StageRoute:      1,
	}, metrics.stages)
	assert.Equal(t, 1, metrics.results)
}

func TestNewOrchestratorRequiresStages(t *testing.T) {
	_, err := NewOrchestrator(Dependencies{})
	assert.Error(t, err)
	_, err = NewOrchestrator(Dependencies{Classifier: fixed(domain.CategoryOther)})
	assert.Error(t, err)
	_, err = NewOrchestrator(Dependencies{Classifier: fixed(domain.CategoryOther), Prioritizer: policy.PolicyPrioritizer{}})
	assert.Error(t, err)
}

func TestProcessBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	payloads := []json.RawMessage{
		json.RawMessage(supportAPIPayload),
		json.RawMessage(`{"ticket_id": "bad"}`),
		json.RawMessage(brokenLoginPayload),
	}
	items := o.ProcessBatch(context.Background(), payloads)
	require.Len(t, items, 3)

	assert.NoError(t, items[0].Err)
	assert.Equal(t, domain.TicketID("SUP-002"), items[0].Result.TicketID)

	assert.True(t, ingest.IsValidationError(items[1].Err))
	assert.Nil(t, items[1].Result)

	assert.NoError(t, items[2].Err)
	assert.Equal(t, domain.TeamAccount, items[2].Result.RouteTo)

	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}
}

func TestProcessBatchRunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := classifier.Func(func(context.Context, string, string) (domain.Category, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return domain.CategoryOther, nil
	})
	o := newTestOrchestrator(t, slow, func(d *Dependencies) { d.BatchConcurrency = 2 })

	payloads := make([]json.RawMessage, 4)
	for i := range payloads {
		payloads[i] = json.RawMessage(supportAPIPayload)
	}
	items := o.ProcessBatch(context.Background(), payloads)
	for _, item := range items {
		require.NoError(t, item.Err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestProcessBatchHooksGateAndObserveEachTicket(t *testing.T) {
	o := newTestOrchestrator(t, fixed(domain.CategoryTechnical))
	payloads := []json.RawMessage{
		json.RawMessage(supportAPIPayload),
		json.RawMessage(supportAPIPayload),
		json.RawMessage(supportAPIPayload),
	}
	gateErr := errors.New("gate closed")
	var observed atomic.Int32

	items := o.ProcessBatchWithHooks(context.Background(), payloads, BatchHooks{
		Before: func(_ context.Context, index int) error {
			if index == 1 {
				return gateErr
			}
			return nil
		},
		After: func(_ context.Context, _ BatchItem) {
			observed.Add(1)
		},
	})

	require.Len(t, items, 3)
	assert.NotNil(t, items[0].Result)
	assert.Nil(t, items[1].Result)
	assert.ErrorIs(t, items[1].Err, gateErr)
	assert.NotNil(t, items[2].Result)
	assert.Equal(t, int32(3), observed.Load())
}
