package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// Metrics records pipeline, model and HTTP measurements on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration  *prometheus.HistogramVec
	stageTotal     *prometheus.CounterVec
	triageTotal    *prometheus.CounterVec
	llmRequests    *prometheus.CounterVec
	llmTokens      *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpErrors     *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	budgetRejected prometheus.Counter
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		stageTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_stage_total",
				Help: "Pipeline stage executions by outcome",
			},
			[]string{"stage", "status"},
		),
		triageTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_results_total",
				Help: "Triaged tickets by category, priority, team and status",
			},
			[]string{"category", "priority", "team", "status"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_llm_requests_total",
				Help: "Model requests by model and status",
			},
			[]string{"model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_llm_tokens_total",
				Help: "Estimated model tokens by model and direction",
			},
			[]string{"model", "type"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_llm_request_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"path", "method", "status"},
		),
		httpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_errors_total",
				Help: "HTTP error responses by route, method and error code",
			},
			[]string{"path", "method", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		budgetRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "triage_budget_rejections_total",
			Help: "Requests rejected because the daily model budget was spent",
		}),
	}
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records one pipeline stage execution.
func (m *Metrics) ObserveStage(stage domain.Stage, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
	m.stageTotal.WithLabelValues(string(stage), statusLabel(success)).Inc()
}

// ObserveResult records the final shape of a triage record.
func (m *Metrics) ObserveResult(result *domain.TriageResult) {
	if m == nil || result == nil {
		return
	}
	m.triageTotal.WithLabelValues(
		string(result.Category),
		string(result.Priority),
		string(result.RouteTo),
		string(result.Status),
	).Inc()
}

// ObserveLLMRequest records a model call.
func (m *Metrics) ObserveLLMRequest(model string, success bool, promptTokens, completionTokens int, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(model, statusLabel(success)).Inc()
	m.llmDuration.WithLabelValues(model).Observe(duration.Seconds())
	m.llmTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	if success {
		m.llmTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(path, method, code).Inc()
}

// RecordBudgetRejection counts a request refused by the daily budget.
func (m *Metrics) RecordBudgetRejection() {
	if m == nil {
		return
	}
	m.budgetRejected.Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
