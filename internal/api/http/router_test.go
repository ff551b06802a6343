package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/pipeline"
	"github.com/spec-kit/ticket-triage/internal/policy"
	"github.com/spec-kit/ticket-triage/internal/service"
)

const apiTicket = `{
	"ticket_id": "SUP-002",
	"customer_tier": "enterprise",
	"subject": "API 500 errors",
	"message": "Our production system has been failing since the last integration update. The API returns 500 every few minutes.",
	"previous_tickets": 3,
	"monthly_revenue": 5000,
	"account_age_days": 450
}`

func newTestApp(t *testing.T, authEnabled bool) *fiber.App {
	t.Helper()
	rules, err := classifier.NewRuleClassifier()
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	orchestrator, err := pipeline.NewOrchestrator(pipeline.Dependencies{
		Classifier:   rules,
		Prioritizer:  policy.PolicyPrioritizer{},
		Router:       policy.TableRouter{},
		StageTimeout: time.Second,
		Metrics:      metrics,
	})
	require.NoError(t, err)

	hash, err := auth.HashSecret("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	authService := service.NewAuthService(config.Config{Auth: config.AuthConfig{
		Enabled:               authEnabled,
		JWTSecret:             "router-test",
		AccessTokenTTLMinutes: 5,
		ClientID:              "ops",
		ClientSecretHash:      hash,
	}})
	triageService := service.NewTriageService(service.TriageDependencies{Pipeline: orchestrator})

	app := fiber.New()
	logger := zap.NewNop()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-triage", "test", handlers.HealthDependencies{Provider: "none"}),
		Auth:           handlers.NewAuthHandler(authService),
		Triage:         handlers.NewTriageHandler(triageService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), authService.Enabled()),
		Metrics:        metrics,
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, body, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestTriageEndpoint(t *testing.T) {
	app := newTestApp(t, false)

	status, body := doJSON(t, app, fiber.MethodPost, "/v1/triage", apiTicket, "")
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "SUP-002", data["TicketID"])
	assert.Equal(t, "Technical", data["Category"])
	assert.Equal(t, "High", data["Priority"])
	assert.Equal(t, "Tech_Senior_Team", data["RouteTo"])
	assert.Equal(t, float64(4), data["sla_hours"])
}

func TestTriageEndpointRejectsInvalidTicket(t *testing.T) {
	app := newTestApp(t, false)

	status, body := doJSON(t, app, fiber.MethodPost, "/v1/triage", `{"subject": "hi"}`, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", errBody["code"])
	assert.Equal(t, "Give valid ticket", errBody["message"])
}

func TestBatchEndpoint(t *testing.T) {
	app := newTestApp(t, false)

	status, body := doJSON(t, app, fiber.MethodPost, "/v1/triage/batch", "["+apiTicket+`, {"ticket_id": 7}]`, "")
	require.Equal(t, fiber.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 2)
	assert.NotNil(t, items[0].(map[string]any)["data"])
	assert.Equal(t, "VALIDATION_FAILED", items[1].(map[string]any)["error"].(map[string]any)["code"])

	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["complete"])
	assert.Equal(t, float64(1), summary["rejected"])
}

func TestRouteAndPriorityEndpoints(t *testing.T) {
	app := newTestApp(t, false)

	status, body := doJSON(t, app, fiber.MethodPost, "/v1/route", `{"ticket_id": "T-9", "category": "Bug Report", "priority": "High"}`, "")
	require.Equal(t, fiber.StatusOK, status)
	route := body["data"].(map[string]any)
	assert.Equal(t, "Engineering_Critical_Bugs_Queue", route["routed_team"])
	assert.Equal(t, "Escalate to on-call engineer", route["escalation_path"])
	assert.Nil(t, route["sla_hours"])

	status, body = doJSON(t, app, fiber.MethodPost, "/v1/priority", `{"ticket_id": 5, "customer_tier": "free", "account_age_days": 101}`, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Medium", body["data"].(map[string]any)["priority"])

	status, _ = doJSON(t, app, fiber.MethodPost, "/v1/priority", `{"ticket_id": 5, "customer_tier": "gold", "account_age_days": 1}`, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestDecisionLookupWithoutStore(t *testing.T) {
	app := newTestApp(t, false)

	status, body := doJSON(t, app, fiber.MethodGet, "/v1/triage/SUP-002", "", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["error"].(map[string]any)["code"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t, true)

	status, body := doJSON(t, app, fiber.MethodPost, "/v1/triage", apiTicket, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])

	status, body = doJSON(t, app, fiber.MethodPost, "/auth/token", `{"client_id": "ops", "client_secret": "s3cret"}`, "")
	require.Equal(t, fiber.StatusOK, status)
	token := body["data"].(map[string]any)["access_token"].(string)

	status, _ = doJSON(t, app, fiber.MethodPost, "/v1/triage", apiTicket, token)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = doJSON(t, app, fiber.MethodPost, "/auth/token", `{"client_id": "ops", "client_secret": "nope"}`, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, false)

	status, body := doJSON(t, app, fiber.MethodGet, "/health/ready", "", "")
	require.Equal(t, fiber.StatusOK, status)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "disabled", deps["postgres"])
	assert.Equal(t, "disabled", deps["nats"])

	doJSON(t, app, fiber.MethodPost, "/v1/triage", apiTicket, "")
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "triage_results_total")
}
