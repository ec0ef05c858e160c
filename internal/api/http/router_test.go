package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-ticket-service/internal/auth"
	"github.com/spec-kit/sla-ticket-service/internal/config"
	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/integration"
	"github.com/spec-kit/sla-ticket-service/internal/observability"
	"github.com/spec-kit/sla-ticket-service/internal/persistence"
	"github.com/spec-kit/sla-ticket-service/internal/repository/sqlitestore"
	"github.com/spec-kit/sla-ticket-service/internal/scheduler"
	"github.com/spec-kit/sla-ticket-service/internal/service"
	"github.com/spec-kit/sla-ticket-service/internal/sla"
)

type testServer struct {
	app   *fiber.App
	agent string
	admin string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	db, err := persistence.NewSQLite(context.Background(), config.SQLiteConfig{Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	stores := sqlitestore.New(db.DB)

	calculator := sla.NewCalculator(sla.DefaultPolicy(config.SLAConfig{
		CriticalResponseMinutes: 15, HighResponseMinutes: 60, MediumResponseMinutes: 240, LowResponseMinutes: 1440,
		CriticalResolutionHours: 4, HighResolutionHours: 8, MediumResolutionHours: 24, LowResolutionHours: 72,
	}))
	dispatcher := events.NewInMemoryDispatcher(logger)
	ticketSvc := service.NewTicketService(service.TicketDependencies{
		TicketRepo: stores.Tickets, CommentRepo: stores.Comments, HistoryRepo: stores.History,
		Calculator: calculator, Dispatcher: dispatcher, Logger: logger,
	})
	slaSvc := service.NewSLAService(service.SLADependencies{
		TicketRepo: stores.Tickets, PolicyRepo: stores.Policies, Calculator: calculator, Dispatcher: dispatcher, Logger: logger,
	})
	caseSvc := service.NewSupportCaseService(service.SupportCaseDependencies{
		TicketRepo: stores.Tickets, CommentRepo: stores.Comments, TicketService: ticketSvc, Client: integration.Disabled{}, Logger: logger,
	})
	healthSvc := service.NewHealthEventService(service.HealthEventDependencies{
		TicketRepo: stores.Tickets, CustomerRepo: stores.Customers, TicketService: ticketSvc, Client: integration.Disabled{}, Logger: logger,
	})
	sched := scheduler.New(scheduler.Options{Logger: logger})
	require.NoError(t, scheduler.RegisterDefaults(sched, config.SchedulerConfig{
		SLAScanInterval: time.Hour, CaseSyncInterval: time.Hour, HealthPollInterval: time.Hour,
	}, scheduler.Reconcilers{SLA: slaSvc, Cases: caseSvc, Health: healthSvc}))

	tokens := auth.NewTokenManager("test-secret", 10)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("sla-ticket-service", "test", map[string]handlers.Pinger{"store": db}),
		Tickets:        handlers.NewTicketsHandler(ticketSvc),
		SLA:            handlers.NewSLAHandler(slaSvc),
		Jobs:           handlers.NewJobsHandler(sched),
		Integrations:   handlers.NewIntegrationsHandler(caseSvc, healthSvc),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	agent, _, err := tokens.GenerateToken("agent-1", domain.RoleAgent)
	require.NoError(t, err)
	admin, _, err := tokens.GenerateToken("admin-1", domain.RoleAdmin)
	require.NoError(t, err)
	return &testServer{app: app, agent: agent, admin: admin}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/tickets", s.agent, map[string]any{
		"customer_id": "cust-1", "title": "API latency", "priority": "high",
	})
	require.Equal(t, nethttp.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	id := data["id"].(string)
	assert.Equal(t, "new", data["status"])
	due, err := time.Parse(time.RFC3339Nano, data["sla_due_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), due, 5*time.Second)

	status, body = s.do(t, nethttp.MethodPatch, "/api/v1/tickets/"+id, s.agent, map[string]any{"status": "resolved"})
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.NotNil(t, body["data"].(map[string]any)["resolved_at"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets?status=resolved", s.agent, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"].([]any), 1)

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/sla/violations", s.agent, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Empty(t, body["data"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets/"+id+"/comments", s.agent, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Empty(t, body["data"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets/"+id+"/history", s.agent, nil)
	require.Equal(t, nethttp.StatusOK, status)
	history := body["data"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "status_change", entry["change_type"])
	assert.Equal(t, "agent-1", entry["actor"])
	assert.Equal(t, "resolved", entry["new_value"])
}

func TestErrorEnvelope(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/tickets", s.agent, map[string]any{"title": "x"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets", s.agent, map[string]any{
		"customer_id": "c", "title": "x", "priority": "urgent",
	})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "UNKNOWN_PRIORITY", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets/missing", s.agent, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/integrations/support/cases/case-1/sync", s.agent, nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, status)
	assert.Equal(t, "EXTERNAL_UNAVAILABLE", errorCode(body))
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	update := map[string]any{"response_time_minutes": 10, "resolution_time_hours": 2}

	status, body := s.do(t, nethttp.MethodPut, "/api/v1/sla/config/critical", s.agent, update)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, nethttp.MethodPut, "/api/v1/sla/config/critical", s.admin, update)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.EqualValues(t, 10, body["data"].(map[string]any)["response_time_minutes"])

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets", s.agent, map[string]any{
		"customer_id": "c", "title": "x", "priority": "critical",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	due, err := time.Parse(time.RFC3339Nano, body["data"].(map[string]any)["sla_due_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), due, 5*time.Second)

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/jobs/unknown/run", s.admin, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/jobs/sla-scan/run", s.admin, nil)
	assert.Equal(t, nethttp.StatusAccepted, status)
}

func TestProbesAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, _ = s.do(t, nethttp.MethodGet, "/metrics", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, body = s.do(t, nethttp.MethodGet, "/nope", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}
