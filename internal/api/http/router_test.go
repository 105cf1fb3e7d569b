package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/sla"
)

type fakeEngine struct {
	tickets    map[string]domain.TicketSLAReport
	applyErr   error
	complWin   [2]time.Time
	checkCalls int
	reloaded   []string
}

func (f *fakeEngine) Summary(_ context.Context, entityID string) (domain.SLASummary, error) {
	return domain.SLASummary{EntityID: entityID, BreachedCount: 2, ApproachingCount: 1, ActiveTickets: 5}, nil
}

func (f *fakeEngine) Compliance(_ context.Context, entityID string, from, to time.Time) (domain.ComplianceReport, error) {
	if to.Before(from) {
		return domain.ComplianceReport{}, sla.ErrInvalidWindow
	}
	f.complWin = [2]time.Time{from, to}
	return domain.ComplianceReport{EntityID: entityID, From: from, To: to, TotalTickets: 3, ResponseCompliance: 66.67}, nil
}

func (f *fakeEngine) TicketStatus(_ context.Context, ticketID string) (domain.TicketSLAReport, error) {
	report, ok := f.tickets[ticketID]
	if !ok {
		return domain.TicketSLAReport{}, domain.ErrNotFound
	}
	return report, nil
}

func (f *fakeEngine) CheckTicket(_ context.Context, ticketID string) (sla.CheckResult, error) {
	f.checkCalls++
	if _, ok := f.tickets[ticketID]; !ok {
		return sla.CheckResult{}, domain.ErrNotFound
	}
	return sla.CheckResult{TicketID: ticketID, Committed: true, Events: []domain.NotificationEvent{
		{ID: "ev-1", TicketID: ticketID, Dimension: domain.DimensionResponse, Kind: domain.EventKindBreach},
	}}, nil
}

func (f *fakeEngine) ApplySLA(_ context.Context, _ string) (domain.DueDates, error) {
	if f.applyErr != nil {
		return domain.DueDates{}, f.applyErr
	}
	rule := "rule-1"
	due := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	return domain.DueDates{RuleID: &rule, Response: &due}, nil
}

func (f *fakeEngine) OnPriorityChanged(ctx context.Context, ticketID string) (domain.DueDates, error) {
	return f.ApplySLA(ctx, ticketID)
}

func (f *fakeEngine) ReloadCalendar(entityID string) bool {
	f.reloaded = append(f.reloaded, entityID)
	return true
}

func (f *fakeEngine) RecordMetric(_ context.Context, ticketID string, metricType domain.MetricType) (*domain.ResponseMetric, error) {
	if metricType != domain.MetricTypeResponse && metricType != domain.MetricTypeResolution {
		return nil, sla.ErrUnknownMetricType
	}
	return &domain.ResponseMetric{TicketID: ticketID, MetricType: metricType, DurationMinutes: 42, WithinSLA: true}, nil
}

func (f *fakeEngine) Monitoring() sla.MonitoringSnapshot {
	return sla.MonitoringSnapshot{Scans: 7, TotalBreaches: 3}
}

type fakeHistory struct{}

func (fakeHistory) ListByTicket(_ context.Context, ticketID string, _ ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	return []domain.TicketHistory{{ID: "h1", TicketID: ticketID, ChangeType: domain.ChangeTypeSLAStatus}}, nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app    *fiber.App
	engine *fakeEngine
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	engine := &fakeEngine{tickets: map[string]domain.TicketSLAReport{
		"t-1": {TicketID: "t-1", EntityID: "ent-1", HasSLA: true, Status: domain.SLAStatusWarning},
		"t-2": {TicketID: "t-2", EntityID: "ent-2", HasSLA: true},
	}}
	tokens := auth.NewTokenManager("secret", "", time.Hour)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("sla-engine", "test", map[string]handlers.Pinger{
			"postgres": okPinger{},
			"redis":    okPinger{err: errors.New("redis down")},
		}),
		SLA:            handlers.NewSLAHandler(engine, fakeHistory{}),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, false),
		Gatherer:       registry,
	})
	return &testServer{app: app, engine: engine, tokens: tokens}
}

func (s *testServer) token(t *testing.T, role auth.Role, entityID string) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken("tester", role, entityID)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodGet, "/health/live", "")
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, nethttp.MethodGet, "/health/ready", "")
	assert.Equal(t, nethttp.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))
}

type snapshotSource struct{ snap sla.MonitoringSnapshot }

func (s snapshotSource) Monitoring() sla.MonitoringSnapshot { return s.snap }

func TestSchedulerProbe(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(now)
	recent := now.Add(-5 * time.Minute)
	stale := now.Add(-40 * time.Minute)

	probe := handlers.SchedulerProbe{Monitor: snapshotSource{}, MaxAge: 15 * time.Minute, Clock: clk}
	assert.NoError(t, probe.Ping(context.Background()), "no scan yet")

	probe.Monitor = snapshotSource{snap: sla.MonitoringSnapshot{LastCheckAt: &recent}}
	assert.NoError(t, probe.Ping(context.Background()))

	probe.Monitor = snapshotSource{snap: sla.MonitoringSnapshot{LastCheckAt: &stale}}
	err := probe.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40m0s")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, nethttp.MethodGet, "/health/live", "")

	resp, err := s.app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sla_engine_http_requests_total")
}

func TestSummaryRequiresAuthAndScope(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodGet, "/api/v1/entities/ent-1/sla/summary", "")
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	scoped := s.token(t, auth.RoleViewer, "ent-1")
	status, body = s.do(t, nethttp.MethodGet, "/api/v1/entities/ent-1/sla/summary", scoped)
	require.Equal(t, nethttp.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["breached_count"])
	assert.Equal(t, float64(1), data["approaching_count"])
	assert.Equal(t, float64(5), data["active_tickets"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/entities/ent-2/sla/summary", scoped)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestCompliance(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, auth.RoleAdmin, "")

	status, body := s.do(t, nethttp.MethodGet, "/api/v1/entities/ent-1/sla/compliance?from=2024-03-01&to=2024-04-01T00:00:00Z", token)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, float64(3), body["data"].(map[string]any)["total_tickets"])
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), s.engine.complWin[0])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/entities/ent-1/sla/compliance?from=yesterday", token)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/entities/ent-1/sla/compliance?from=2024-04-01&to=2024-03-01", token)
	assert.Equal(t, nethttp.StatusBadRequest, status)
}

func TestTicketStatusHidesOtherEntities(t *testing.T) {
	s := newTestServer(t)
	scoped := s.token(t, auth.RoleViewer, "ent-1")

	status, body := s.do(t, nethttp.MethodGet, "/api/v1/tickets/t-1/sla", scoped)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "warning", body["data"].(map[string]any)["status"])

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/tickets/t-2/sla", scoped)
	assert.Equal(t, nethttp.StatusNotFound, status)

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets/missing/sla", scoped)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets/t-1/sla/history", scoped)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"].([]any), 1)
}

func TestOperatorRoutes(t *testing.T) {
	s := newTestServer(t)
	viewer := s.token(t, auth.RoleViewer, "")
	service := s.token(t, auth.RoleService, "")

	status, _ := s.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/sla/check", viewer)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Zero(t, s.engine.checkCalls)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/sla/check", service)
	require.Equal(t, nethttp.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["changed"])
	assert.Len(t, data["events"].([]any), 1)

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/sla/apply", service)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "rule-1", body["data"].(map[string]any)["rule_id"])

	s.engine.applyErr = sla.ErrDueDatesFrozen
	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/sla/apply", service)
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/sla/reprioritize", service)
	assert.Equal(t, nethttp.StatusConflict, status, "frozen after first response")

	s.engine.applyErr = nil
	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/sla/reprioritize", service)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "rule-1", body["data"].(map[string]any)["rule_id"])

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/entities/ent-1/sla/calendar/reload", viewer)
	assert.Equal(t, nethttp.StatusForbidden, status)
	status, body = s.do(t, nethttp.MethodPost, "/api/v1/entities/ent-1/sla/calendar/reload", service)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["reloaded"])
	assert.Equal(t, []string{"ent-1"}, s.engine.reloaded)

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/sla/metrics/response", service)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, float64(42), body["data"].(map[string]any)["duration_minutes"])

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/sla/metrics/latency", service)
	assert.Equal(t, nethttp.StatusBadRequest, status)
}

func TestMonitoringAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t)
	agent := s.token(t, auth.RoleAgent, "")

	status, body := s.do(t, nethttp.MethodGet, "/api/v1/sla/monitoring", agent)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, float64(7), body["data"].(map[string]any)["scans"])

	status, body = s.do(t, nethttp.MethodGet, "/nowhere", "")
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}
