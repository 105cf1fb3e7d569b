package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/sla"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// SLAEngine is the engine surface exposed over HTTP.
type SLAEngine interface {
	Summary(ctx context.Context, entityID string) (domain.SLASummary, error)
	Compliance(ctx context.Context, entityID string, from, to time.Time) (domain.ComplianceReport, error)
	TicketStatus(ctx context.Context, ticketID string) (domain.TicketSLAReport, error)
	CheckTicket(ctx context.Context, ticketID string) (sla.CheckResult, error)
	ApplySLA(ctx context.Context, ticketID string) (domain.DueDates, error)
	OnPriorityChanged(ctx context.Context, ticketID string) (domain.DueDates, error)
	ReloadCalendar(entityID string) bool
	RecordMetric(ctx context.Context, ticketID string, metricType domain.MetricType) (*domain.ResponseMetric, error)
	Monitoring() sla.MonitoringSnapshot
}

// SLAHandler serves SLA reports and on-demand checks.
type SLAHandler struct {
	engine  SLAEngine
	history repository.TicketHistoryRepository
}

// NewSLAHandler constructs handler.
func NewSLAHandler(engine SLAEngine, history repository.TicketHistoryRepository) *SLAHandler {
	return &SLAHandler{engine: engine, history: history}
}

// Summary GET /entities/:id/sla/summary.
func (h *SLAHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.engine.Summary(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapSLAError(err, "entity")
	}
	return c.JSON(fiber.Map{"data": summary})
}

// Compliance GET /entities/:id/sla/compliance?from=&to=.
// The window defaults to the last 30 days.
func (h *SLAHandler) Compliance(c *fiber.Ctx) error {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = parseTimeParam(raw); err != nil {
			return apperrors.NewValidationError("invalid from", map[string]any{"from": raw})
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = parseTimeParam(raw); err != nil {
			return apperrors.NewValidationError("invalid to", map[string]any{"to": raw})
		}
	}

	report, err := h.engine.Compliance(c.UserContext(), c.Params("id"), from, to)
	if err != nil {
		return mapSLAError(err, "entity")
	}
	return c.JSON(fiber.Map{"data": report})
}

// TicketStatus GET /tickets/:id/sla.
func (h *SLAHandler) TicketStatus(c *fiber.Ctx) error {
	report, err := h.scopedTicket(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// History GET /tickets/:id/sla/history.
func (h *SLAHandler) History(c *fiber.Ctx) error {
	report, err := h.scopedTicket(c)
	if err != nil {
		return err
	}
	history, err := h.history.ListByTicket(c.UserContext(), report.TicketID, domain.ChangeTypeSLADueDates, domain.ChangeTypeSLAStatus)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryEntries(history)})
}

// Check POST /tickets/:id/sla/check.
func (h *SLAHandler) Check(c *fiber.Ctx) error {
	result, err := h.engine.CheckTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapSLAError(err, "ticket")
	}
	resp := dto.CheckResponse{
		TicketID:     c.Params("id"),
		Changed:      result.Committed,
		Events:       make([]dto.SLAEventResponse, 0, len(result.Events)),
		Conflicts:    result.Conflicts,
		EmitFailures: result.EmitFailures,
	}
	for _, ev := range result.Events {
		resp.Events = append(resp.Events, dto.SLAEventResponse{ID: ev.ID, Dimension: ev.Dimension, Kind: ev.Kind, DueAt: ev.DueAt})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Apply POST /tickets/:id/sla/apply.
func (h *SLAHandler) Apply(c *fiber.Ctx) error {
	due, err := h.engine.ApplySLA(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapSLAError(err, "ticket")
	}
	return c.JSON(fiber.Map{"data": dto.NewDueDatesResponse(c.Params("id"), due)})
}

// Reprioritize POST /tickets/:id/sla/reprioritize. Called by the ticket
// workflow after a priority edit.
func (h *SLAHandler) Reprioritize(c *fiber.Ctx) error {
	due, err := h.engine.OnPriorityChanged(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapSLAError(err, "ticket")
	}
	return c.JSON(fiber.Map{"data": dto.NewDueDatesResponse(c.Params("id"), due)})
}

// ReloadCalendar POST /entities/:id/sla/calendar/reload.
func (h *SLAHandler) ReloadCalendar(c *fiber.Ctx) error {
	reloaded := h.engine.ReloadCalendar(c.Params("id"))
	return c.JSON(fiber.Map{"data": fiber.Map{"entity_id": c.Params("id"), "reloaded": reloaded}})
}

// RecordMetric POST /tickets/:id/sla/metrics/:type.
func (h *SLAHandler) RecordMetric(c *fiber.Ctx) error {
	metricType := domain.MetricType(c.Params("type"))
	metric, err := h.engine.RecordMetric(c.UserContext(), c.Params("id"), metricType)
	if err != nil {
		return mapSLAError(err, "ticket")
	}
	return c.JSON(fiber.Map{"data": dto.NewMetricResponse(metric)})
}

// Monitoring GET /sla/monitoring.
func (h *SLAHandler) Monitoring(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.engine.Monitoring()})
}

// scopedTicket loads the ticket report and enforces the caller's entity scope.
func (h *SLAHandler) scopedTicket(c *fiber.Ctx) (domain.TicketSLAReport, error) {
	report, err := h.engine.TicketStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return domain.TicketSLAReport{}, mapSLAError(err, "ticket")
	}
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || !principal.CanAccessEntity(report.EntityID) {
		// Out-of-scope tickets look missing.
		return domain.TicketSLAReport{}, apperrors.NewNotFound("ticket", nil)
	}
	return report, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func mapSLAError(err error, resource string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, sla.ErrDueDatesFrozen):
		return apperrors.NewConflict("sla due dates are frozen after the first response", nil)
	case errors.Is(err, sla.ErrConflict):
		return apperrors.NewConflict("ticket changed concurrently, retry later", nil)
	case errors.Is(err, sla.ErrInvalidWindow):
		return apperrors.NewValidationError("to must not be before from", nil)
	case errors.Is(err, sla.ErrMetricNotReady):
		return apperrors.NewConflict("metric event has not happened yet", nil)
	case errors.Is(err, sla.ErrUnknownMetricType):
		return apperrors.NewValidationError("metric type must be response or resolution", nil)
	default:
		return err
	}
}
