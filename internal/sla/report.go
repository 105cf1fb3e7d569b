package sla

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

var (
	// ErrInvalidWindow is returned for reporting windows that end before they start.
	ErrInvalidWindow = errors.New("sla: reporting window ends before it starts")
	// ErrMetricNotReady is returned when the event a metric measures has not happened.
	ErrMetricNotReady = errors.New("sla: metric event has not occurred")
	// ErrUnknownMetricType is returned for metric types other than response and resolution.
	ErrUnknownMetricType = errors.New("sla: unknown metric type")
)

// Summary aggregates the current SLA state of an entity's open tickets. A
// dimension past its due instant counts as breached even before the detector
// flags it.
func (e *Engine) Summary(ctx context.Context, entityID string) (domain.SLASummary, error) {
	tickets, err := e.tickets.ListOpenByEntity(ctx, entityID)
	if err != nil {
		return domain.SLASummary{}, fmt.Errorf("list open tickets for entity %s: %w", entityID, err)
	}

	summary := domain.SLASummary{EntityID: entityID}
	now := e.clock.Now()
	cache := NewRuleCache()
	for i := range tickets {
		t := &tickets[i]
		if t.SLARuleID == nil || t.IsFrozen() {
			continue
		}
		summary.ActiveTickets++

		if t.SLAStatus == domain.SLAStatusBreached || overdue(t, now) {
			summary.BreachedCount++
			continue
		}
		if t.SLAStatus == domain.SLAStatusWarning || approaching(t, now, e.detector.LeadsFor(ctx, t, cache)) {
			summary.ApproachingCount++
		}
	}
	return summary, nil
}

func overdue(t *domain.Ticket, now time.Time) bool {
	if due := t.SLAResponseDue; due != nil && t.FirstResponseAt == nil && !now.Before(*due) {
		return true
	}
	due := t.SLAResolutionDue
	return due != nil && !now.Before(*due)
}

func approaching(t *domain.Ticket, now time.Time, leads Leads) bool {
	if due := t.SLAResponseDue; due != nil && t.FirstResponseAt == nil && !now.Before(due.Add(-leads.Response)) {
		return true
	}
	due := t.SLAResolutionDue
	return due != nil && !now.Before(due.Add(-leads.Resolution))
}

// TicketStatus reports the per-dimension SLA state of one ticket.
func (e *Engine) TicketStatus(ctx context.Context, ticketID string) (domain.TicketSLAReport, error) {
	t, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return domain.TicketSLAReport{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	report := domain.TicketSLAReport{
		TicketID:      t.ID,
		EntityID:      t.EntityID,
		HasSLA:        t.SLARuleID != nil,
		RuleID:        t.SLARuleID,
		Status:        domain.MaxStatus(t.SLAStatus, ""),
		Response:      domain.DimensionReport{State: ResponseState(t), DueAt: t.SLAResponseDue},
		Resolution:    domain.DimensionReport{State: ResolutionState(t), DueAt: t.SLAResolutionDue},
		EscalationDue: t.SLAEscalationDue,
		EscalatedAt:   t.SLAEscalatedAt,
		NeedsReview:   t.SLANeedsReview,
	}
	if !report.HasSLA {
		report.Response.State = domain.DimensionStateNone
		report.Resolution.State = domain.DimensionStateNone
	}
	return report, nil
}

// Compliance reports the share of tickets created in [from, to) that met
// their response and resolution SLAs, as percentages.
func (e *Engine) Compliance(ctx context.Context, entityID string, from, to time.Time) (domain.ComplianceReport, error) {
	if to.Before(from) {
		return domain.ComplianceReport{}, ErrInvalidWindow
	}
	counts, err := e.tickets.ComplianceCounts(ctx, entityID, from, to)
	if err != nil {
		return domain.ComplianceReport{}, fmt.Errorf("count compliance for entity %s: %w", entityID, err)
	}
	return domain.ComplianceReport{
		EntityID:             entityID,
		From:                 from,
		To:                   to,
		TotalTickets:         counts.Total,
		ResponseCompliance:   percentage(counts.ResponseCompliant, counts.Total),
		ResolutionCompliance: percentage(counts.ResolutionCompliant, counts.Total),
	}, nil
}

func percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

// RecordMetric writes the immutable audit metric for a ticket's first
// response or resolution. An existing metric is returned unchanged.
func (e *Engine) RecordMetric(ctx context.Context, ticketID string, metricType domain.MetricType) (*domain.ResponseMetric, error) {
	existing, err := e.metrics.GetByTicket(ctx, ticketID, metricType)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load %s metric for ticket %s: %w", metricType, ticketID, err)
	}

	t, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}

	var (
		end *time.Time
		due *time.Time
		dim domain.Dimension
	)
	switch metricType {
	case domain.MetricTypeResponse:
		end, due, dim = t.FirstResponseAt, t.SLAResponseDue, domain.DimensionResponse
	case domain.MetricTypeResolution:
		end, due, dim = t.ResolvedAt, t.SLAResolutionDue, domain.DimensionResolution
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetricType, metricType)
	}
	if end == nil {
		return nil, ErrMetricNotReady
	}

	metric := &domain.ResponseMetric{
		TicketID:        t.ID,
		MetricType:      metricType,
		StartTime:       t.CreatedAt,
		EndTime:         *end,
		DurationMinutes: int(end.Sub(t.CreatedAt).Minutes()),
		WithinSLA:       due == nil || !end.After(*due),
	}
	business := end.Sub(t.CreatedAt)

	if t.SLARuleID != nil {
		rule, err := NewRuleCache().get(ctx, e.rules, *t.SLARuleID)
		if err != nil {
			return nil, fmt.Errorf("load sla rule %s: %w", *t.SLARuleID, err)
		}
		if rule != nil {
			if budget := rule.DurationFor(dim); budget != nil {
				target := int(budget.Minutes())
				metric.SLATargetMinutes = &target
			}
			if rule.BusinessHoursOnly {
				cal, err := e.calendars.ForEntity(ctx, t.EntityID)
				if err != nil {
					return nil, fmt.Errorf("resolve calendar for entity %s: %w", t.EntityID, err)
				}
				business = cal.BusinessDurationBetween(t.CreatedAt, *end)
			}
		}
	}
	metric.BusinessDurationMinutes = int(business.Minutes())
	if metric.BusinessDurationMinutes < 0 {
		metric.BusinessDurationMinutes = 0
	}
	if metric.DurationMinutes < 0 {
		metric.DurationMinutes = 0
	}

	created, err := e.metrics.Create(ctx, metric)
	if err != nil {
		return nil, fmt.Errorf("store %s metric for ticket %s: %w", metricType, ticketID, err)
	}
	if !created {
		return e.metrics.GetByTicket(ctx, ticketID, metricType)
	}
	return metric, nil
}
