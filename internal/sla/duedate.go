package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// DueDateCalculator stamps response, resolution and escalation deadlines.
type DueDateCalculator struct {
	calendars CalendarProvider
	horizon   time.Duration
}

// NewDueDateCalculator builds a calculator backed by the given calendars.
// Wall-clock durations beyond horizon are capped to it; a non-positive
// horizon falls back to calendar.DefaultHorizon.
func NewDueDateCalculator(calendars CalendarProvider, horizon time.Duration) *DueDateCalculator {
	if horizon <= 0 {
		horizon = calendar.DefaultHorizon
	}
	return &DueDateCalculator{calendars: calendars, horizon: horizon}
}

// Compute derives due dates from the ticket creation instant and the rule.
// A nil rule yields empty due dates. Durations that are unset or not positive
// leave their dimension untracked. The result depends only on its inputs.
func (c *DueDateCalculator) Compute(ctx context.Context, ticket *domain.Ticket, rule *domain.SLARule) (domain.DueDates, error) {
	if rule == nil {
		return domain.DueDates{}, nil
	}

	ruleID := rule.ID
	due := domain.DueDates{RuleID: &ruleID}

	var cal *calendar.Calendar
	add := func(d *time.Duration) (*time.Time, error) {
		if d == nil || *d <= 0 {
			return nil, nil
		}
		if !rule.BusinessHoursOnly {
			span := *d
			if span > c.horizon {
				span = c.horizon
				due.NeedsReview = true
			}
			at := ticket.CreatedAt.Add(span)
			return &at, nil
		}
		if cal == nil {
			var err error
			if cal, err = c.calendars.ForEntity(ctx, ticket.EntityID); err != nil {
				return nil, fmt.Errorf("resolve calendar for entity %s: %w", ticket.EntityID, err)
			}
		}
		at, capped := cal.AddBusinessDuration(ticket.CreatedAt, *d)
		if capped {
			due.NeedsReview = true
		}
		return &at, nil
	}

	var err error
	if due.Response, err = add(rule.ResponseTime); err != nil {
		return domain.DueDates{}, err
	}
	if due.Resolution, err = add(rule.ResolutionTime); err != nil {
		return domain.DueDates{}, err
	}
	if due.Escalation, err = add(rule.EscalationTime); err != nil {
		return domain.DueDates{}, err
	}
	return due, nil
}
