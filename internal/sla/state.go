package sla

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Leads are the warning lead times per dimension.
type Leads struct {
	Response   time.Duration
	Resolution time.Duration
}

// Transition is the outcome of classifying a ticket at one instant.
type Transition struct {
	State   domain.SLAState
	Events  []domain.NotificationEvent
	Changed bool
}

// Classify computes the next SLA state of a ticket. Breach flags only move
// forward and a breached status is kept; otherwise the status follows the
// dimensions still open, so it drops once a warned dimension is satisfied.
// Warnings and escalations fire once. Frozen tickets and satisfied dimensions
// are left untouched. Returned events carry no id.
func Classify(t *domain.Ticket, now time.Time, leads Leads) Transition {
	current := t.SLAState()
	if t.IsFrozen() || t.SLARuleID == nil {
		return Transition{State: current}
	}

	next := current
	var events []domain.NotificationEvent
	emit := func(dim domain.Dimension, kind domain.EventKind, due time.Time) {
		events = append(events, domain.NotificationEvent{
			TicketID:   t.ID,
			EntityID:   t.EntityID,
			Dimension:  dim,
			Kind:       kind,
			DueAt:      due,
			OccurredAt: now,
		})
	}

	if due := t.SLAResponseDue; due != nil && t.FirstResponseAt == nil && !next.ResponseBreached {
		switch {
		case !now.Before(*due):
			next.ResponseBreached = true
			emit(domain.DimensionResponse, domain.EventKindBreach, *due)
		case next.ResponseWarnedAt == nil && !now.Before(due.Add(-leads.Response)):
			at := now
			next.ResponseWarnedAt = &at
			emit(domain.DimensionResponse, domain.EventKindWarning, *due)
		}
	}

	if due := t.SLAResolutionDue; due != nil && !next.ResolutionBreached {
		switch {
		case !now.Before(*due):
			next.ResolutionBreached = true
			emit(domain.DimensionResolution, domain.EventKindBreach, *due)
		case next.ResolutionWarnedAt == nil && !now.Before(due.Add(-leads.Resolution)):
			at := now
			next.ResolutionWarnedAt = &at
			emit(domain.DimensionResolution, domain.EventKindWarning, *due)
		}
	}

	if due := t.SLAEscalationDue; due != nil && next.EscalatedAt == nil && !now.Before(*due) {
		at := now
		next.EscalatedAt = &at
		emit(domain.DimensionEscalation, domain.EventKindEscalate, *due)
	}

	next.Status = openStatus(t, next)
	if current.Status == domain.SLAStatusBreached {
		next.Status = domain.SLAStatusBreached
	}
	return Transition{
		State:   next,
		Events:  events,
		Changed: len(events) > 0 || next.Status != current.Status,
	}
}

// openStatus is the most severe status over dimensions still awaiting their event.
func openStatus(t *domain.Ticket, state domain.SLAState) domain.SLAStatus {
	status := domain.SLAStatusOnTrack
	if t.SLAResponseDue != nil && t.FirstResponseAt == nil {
		status = domain.MaxStatus(status, dimensionStatus(state.ResponseBreached, state.ResponseWarnedAt))
	}
	if t.SLAResolutionDue != nil {
		status = domain.MaxStatus(status, dimensionStatus(state.ResolutionBreached, state.ResolutionWarnedAt))
	}
	return status
}

func dimensionStatus(breached bool, warnedAt *time.Time) domain.SLAStatus {
	switch {
	case breached:
		return domain.SLAStatusBreached
	case warnedAt != nil:
		return domain.SLAStatusWarning
	default:
		return domain.SLAStatusOnTrack
	}
}

// ResponseState derives the response dimension state from persisted fields.
func ResponseState(t *domain.Ticket) domain.DimensionState {
	done := t.FirstResponseAt
	if done == nil {
		done = frozenAt(t)
	}
	return dimensionState(t.SLAResponseDue, done, t.SLAResponseBreached, t.SLAResponseWarnedAt)
}

// ResolutionState derives the resolution dimension state from persisted fields.
func ResolutionState(t *domain.Ticket) domain.DimensionState {
	return dimensionState(t.SLAResolutionDue, frozenAt(t), t.SLAResolutionBreached, t.SLAResolutionWarnedAt)
}

// frozenAt is when the ticket stopped being tracked. A ticket closed before
// the detector flagged a dimension counts that dimension as met.
func frozenAt(t *domain.Ticket) *time.Time {
	switch {
	case t.ResolvedAt != nil:
		return t.ResolvedAt
	case t.ClosedAt != nil:
		return t.ClosedAt
	case t.IsFrozen():
		return &t.UpdatedAt
	default:
		return nil
	}
}

func dimensionState(due, satisfiedAt *time.Time, breached bool, warnedAt *time.Time) domain.DimensionState {
	switch {
	case due == nil:
		return domain.DimensionStateNone
	case breached:
		return domain.DimensionStateBreached
	case satisfiedAt != nil:
		return domain.DimensionStateMet
	case warnedAt != nil:
		return domain.DimensionStateWarning
	default:
		return domain.DimensionStateOnTrack
	}
}
