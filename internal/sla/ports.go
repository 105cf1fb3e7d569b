package sla

import (
	"context"
	"time"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketStore is the slice of ticket persistence the engine needs.
// UpdateSLAState and StampDueDates return false when expectedVersion no longer
// matches the stored row.
type TicketStore interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListOpenWithPendingSLA(ctx context.Context) ([]domain.Ticket, error)
	ListOpenByEntity(ctx context.Context, entityID string) ([]domain.Ticket, error)
	UpdateSLAState(ctx context.Context, ticketID string, update domain.SLAStateUpdate, expectedVersion int64) (bool, error)
	StampDueDates(ctx context.Context, ticketID string, due domain.DueDates, expectedVersion int64) (bool, error)
	ComplianceCounts(ctx context.Context, entityID string, from, to time.Time) (domain.ComplianceCounts, error)
}

// RuleSource lists SLA rules. ListApplicable returns the active rules of the
// entity plus the active global rules; GetByID also returns inactive rules.
type RuleSource interface {
	ListApplicable(ctx context.Context, entityID string) ([]domain.SLARule, error)
	GetByID(ctx context.Context, id string) (*domain.SLARule, error)
}

// CalendarProvider resolves an entity's business-hours calendar.
type CalendarProvider interface {
	ForEntity(ctx context.Context, entityID string) (*calendar.Calendar, error)
}

// CalendarInvalidator is implemented by calendar providers that cache.
type CalendarInvalidator interface {
	Invalidate(entityID string)
}

// Outbox exposes committed notification events that were not yet handed off.
type Outbox interface {
	ListPending(ctx context.Context, limit int) ([]domain.NotificationEvent, error)
	MarkDispatched(ctx context.Context, ids []string, at time.Time) error
}

// Emitter hands a committed event to the notification dispatcher.
type Emitter interface {
	Emit(ctx context.Context, event domain.NotificationEvent) error
}

// MetricStore persists immutable response metrics. Create reports false when
// a metric of the same type already exists for the ticket.
type MetricStore interface {
	Create(ctx context.Context, metric *domain.ResponseMetric) (bool, error)
	GetByTicket(ctx context.Context, ticketID string, metricType domain.MetricType) (*domain.ResponseMetric, error)
}
