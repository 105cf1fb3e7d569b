package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSLAWarning  EventType = "sla_warning"
	EventSLABreach   EventType = "sla_breach"
	EventSLAEscalate EventType = "sla_escalate"
)

// Event represents a domain event handed to subscribers.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SLAPayload carries the SLA transition behind an sla_* event.
type SLAPayload struct {
	EntityID  string           `json:"entity_id"`
	Dimension domain.Dimension `json:"dimension"`
	Kind      domain.EventKind `json:"kind"`
	DueAt     time.Time        `json:"due_at"`
}

// TypeForKind maps an SLA event kind to its event type.
func TypeForKind(kind domain.EventKind) (EventType, bool) {
	switch kind {
	case domain.EventKindWarning:
		return EventSLAWarning, true
	case domain.EventKindBreach:
		return EventSLABreach, true
	case domain.EventKindEscalate:
		return EventSLAEscalate, true
	default:
		return "", false
	}
}

// FromNotification converts a committed SLA notification into an event.
func FromNotification(n domain.NotificationEvent) (Event, bool) {
	eventType, ok := TypeForKind(n.Kind)
	if !ok {
		return Event{}, false
	}
	return Event{
		ID:        n.ID,
		Type:      eventType,
		TicketID:  n.TicketID,
		Timestamp: n.OccurredAt,
		Payload: SLAPayload{
			EntityID:  n.EntityID,
			Dimension: n.Dimension,
			Kind:      n.Kind,
			DueAt:     n.DueAt,
		},
	}, true
}

// ToNotification recovers the SLA notification carried by an sla_* event.
func ToNotification(event Event) (domain.NotificationEvent, bool) {
	payload, ok := event.Payload.(SLAPayload)
	if !ok {
		return domain.NotificationEvent{}, false
	}
	return domain.NotificationEvent{
		ID:         event.ID,
		TicketID:   event.TicketID,
		EntityID:   payload.EntityID,
		Dimension:  payload.Dimension,
		Kind:       payload.Kind,
		DueAt:      payload.DueAt,
		OccurredAt: event.Timestamp,
	}, true
}
