package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets. The set is open; only
// resolved and closed carry meaning for SLA tracking.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusOnHold     TicketStatus = "on_hold"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates SLA urgency. Rules may also use the wildcards
// PriorityAll and PriorityDefault.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityUrgent   TicketPriority = "urgent"
	TicketPriorityCritical TicketPriority = "critical"

	PriorityAll     TicketPriority = "all"
	PriorityDefault TicketPriority = "default"
)

// Normalize lower-cases and trims a priority for comparison.
func (p TicketPriority) Normalize() TicketPriority {
	return TicketPriority(strings.ToLower(strings.TrimSpace(string(p))))
}

// Ticket is the SLA-relevant slice of a support ticket.
type Ticket struct {
	ID         string
	EntityID   string
	Priority   TicketPriority
	Status     TicketStatus
	Category   string
	Attributes map[string]any

	SLARuleID        *string
	SLAResponseDue   *time.Time
	SLAResolutionDue *time.Time
	SLAEscalationDue *time.Time

	SLAResponseBreached   bool
	SLAResolutionBreached bool
	SLAStatus             SLAStatus
	SLAResponseWarnedAt   *time.Time
	SLAResolutionWarnedAt *time.Time
	SLAEscalatedAt        *time.Time
	SLANeedsReview        bool
	SLAVersion            int64

	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsFrozen reports whether the ticket is closed or resolved. Frozen tickets
// are never reclassified.
func (t *Ticket) IsFrozen() bool {
	if t.ClosedAt != nil || t.ResolvedAt != nil {
		return true
	}
	return t.Status == TicketStatusClosed || t.Status == TicketStatusResolved
}

// HasPendingSLA reports whether any deadline is still worth scanning.
func (t *Ticket) HasPendingSLA() bool {
	if t.SLARuleID == nil || t.IsFrozen() {
		return false
	}
	if t.SLAResponseDue != nil && !t.SLAResponseBreached && t.FirstResponseAt == nil {
		return true
	}
	if t.SLAResolutionDue != nil && !t.SLAResolutionBreached {
		return true
	}
	return t.SLAEscalationDue != nil && t.SLAEscalatedAt == nil
}

// ConditionAttributes flattens the fields SLA rule conditions may reference.
// Free-form attributes never shadow the typed columns.
func (t *Ticket) ConditionAttributes() map[string]any {
	attrs := make(map[string]any, len(t.Attributes)+4)
	for k, v := range t.Attributes {
		attrs[k] = v
	}
	attrs["entity_id"] = t.EntityID
	attrs["priority"] = string(t.Priority)
	attrs["status"] = string(t.Status)
	if t.Category != "" {
		attrs["category"] = t.Category
	}
	return attrs
}

// SLAState extracts the persisted SLA flags.
func (t *Ticket) SLAState() SLAState {
	return SLAState{
		ResponseBreached:   t.SLAResponseBreached,
		ResolutionBreached: t.SLAResolutionBreached,
		Status:             t.SLAStatus,
		ResponseWarnedAt:   t.SLAResponseWarnedAt,
		ResolutionWarnedAt: t.SLAResolutionWarnedAt,
		EscalatedAt:        t.SLAEscalatedAt,
	}
}

// ApplySLAState copies persisted SLA flags onto the ticket.
func (t *Ticket) ApplySLAState(state SLAState) {
	t.SLAResponseBreached = state.ResponseBreached
	t.SLAResolutionBreached = state.ResolutionBreached
	t.SLAStatus = state.Status
	t.SLAResponseWarnedAt = state.ResponseWarnedAt
	t.SLAResolutionWarnedAt = state.ResolutionWarnedAt
	t.SLAEscalatedAt = state.EscalatedAt
}

// ApplyDueDates copies computed due dates onto the ticket.
func (t *Ticket) ApplyDueDates(due DueDates) {
	t.SLARuleID = due.RuleID
	t.SLAResponseDue = due.Response
	t.SLAResolutionDue = due.Resolution
	t.SLAEscalationDue = due.Escalation
	t.SLANeedsReview = due.NeedsReview
}
