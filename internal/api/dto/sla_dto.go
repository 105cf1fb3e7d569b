package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// DueDatesResponse is returned after stamping a ticket's SLA.
type DueDatesResponse struct {
	TicketID      string     `json:"ticket_id"`
	HasSLA        bool       `json:"has_sla"`
	RuleID        *string    `json:"rule_id,omitempty"`
	ResponseDue   *time.Time `json:"response_due,omitempty"`
	ResolutionDue *time.Time `json:"resolution_due,omitempty"`
	EscalationDue *time.Time `json:"escalation_due,omitempty"`
	NeedsReview   bool       `json:"needs_review"`
}

// SLAEventResponse describes one transition committed by a check.
type SLAEventResponse struct {
	ID        string           `json:"id"`
	Dimension domain.Dimension `json:"dimension"`
	Kind      domain.EventKind `json:"kind"`
	DueAt     time.Time        `json:"due_at"`
}

// CheckResponse is returned by an on-demand detector run.
type CheckResponse struct {
	TicketID     string             `json:"ticket_id"`
	Changed      bool               `json:"changed"`
	Events       []SLAEventResponse `json:"events"`
	Conflicts    int                `json:"conflicts"`
	EmitFailures int                `json:"emit_failures"`
}

// HistoryEntryResponse is one SLA audit entry.
type HistoryEntryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value,omitempty"`
	NewValue   map[string]any          `json:"new_value,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// MetricResponse is an immutable response or resolution timing record.
type MetricResponse struct {
	TicketID                string            `json:"ticket_id"`
	MetricType              domain.MetricType `json:"metric_type"`
	StartTime               time.Time         `json:"start_time"`
	EndTime                 time.Time         `json:"end_time"`
	DurationMinutes         int               `json:"duration_minutes"`
	BusinessDurationMinutes int               `json:"business_duration_minutes"`
	SLATargetMinutes        *int              `json:"sla_target_minutes,omitempty"`
	WithinSLA               bool              `json:"within_sla"`
}

// NewDueDatesResponse maps stamped due dates.
func NewDueDatesResponse(ticketID string, due domain.DueDates) DueDatesResponse {
	return DueDatesResponse{
		TicketID:      ticketID,
		HasSLA:        due.RuleID != nil,
		RuleID:        due.RuleID,
		ResponseDue:   due.Response,
		ResolutionDue: due.Resolution,
		EscalationDue: due.Escalation,
		NeedsReview:   due.NeedsReview,
	}
}

// NewHistoryEntries maps audit rows.
func NewHistoryEntries(history []domain.TicketHistory) []HistoryEntryResponse {
	items := make([]HistoryEntryResponse, 0, len(history))
	for _, h := range history {
		items = append(items, HistoryEntryResponse{
			ID:         h.ID,
			ChangeType: h.ChangeType,
			OldValue:   h.OldValue,
			NewValue:   h.NewValue,
			CreatedAt:  h.CreatedAt,
		})
	}
	return items
}

// NewMetricResponse maps a stored metric.
func NewMetricResponse(m *domain.ResponseMetric) MetricResponse {
	return MetricResponse{
		TicketID:                m.TicketID,
		MetricType:              m.MetricType,
		StartTime:               m.StartTime,
		EndTime:                 m.EndTime,
		DurationMinutes:         m.DurationMinutes,
		BusinessDurationMinutes: m.BusinessDurationMinutes,
		SLATargetMinutes:        m.SLATargetMinutes,
		WithinSLA:               m.WithinSLA,
	}
}
