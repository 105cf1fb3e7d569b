package domain

import "time"

// SLAStatus is the coarse per-ticket SLA status.
type SLAStatus string

const (
	SLAStatusOnTrack  SLAStatus = "on_track"
	SLAStatusWarning  SLAStatus = "warning"
	SLAStatusBreached SLAStatus = "breached"
)

// Severity orders statuses; unknown or empty values rank as on track.
func (s SLAStatus) Severity() int {
	switch s {
	case SLAStatusWarning:
		return 1
	case SLAStatusBreached:
		return 2
	default:
		return 0
	}
}

// MaxStatus returns the more severe of two statuses.
func MaxStatus(a, b SLAStatus) SLAStatus {
	if b.Severity() > a.Severity() {
		return b
	}
	if a == "" {
		return SLAStatusOnTrack
	}
	return a
}

// Dimension names an independently tracked SLA deadline.
type Dimension string

const (
	DimensionResponse   Dimension = "response"
	DimensionResolution Dimension = "resolution"
	DimensionEscalation Dimension = "escalation"
)

// EventKind identifies the notification emitted for a transition.
type EventKind string

const (
	EventKindWarning  EventKind = "warning"
	EventKindBreach   EventKind = "breach"
	EventKindEscalate EventKind = "escalate"
)

// DimensionState is the derived state of one dimension.
type DimensionState string

const (
	DimensionStateNone     DimensionState = "none"
	DimensionStateOnTrack  DimensionState = "on_track"
	DimensionStateWarning  DimensionState = "warning"
	DimensionStateBreached DimensionState = "breached"
	DimensionStateMet      DimensionState = "met"
)

// SLAState holds the SLA fields written only by the detector.
type SLAState struct {
	ResponseBreached   bool
	ResolutionBreached bool
	Status             SLAStatus
	ResponseWarnedAt   *time.Time
	ResolutionWarnedAt *time.Time
	EscalatedAt        *time.Time
}

// DueDates is the output of the due date calculator. A nil RuleID means no SLA applies.
type DueDates struct {
	RuleID      *string
	Response    *time.Time
	Resolution  *time.Time
	Escalation  *time.Time
	NeedsReview bool
}

// NotificationEvent is handed to the dispatcher after a committed transition.
type NotificationEvent struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	EntityID   string    `json:"entity_id"`
	Dimension  Dimension `json:"dimension"`
	Kind       EventKind `json:"kind"`
	DueAt      time.Time `json:"due_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DedupKey identifies the logical alert a human should see at most once.
func (e NotificationEvent) DedupKey() string {
	return e.TicketID + ":" + string(e.Dimension) + ":" + string(e.Kind)
}

// SLAStateUpdate is the atomic unit persisted by the detector: new flags plus
// the events that describe the transition.
type SLAStateUpdate struct {
	State  SLAState
	Events []NotificationEvent
}

// SLASummary is the dashboard aggregate for one entity.
type SLASummary struct {
	EntityID         string `json:"entity_id"`
	BreachedCount    int    `json:"breached_count"`
	ApproachingCount int    `json:"approaching_count"`
	ActiveTickets    int    `json:"active_tickets"`
}

// DimensionReport describes one dimension for a single ticket.
type DimensionReport struct {
	State DimensionState `json:"state"`
	DueAt *time.Time     `json:"due_at,omitempty"`
}

// TicketSLAReport is the per-ticket SLA status view.
type TicketSLAReport struct {
	TicketID      string          `json:"ticket_id"`
	EntityID      string          `json:"entity_id"`
	HasSLA        bool            `json:"has_sla"`
	RuleID        *string         `json:"rule_id,omitempty"`
	Status        SLAStatus       `json:"status"`
	Response      DimensionReport `json:"response"`
	Resolution    DimensionReport `json:"resolution"`
	EscalationDue *time.Time      `json:"escalation_due,omitempty"`
	EscalatedAt   *time.Time      `json:"escalated_at,omitempty"`
	NeedsReview   bool            `json:"needs_review"`
}

// ComplianceReport aggregates SLA compliance over a creation window.
type ComplianceReport struct {
	EntityID             string    `json:"entity_id"`
	From                 time.Time `json:"from"`
	To                   time.Time `json:"to"`
	TotalTickets         int       `json:"total_tickets"`
	ResponseCompliance   float64   `json:"response_compliance"`
	ResolutionCompliance float64   `json:"resolution_compliance"`
}

// ComplianceCounts are the raw counts behind a ComplianceReport.
type ComplianceCounts struct {
	Total               int
	ResponseCompliant   int
	ResolutionCompliant int
}
