package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeSLAStatus   TicketChangeType = "SLA_STATUS_CHANGE"
	ChangeTypeSLADueDates TicketChangeType = "SLA_DUE_DATES"
)

// TicketHistory is an immutable audit row. Values are JSON snapshots of the
// SLA slice before and after the change.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType MessageAuthorType
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}

// NewSystemHistory records an engine-made change.
func NewSystemHistory(ticketID string, change TicketChangeType, oldValue, newValue map[string]any) *TicketHistory {
	return &TicketHistory{
		TicketID:      ticketID,
		ChangedByType: AuthorTypeSystem,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
}
