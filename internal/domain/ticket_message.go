package domain

import "time"

// MessageAuthorType indicates who authored a thread entry or history row.
type MessageAuthorType string

// AuthorTypeSystem marks entries written by the engine rather than a person.
const AuthorTypeSystem MessageAuthorType = "SYSTEM"

// TicketMessageType differentiates thread entries.
type TicketMessageType string

const MessageTypeInternalNote TicketMessageType = "INTERNAL_NOTE"

// TicketMessage is an entry in a ticket thread. The engine only writes
// internal notes; NoteKey makes each note idempotent across redeliveries.
type TicketMessage struct {
	ID          string
	TicketID    string
	AuthorType  MessageAuthorType
	MessageType TicketMessageType
	Body        string
	NoteKey     string
	CreatedAt   time.Time
}

// NewSystemNote builds an internal note authored by the engine.
func NewSystemNote(ticketID, noteKey, body string) *TicketMessage {
	return &TicketMessage{
		TicketID:    ticketID,
		AuthorType:  AuthorTypeSystem,
		MessageType: MessageTypeInternalNote,
		Body:        body,
		NoteKey:     noteKey,
	}
}
