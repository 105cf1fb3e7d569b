package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketMessageRepository writes engine notes into ticket threads.
type TicketMessageRepository interface {
	// AddNote inserts msg unless a note with the same key exists; it reports
	// whether a row was written.
	AddNote(ctx context.Context, msg *domain.TicketMessage) (bool, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) AddNote(ctx context.Context, msg *domain.TicketMessage) (bool, error) {
	const query = `
        INSERT INTO ticket_messages (ticket_id, author_type, message_type, body, note_key)
        VALUES ($1,$2,$3,$4,NULLIF($5,''))
        ON CONFLICT (note_key) DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.AuthorType,
		msg.MessageType,
		msg.Body,
		msg.NoteKey,
	).Scan(&msg.ID, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
