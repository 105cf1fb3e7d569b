package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketHistoryRepository reads audit entries written alongside SLA changes.
type TicketHistoryRepository interface {
	ListByTicket(ctx context.Context, ticketID string, changeTypes ...domain.TicketChangeType) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func insertHistory(ctx context.Context, tx pgx.Tx, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_type, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return tx.QueryRow(ctx, query,
		history.TicketID,
		history.ChangedByType,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

// ListByTicket returns entries oldest first, optionally filtered by change type.
func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string, changeTypes ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	query := `
        SELECT id, ticket_id, changed_by_type, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=$1`
	args := []any{ticketID}
	if len(changeTypes) > 0 {
		types := make([]string, len(changeTypes))
		for i, ct := range changeTypes {
			types[i] = string(ct)
		}
		args = append(args, types)
		query += ` AND change_type = ANY($2)`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.ChangedByType,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
