package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// OutboxRepository reads SLA notifications committed with a state change but
// not yet handed to the dispatcher.
type OutboxRepository interface {
	ListPending(ctx context.Context, limit int) ([]domain.NotificationEvent, error)
	MarkDispatched(ctx context.Context, ids []string, at time.Time) error
}

type outboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository builds repository.
func NewOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &outboxRepository{pool: pool}
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]domain.NotificationEvent, error) {
	const query = `
        SELECT id, ticket_id, entity_id, dimension, kind, due_at, occurred_at
        FROM sla_notifications WHERE dispatched_at IS NULL
        ORDER BY occurred_at ASC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.NotificationEvent
	for rows.Next() {
		var event domain.NotificationEvent
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.EntityID,
			&event.Dimension,
			&event.Kind,
			&event.DueAt,
			&event.OccurredAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func (r *outboxRepository) MarkDispatched(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE sla_notifications SET dispatched_at=$1 WHERE id = ANY($2) AND dispatched_at IS NULL`
	_, err := r.pool.Exec(ctx, query, at, ids)
	return err
}
