package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketRepository encapsulates the SLA slice of ticket persistence. Every
// SLA write is a compare-and-set on sla_version.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListOpenWithPendingSLA(ctx context.Context) ([]domain.Ticket, error)
	ListOpenByEntity(ctx context.Context, entityID string) ([]domain.Ticket, error)
	UpdateSLAState(ctx context.Context, ticketID string, update domain.SLAStateUpdate, expectedVersion int64) (bool, error)
	StampDueDates(ctx context.Context, ticketID string, due domain.DueDates, expectedVersion int64) (bool, error)
	ComplianceCounts(ctx context.Context, entityID string, from, to time.Time) (domain.ComplianceCounts, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        id, entity_id, priority, status, category, attributes,
        sla_rule_id, sla_response_due, sla_resolution_due, sla_escalation_due,
        sla_response_breached, sla_resolution_breached, sla_status,
        sla_response_warned_at, sla_resolution_warned_at, sla_escalated_at,
        sla_needs_review, sla_version,
        first_response_at, resolved_at, closed_at, created_at, updated_at`

const openTicketClause = `closed_at IS NULL AND resolved_at IS NULL AND status NOT IN ('resolved', 'closed')`

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.EntityID,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Category,
		&ticket.Attributes,
		&ticket.SLARuleID,
		&ticket.SLAResponseDue,
		&ticket.SLAResolutionDue,
		&ticket.SLAEscalationDue,
		&ticket.SLAResponseBreached,
		&ticket.SLAResolutionBreached,
		&ticket.SLAStatus,
		&ticket.SLAResponseWarnedAt,
		&ticket.SLAResolutionWarnedAt,
		&ticket.SLAEscalatedAt,
		&ticket.SLANeedsReview,
		&ticket.SLAVersion,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListOpenWithPendingSLA(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE sla_rule_id IS NOT NULL AND ` + openTicketClause + `
          AND (
            (sla_response_due IS NOT NULL AND NOT sla_response_breached AND first_response_at IS NULL)
            OR (sla_resolution_due IS NOT NULL AND NOT sla_resolution_breached)
            OR (sla_escalation_due IS NOT NULL AND sla_escalated_at IS NULL)
          )
        ORDER BY created_at ASC`
	return r.list(ctx, query)
}

func (r *ticketRepository) ListOpenByEntity(ctx context.Context, entityID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE entity_id=$1 AND ` + openTicketClause + `
        ORDER BY created_at ASC`
	return r.list(ctx, query, entityID)
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// lockForSLAWrite locks the row and reports whether expectedVersion still
// holds. A ticket that froze since it was read fails the check as well.
func lockForSLAWrite(ctx context.Context, tx pgx.Tx, ticketID string, expectedVersion int64) (*domain.Ticket, bool, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	current, err := scanTicket(tx.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, false, notFound(err)
	}
	return current, current.SLAVersion == expectedVersion, nil
}

func (r *ticketRepository) UpdateSLAState(ctx context.Context, ticketID string, update domain.SLAStateUpdate, expectedVersion int64) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, ok, err := lockForSLAWrite(ctx, tx, ticketID, expectedVersion)
		if err != nil || !ok || current.IsFrozen() {
			return err
		}

		state := update.State
		const updateQuery = `
            UPDATE tickets SET sla_response_breached=$1, sla_resolution_breached=$2, sla_status=$3,
                sla_response_warned_at=$4, sla_resolution_warned_at=$5, sla_escalated_at=$6,
                sla_version=sla_version+1, updated_at=NOW()
            WHERE id=$7`
		if _, err := tx.Exec(ctx, updateQuery,
			state.ResponseBreached,
			state.ResolutionBreached,
			state.Status,
			state.ResponseWarnedAt,
			state.ResolutionWarnedAt,
			state.EscalatedAt,
			ticketID,
		); err != nil {
			return err
		}

		if err := insertHistory(ctx, tx, domain.NewSystemHistory(ticketID, domain.ChangeTypeSLAStatus,
			stateSnapshot(current.SLAState(), nil),
			stateSnapshot(state, update.Events),
		)); err != nil {
			return err
		}

		const outboxQuery = `
            INSERT INTO sla_notifications (id, ticket_id, entity_id, dimension, kind, due_at, occurred_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
            ON CONFLICT (ticket_id, dimension, kind) DO NOTHING`
		for _, event := range update.Events {
			if _, err := tx.Exec(ctx, outboxQuery,
				event.ID,
				event.TicketID,
				event.EntityID,
				event.Dimension,
				event.Kind,
				event.DueAt,
				event.OccurredAt,
			); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *ticketRepository) StampDueDates(ctx context.Context, ticketID string, due domain.DueDates, expectedVersion int64) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, ok, err := lockForSLAWrite(ctx, tx, ticketID, expectedVersion)
		if err != nil || !ok {
			return err
		}

		const updateQuery = `
            UPDATE tickets SET sla_rule_id=$1, sla_response_due=$2, sla_resolution_due=$3,
                sla_escalation_due=$4, sla_needs_review=$5,
                sla_version=sla_version+1, updated_at=NOW()
            WHERE id=$6`
		if _, err := tx.Exec(ctx, updateQuery,
			due.RuleID,
			due.Response,
			due.Resolution,
			due.Escalation,
			due.NeedsReview,
			ticketID,
		); err != nil {
			return err
		}

		previous := domain.DueDates{
			RuleID:      current.SLARuleID,
			Response:    current.SLAResponseDue,
			Resolution:  current.SLAResolutionDue,
			Escalation:  current.SLAEscalationDue,
			NeedsReview: current.SLANeedsReview,
		}
		if err := insertHistory(ctx, tx, domain.NewSystemHistory(ticketID, domain.ChangeTypeSLADueDates,
			dueSnapshot(previous), dueSnapshot(due),
		)); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// complianceCountsQuery counts a dimension as met once its event happened and
// the detector never flagged it breached.
const complianceCountsQuery = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE NOT sla_response_breached AND first_response_at IS NOT NULL),
               COUNT(*) FILTER (WHERE NOT sla_resolution_breached AND resolved_at IS NOT NULL)
        FROM tickets
        WHERE entity_id=$1 AND sla_rule_id IS NOT NULL AND created_at >= $2 AND created_at < $3`

func (r *ticketRepository) ComplianceCounts(ctx context.Context, entityID string, from, to time.Time) (domain.ComplianceCounts, error) {
	var counts domain.ComplianceCounts
	if err := r.pool.QueryRow(ctx, complianceCountsQuery, entityID, from, to).Scan(
		&counts.Total,
		&counts.ResponseCompliant,
		&counts.ResolutionCompliant,
	); err != nil {
		return domain.ComplianceCounts{}, err
	}
	return counts, nil
}

func stateSnapshot(state domain.SLAState, events []domain.NotificationEvent) map[string]any {
	snapshot := map[string]any{
		"sla_status":              state.Status,
		"sla_response_breached":   state.ResponseBreached,
		"sla_resolution_breached": state.ResolutionBreached,
		"sla_escalated":           state.EscalatedAt != nil,
	}
	if len(events) > 0 {
		transitions := make([]string, 0, len(events))
		for _, event := range events {
			transitions = append(transitions, string(event.Dimension)+":"+string(event.Kind))
		}
		snapshot["transitions"] = transitions
	}
	return snapshot
}

func dueSnapshot(due domain.DueDates) map[string]any {
	return map[string]any{
		"sla_rule_id":        due.RuleID,
		"sla_response_due":   due.Response,
		"sla_resolution_due": due.Resolution,
		"sla_escalation_due": due.Escalation,
		"sla_needs_review":   due.NeedsReview,
	}
}
