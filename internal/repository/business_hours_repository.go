package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// BusinessHoursRepository stores weekly calendar entries. Inactive rows are
// returned too; calendar resolution depends on their presence.
type BusinessHoursRepository interface {
	ListByEntity(ctx context.Context, entityID string) ([]domain.BusinessHoursEntry, error)
	ListGlobal(ctx context.Context) ([]domain.BusinessHoursEntry, error)
	Replace(ctx context.Context, entityID *string, entries []domain.BusinessHoursEntry) error
}

type businessHoursRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessHoursRepository builds repository.
func NewBusinessHoursRepository(pool *pgxpool.Pool) BusinessHoursRepository {
	return &businessHoursRepository{pool: pool}
}

const businessHoursColumns = `id, entity_id, day_of_week, start_time, end_time, is_active`

func (r *businessHoursRepository) ListByEntity(ctx context.Context, entityID string) ([]domain.BusinessHoursEntry, error) {
	query := `SELECT ` + businessHoursColumns + ` FROM business_hours
        WHERE entity_id=$1 ORDER BY day_of_week, start_time`
	return r.list(ctx, query, entityID)
}

func (r *businessHoursRepository) ListGlobal(ctx context.Context) ([]domain.BusinessHoursEntry, error) {
	query := `SELECT ` + businessHoursColumns + ` FROM business_hours
        WHERE entity_id IS NULL ORDER BY day_of_week, start_time`
	return r.list(ctx, query)
}

func (r *businessHoursRepository) list(ctx context.Context, query string, args ...any) ([]domain.BusinessHoursEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BusinessHoursEntry
	for rows.Next() {
		var entry domain.BusinessHoursEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.EntityID,
			&entry.DayOfWeek,
			&entry.StartTime,
			&entry.EndTime,
			&entry.IsActive,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Replace swaps the whole weekly calendar of an entity, or the global one
// when entityID is nil.
func (r *businessHoursRepository) Replace(ctx context.Context, entityID *string, entries []domain.BusinessHoursEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if entityID == nil {
			_, err = tx.Exec(ctx, `DELETE FROM business_hours WHERE entity_id IS NULL`)
		} else {
			_, err = tx.Exec(ctx, `DELETE FROM business_hours WHERE entity_id=$1`, *entityID)
		}
		if err != nil {
			return err
		}

		const insert = `
            INSERT INTO business_hours (entity_id, day_of_week, start_time, end_time, is_active)
            VALUES ($1,$2,$3,$4,$5)`
		for _, entry := range entries {
			if _, err := tx.Exec(ctx, insert,
				entityID,
				entry.DayOfWeek,
				entry.StartTime,
				entry.EndTime,
				entry.IsActive,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
