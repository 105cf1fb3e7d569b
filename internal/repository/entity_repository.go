package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EntityRepository manages tenant persistence.
type EntityRepository interface {
	Upsert(ctx context.Context, entity *domain.Entity) error
	GetByID(ctx context.Context, id string) (*domain.Entity, error)
	ListActive(ctx context.Context) ([]domain.Entity, error)
}

type entityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository builds the repository.
func NewEntityRepository(pool *pgxpool.Pool) EntityRepository {
	return &entityRepository{pool: pool}
}

func (r *entityRepository) Upsert(ctx context.Context, entity *domain.Entity) error {
	const query = `
        INSERT INTO entities (id, name, timezone, is_active)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, timezone=EXCLUDED.timezone,
            is_active=EXCLUDED.is_active, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		entity.ID,
		entity.Name,
		entity.Timezone,
		entity.IsActive,
	).Scan(&entity.CreatedAt, &entity.UpdatedAt)
}

func (r *entityRepository) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	const query = `
        SELECT id, name, timezone, is_active, created_at, updated_at
        FROM entities WHERE id=$1`
	var entity domain.Entity
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&entity.ID,
		&entity.Name,
		&entity.Timezone,
		&entity.IsActive,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &entity, nil
}

func (r *entityRepository) ListActive(ctx context.Context) ([]domain.Entity, error) {
	const query = `
        SELECT id, name, timezone, is_active, created_at, updated_at
        FROM entities WHERE is_active ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Entity
	for rows.Next() {
		var entity domain.Entity
		if err := rows.Scan(
			&entity.ID,
			&entity.Name,
			&entity.Timezone,
			&entity.IsActive,
			&entity.CreatedAt,
			&entity.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entity)
	}
	return result, rows.Err()
}
