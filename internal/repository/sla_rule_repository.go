package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// SLARuleRepository persists SLA rules. Budgets are stored in whole minutes.
type SLARuleRepository interface {
	ListApplicable(ctx context.Context, entityID string) ([]domain.SLARule, error)
	GetByID(ctx context.Context, id string) (*domain.SLARule, error)
	Upsert(ctx context.Context, rule *domain.SLARule) error
}

type slaRuleRepository struct {
	pool *pgxpool.Pool
}

// NewSLARuleRepository builds repository.
func NewSLARuleRepository(pool *pgxpool.Pool) SLARuleRepository {
	return &slaRuleRepository{pool: pool}
}

const slaRuleColumns = `
        id, entity_id, name, priority, response_minutes, resolution_minutes, escalation_minutes,
        business_hours_only, conditions, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*domain.SLARule, error) {
	var (
		rule                           domain.SLARule
		response, resolution, escalate *int32
		conditions                     []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.EntityID,
		&rule.Name,
		&rule.Priority,
		&response,
		&resolution,
		&escalate,
		&rule.BusinessHoursOnly,
		&conditions,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rule.ResponseTime = minutesToDuration(response)
	rule.ResolutionTime = minutesToDuration(resolution)
	rule.EscalationTime = minutesToDuration(escalate)
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("sla rule %s conditions: %w", rule.ID, err)
		}
	}
	return &rule, nil
}

// ListApplicable returns the entity's active rules plus active global rules.
func (r *slaRuleRepository) ListApplicable(ctx context.Context, entityID string) ([]domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules
        WHERE is_active AND (entity_id=$1 OR entity_id IS NULL)
        ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLARule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *slaRuleRepository) GetByID(ctx context.Context, id string) (*domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules WHERE id=$1`
	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return rule, nil
}

func (r *slaRuleRepository) Upsert(ctx context.Context, rule *domain.SLARule) error {
	var conditions []byte
	if len(rule.Conditions) > 0 {
		encoded, err := json.Marshal(rule.Conditions)
		if err != nil {
			return fmt.Errorf("encode conditions: %w", err)
		}
		conditions = encoded
	}

	const query = `
        INSERT INTO sla_rules (id, entity_id, name, priority, response_minutes, resolution_minutes,
            escalation_minutes, business_hours_only, conditions, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO UPDATE SET entity_id=EXCLUDED.entity_id, name=EXCLUDED.name,
            priority=EXCLUDED.priority, response_minutes=EXCLUDED.response_minutes,
            resolution_minutes=EXCLUDED.resolution_minutes, escalation_minutes=EXCLUDED.escalation_minutes,
            business_hours_only=EXCLUDED.business_hours_only, conditions=EXCLUDED.conditions,
            is_active=EXCLUDED.is_active, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.ID,
		rule.EntityID,
		rule.Name,
		rule.Priority.Normalize(),
		durationToMinutes(rule.ResponseTime),
		durationToMinutes(rule.ResolutionTime),
		durationToMinutes(rule.EscalationTime),
		rule.BusinessHoursOnly,
		conditions,
		rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func minutesToDuration(minutes *int32) *time.Duration {
	if minutes == nil {
		return nil
	}
	d := time.Duration(*minutes) * time.Minute
	return &d
}

func durationToMinutes(d *time.Duration) *int32 {
	if d == nil {
		return nil
	}
	minutes := int32(*d / time.Minute)
	return &minutes
}
