package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// ResponseMetricRepository stores immutable per-ticket timing records.
type ResponseMetricRepository interface {
	Create(ctx context.Context, metric *domain.ResponseMetric) (bool, error)
	GetByTicket(ctx context.Context, ticketID string, metricType domain.MetricType) (*domain.ResponseMetric, error)
}

type responseMetricRepository struct {
	pool *pgxpool.Pool
}

// NewResponseMetricRepository builds repository.
func NewResponseMetricRepository(pool *pgxpool.Pool) ResponseMetricRepository {
	return &responseMetricRepository{pool: pool}
}

// Create inserts the metric and reports false when one already exists.
func (r *responseMetricRepository) Create(ctx context.Context, metric *domain.ResponseMetric) (bool, error) {
	const query = `
        INSERT INTO response_metrics (ticket_id, metric_type, start_time, end_time, duration_minutes,
            business_duration_minutes, sla_target_minutes, within_sla)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (ticket_id, metric_type) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		metric.TicketID,
		metric.MetricType,
		metric.StartTime,
		metric.EndTime,
		metric.DurationMinutes,
		metric.BusinessDurationMinutes,
		metric.SLATargetMinutes,
		metric.WithinSLA,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *responseMetricRepository) GetByTicket(ctx context.Context, ticketID string, metricType domain.MetricType) (*domain.ResponseMetric, error) {
	const query = `
        SELECT id, ticket_id, metric_type, start_time, end_time, duration_minutes,
               business_duration_minutes, sla_target_minutes, within_sla, created_at
        FROM response_metrics WHERE ticket_id=$1 AND metric_type=$2`
	var metric domain.ResponseMetric
	if err := r.pool.QueryRow(ctx, query, ticketID, metricType).Scan(
		&metric.ID,
		&metric.TicketID,
		&metric.MetricType,
		&metric.StartTime,
		&metric.EndTime,
		&metric.DurationMinutes,
		&metric.BusinessDurationMinutes,
		&metric.SLATargetMinutes,
		&metric.WithinSLA,
		&metric.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &metric, nil
}
