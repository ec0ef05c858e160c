package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// SLAPolicyRepository persists per-priority SLA targets in sla_config.
type SLAPolicyRepository interface {
	List(ctx context.Context) ([]domain.SLATarget, error)
	Upsert(ctx context.Context, target domain.SLATarget) error
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository builds repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SLATarget, error) {
	const query = `
        SELECT priority, response_time_minutes, resolution_time_hours, description, updated_at
        FROM sla_config`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLATarget
	for rows.Next() {
		var t domain.SLATarget
		if err := rows.Scan(&t.Priority, &t.ResponseTimeMinutes, &t.ResolutionTimeHours, &t.Description, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *slaPolicyRepository) Upsert(ctx context.Context, target domain.SLATarget) error {
	const query = `
        INSERT INTO sla_config (priority, response_time_minutes, resolution_time_hours, description, updated_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (priority) DO UPDATE SET
            response_time_minutes = EXCLUDED.response_time_minutes,
            resolution_time_hours = EXCLUDED.resolution_time_hours,
            description = EXCLUDED.description,
            updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query,
		target.Priority,
		target.ResponseTimeMinutes,
		target.ResolutionTimeHours,
		target.Description,
		target.UpdatedAt,
	)
	return err
}
