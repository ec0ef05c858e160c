package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// PolicyStore persists SLA targets.
type PolicyStore struct {
	db *sqlx.DB
}

// List returns every persisted target.
func (s *PolicyStore) List(ctx context.Context) ([]domain.SLATarget, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT priority, response_time_minutes, resolution_time_hours, description, updated_at
		FROM sla_config`)
	if err != nil {
		return nil, fmt.Errorf("listing sla config: %w", err)
	}
	defer rows.Close()

	var targets []domain.SLATarget
	for rows.Next() {
		var (
			target   domain.SLATarget
			priority string
		)
		if err := rows.Scan(&priority, &target.ResponseTimeMinutes, &target.ResolutionTimeHours,
			&target.Description, &target.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning sla config row: %w", err)
		}
		target.Priority = domain.TicketPriority(priority)
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// Upsert writes target, replacing any existing row for its priority.
func (s *PolicyStore) Upsert(ctx context.Context, target domain.SLATarget) error {
	if target.UpdatedAt.IsZero() {
		target.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sla_config (priority, response_time_minutes, resolution_time_hours, description, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (priority) DO UPDATE SET
			response_time_minutes = excluded.response_time_minutes,
			resolution_time_hours = excluded.resolution_time_hours,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		string(target.Priority), target.ResponseTimeMinutes, target.ResolutionTimeHours,
		target.Description, utc(target.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting sla config: %w", err)
	}
	return nil
}
