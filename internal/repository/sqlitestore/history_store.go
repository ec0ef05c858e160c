package sqlitestore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// HistoryStore persists the ticket audit trail.
type HistoryStore struct {
	db *sqlx.DB
}

// Create inserts entries in one transaction.
func (s *HistoryStore) Create(ctx context.Context, entries ...domain.TicketHistory) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, h := range entries {
		if h.ID == "" {
			h.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ticket_history (id, ticket_id, actor, change_type, old_value, new_value, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.TicketID, h.Actor, h.ChangeType, h.OldValue, h.NewValue, utc(h.CreatedAt),
		); err != nil {
			return wrapWrite("creating history entry", err)
		}
	}
	return tx.Commit()
}

// ListByTicket returns entries oldest first.
func (s *HistoryStore) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, ticket_id, actor, change_type, old_value, new_value, created_at
		FROM ticket_history WHERE ticket_id = ? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []domain.TicketHistory
	for rows.Next() {
		var h domain.TicketHistory
		if err := rows.Scan(&h.ID, &h.TicketID, &h.Actor, &h.ChangeType, &h.OldValue, &h.NewValue, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
