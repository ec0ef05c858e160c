package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// CommentStore persists ticket comments.
type CommentStore struct {
	db *sqlx.DB
}

// Create inserts comment unless its external ref is already present on the ticket.
func (s *CommentStore) Create(ctx context.Context, comment *domain.TicketComment) (bool, error) {
	if comment.ID == "" {
		comment.ID = uuid.New().String()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	comment.CreatedAt = utc(comment.CreatedAt)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_comments (id, ticket_id, author_id, content, is_internal, external_comm_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		comment.ID, comment.TicketID, comment.AuthorID, comment.Content,
		comment.IsInternal, comment.ExternalCommRef, comment.CreatedAt,
	)
	if err != nil {
		return false, wrapWrite("creating comment", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// ExistsByExternalRef reports whether ref was already imported onto the ticket.
func (s *CommentStore) ExistsByExternalRef(ctx context.Context, ticketID, ref string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM ticket_comments WHERE ticket_id = ? AND external_comm_ref = ?", ticketID, ref)
	if err != nil {
		return false, fmt.Errorf("checking comment ref: %w", err)
	}
	return count > 0, nil
}

// ListByTicket returns the thread oldest first.
func (s *CommentStore) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, ticket_id, author_id, content, is_internal, external_comm_ref, created_at
		FROM ticket_comments WHERE ticket_id = ? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	var comments []domain.TicketComment
	for rows.Next() {
		var (
			comment  domain.TicketComment
			internal int
		)
		if err := rows.Scan(
			&comment.ID, &comment.TicketID, &comment.AuthorID, &comment.Content,
			&internal, &comment.ExternalCommRef, &comment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning comment row: %w", err)
		}
		comment.IsInternal = internal != 0
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}
