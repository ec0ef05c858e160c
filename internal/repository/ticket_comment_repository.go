package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// TicketCommentRepository manages the append-only comment thread of a ticket.
type TicketCommentRepository interface {
	// Create inserts comment and reports whether a row was written. A comment
	// whose external ref already exists on the ticket is ignored.
	Create(ctx context.Context, comment *domain.TicketComment) (bool, error)
	ExistsByExternalRef(ctx context.Context, ticketID, ref string) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error)
}

type ticketCommentRepository struct {
	pool *pgxpool.Pool
}

// NewTicketCommentRepository builds repository.
func NewTicketCommentRepository(pool *pgxpool.Pool) TicketCommentRepository {
	return &ticketCommentRepository{pool: pool}
}

func (r *ticketCommentRepository) Create(ctx context.Context, comment *domain.TicketComment) (bool, error) {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO ticket_comments (id, ticket_id, author_id, content, is_internal, external_comm_ref, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		comment.ID,
		comment.TicketID,
		comment.AuthorID,
		comment.Content,
		comment.IsInternal,
		comment.ExternalCommRef,
		comment.CreatedAt,
	)
	if err != nil {
		return false, mapError(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketCommentRepository) ExistsByExternalRef(ctx context.Context, ticketID, ref string) (bool, error) {
	const query = `
        SELECT EXISTS (SELECT 1 FROM ticket_comments WHERE ticket_id=$1 AND external_comm_ref=$2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, ticketID, ref).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ticketCommentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	const query = `
        SELECT id, ticket_id, author_id, content, is_internal, external_comm_ref, created_at
        FROM ticket_comments WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketComment
	for rows.Next() {
		var comment domain.TicketComment
		if err := rows.Scan(
			&comment.ID,
			&comment.TicketID,
			&comment.AuthorID,
			&comment.Content,
			&comment.IsInternal,
			&comment.ExternalCommRef,
			&comment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}
