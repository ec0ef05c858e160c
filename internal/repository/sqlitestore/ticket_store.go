package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
)

const ticketColumns = `id, customer_id, title, description, priority, status, source, assigned_to,
	external_case_ref, external_case_status, external_case_subject, external_case_severity,
	external_event_ref, sla_due_at, created_at, updated_at, resolved_at, closed_at`

// TicketStore persists tickets.
type TicketStore struct {
	db *sqlx.DB
}

// Create inserts a new ticket. Generates a UUID if ID is empty.
func (s *TicketStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	ticket.SLADueAt = utc(ticket.SLADueAt)
	ticket.CreatedAt = utc(ticket.CreatedAt)
	ticket.UpdatedAt = utc(ticket.UpdatedAt)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID, ticket.CustomerID, ticket.Title, ticket.Description,
		string(ticket.Priority), string(ticket.Status), string(ticket.Source), ticket.AssignedTo,
		ticket.ExternalCaseRef, ticket.ExternalCaseStatus, ticket.ExternalCaseSubject, ticket.ExternalCaseSeverity,
		ticket.ExternalEventRef, ticket.SLADueAt, ticket.CreatedAt, ticket.UpdatedAt,
		utcPtr(ticket.ResolvedAt), utcPtr(ticket.ClosedAt),
	)
	if err != nil {
		return wrapWrite("creating ticket", err)
	}
	return nil
}

// Update applies patch in a single statement.
func (s *TicketStore) Update(ctx context.Context, id string, patch domain.TicketPatch, now time.Time) (*domain.Ticket, error) {
	now = utc(now)
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Priority != nil {
		set("priority", string(*patch.Priority))
	}
	if patch.AssignedTo != nil {
		set("assigned_to", *patch.AssignedTo)
	}
	if patch.ExternalCaseRef != nil {
		set("external_case_ref", *patch.ExternalCaseRef)
	}
	if patch.ExternalCaseStatus != nil {
		set("external_case_status", *patch.ExternalCaseStatus)
	}
	if patch.ExternalCaseSubject != nil {
		set("external_case_subject", *patch.ExternalCaseSubject)
	}
	if patch.ExternalCaseSeverity != nil {
		set("external_case_severity", *patch.ExternalCaseSeverity)
	}
	set("updated_at", now)
	if patch.Status != nil {
		status := string(*patch.Status)
		set("status", status)
		sets = append(sets,
			"resolved_at = CASE WHEN ? = 'resolved' AND resolved_at IS NULL THEN ? ELSE resolved_at END",
			"closed_at = CASE WHEN ? = 'closed' AND closed_at IS NULL THEN ? ELSE closed_at END",
		)
		args = append(args, status, now, status, now)
	}
	args = append(args, id)

	// RETURNING loses the DATETIME column type, so re-read inside the transaction.
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning ticket update: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "UPDATE tickets SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return nil, repository.ErrNotFound
	}
	ticket, err := scanTicket(tx.QueryRowxContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("reading updated ticket: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ticket update: %w", err)
	}
	return ticket, nil
}

// GetByID returns the ticket with id.
func (s *TicketStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.getOne(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id)
}

// GetByCaseRef returns the oldest ticket linked to caseRef.
func (s *TicketStore) GetByCaseRef(ctx context.Context, caseRef string) (*domain.Ticket, error) {
	return s.getOne(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE external_case_ref = ? ORDER BY created_at ASC LIMIT 1", caseRef)
}

// GetByEventRef returns the ticket created for a health event.
func (s *TicketStore) GetByEventRef(ctx context.Context, eventRef string) (*domain.Ticket, error) {
	return s.getOne(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE external_event_ref = ?", eventRef)
}

func (s *TicketStore) getOne(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(s.db.QueryRowxContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting ticket: %w", err)
	}
	return ticket, nil
}

// List returns tickets matching filter.
func (s *TicketStore) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	query, args := buildTicketListQuery(filter)
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}

func buildTicketListQuery(filter repository.TicketFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.CustomerID != nil {
		clauses = append(clauses, "customer_id = ?")
		args = append(args, *filter.CustomerID)
	}
	if len(filter.Statuses) > 0 {
		clause, inArgs := inClause("status", filter.Statuses, false)
		clauses = append(clauses, clause)
		args = append(args, inArgs...)
	}
	if len(filter.ExcludeStatuses) > 0 {
		clause, inArgs := inClause("status", filter.ExcludeStatuses, true)
		clauses = append(clauses, clause)
		args = append(args, inArgs...)
	}
	if len(filter.Priorities) > 0 {
		clause, inArgs := inClause("priority", filter.Priorities, false)
		clauses = append(clauses, clause)
		args = append(args, inArgs...)
	}
	if filter.DueBefore != nil {
		clauses = append(clauses, "sla_due_at < ?")
		args = append(args, utc(*filter.DueBefore))
	}
	if filter.HasCaseRef {
		clauses = append(clauses, "external_case_ref IS NOT NULL AND external_case_ref <> ''")
	}
	if filter.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, utc(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, utc(*filter.CreatedTo))
	}

	query := "SELECT " + ticketColumns + " FROM tickets"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if filter.OrderByDue {
		query += " ORDER BY sla_due_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	return query, args
}

// SLAMetrics aggregates in Go; SQLite has no portable interval arithmetic
// over the driver's DATETIME text.
func (s *TicketStore) SLAMetrics(ctx context.Context, from, to time.Time) ([]domain.SLAMetric, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT priority, sla_due_at, created_at, resolved_at
		FROM tickets
		WHERE created_at >= ? AND created_at <= ?
		  AND status IN ('resolved', 'closed')`,
		utc(from), utc(to),
	)
	if err != nil {
		return nil, fmt.Errorf("querying sla metrics: %w", err)
	}
	defer rows.Close()

	type bucket struct {
		metric        domain.SLAMetric
		resolvedCount int
		totalMinutes  float64
	}
	buckets := map[domain.TicketPriority]*bucket{}
	for rows.Next() {
		var (
			priority   string
			dueAt      time.Time
			createdAt  time.Time
			resolvedAt *time.Time
		)
		if err := rows.Scan(&priority, &dueAt, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scanning sla metric row: %w", err)
		}
		p := domain.TicketPriority(priority)
		b, ok := buckets[p]
		if !ok {
			b = &bucket{metric: domain.SLAMetric{Priority: p}}
			buckets[p] = b
		}
		b.metric.Total++
		if resolvedAt == nil {
			continue
		}
		if resolvedAt.After(dueAt) {
			b.metric.Violated++
		} else {
			b.metric.Met++
		}
		b.resolvedCount++
		b.totalMinutes += resolvedAt.Sub(createdAt).Minutes()
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var metrics []domain.SLAMetric
	for _, p := range domain.Priorities {
		b, ok := buckets[p]
		if !ok {
			continue
		}
		if b.resolvedCount > 0 {
			b.metric.AvgResolutionMinutes = b.totalMinutes / float64(b.resolvedCount)
		}
		metrics = append(metrics, b.metric)
	}
	return metrics, nil
}

func scanTicket(row interface{ Scan(dest ...any) error }) (*domain.Ticket, error) {
	var (
		ticket                     domain.Ticket
		priority, status, source   string
		resolvedAt, closedAt       *time.Time
		assignedTo, caseRef, event *string
	)
	err := row.Scan(
		&ticket.ID, &ticket.CustomerID, &ticket.Title, &ticket.Description,
		&priority, &status, &source, &assignedTo,
		&caseRef, &ticket.ExternalCaseStatus, &ticket.ExternalCaseSubject, &ticket.ExternalCaseSeverity,
		&event, &ticket.SLADueAt, &ticket.CreatedAt, &ticket.UpdatedAt, &resolvedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}
	ticket.Priority = domain.TicketPriority(priority)
	ticket.Status = domain.TicketStatus(status)
	ticket.Source = domain.TicketSource(source)
	ticket.AssignedTo = assignedTo
	ticket.ExternalCaseRef = caseRef
	ticket.ExternalEventRef = event
	ticket.ResolvedAt = resolvedAt
	ticket.ClosedAt = closedAt
	return &ticket, nil
}
