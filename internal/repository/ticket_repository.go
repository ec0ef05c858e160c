package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// TicketFilter captures list and scan predicates. Zero values are ignored.
type TicketFilter struct {
	CustomerID      *string
	Statuses        []domain.TicketStatus
	ExcludeStatuses []domain.TicketStatus
	Priorities      []domain.TicketPriority
	DueBefore       *time.Time
	HasCaseRef      bool
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	// OrderByDue sorts by sla_due_at ascending instead of newest first.
	OrderByDue bool
	// Limit is applied only when positive.
	Limit  int
	Offset int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update applies patch atomically, stamping updated_at with now and
	// setting resolved_at/closed_at on entry into those statuses when unset.
	Update(ctx context.Context, id string, patch domain.TicketPatch, now time.Time) (*domain.Ticket, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByCaseRef(ctx context.Context, caseRef string) (*domain.Ticket, error)
	GetByEventRef(ctx context.Context, eventRef string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// SLAMetrics aggregates resolved and closed tickets created in [from, to] by priority.
	SLAMetrics(ctx context.Context, from, to time.Time) ([]domain.SLAMetric, error)
}

const ticketColumns = `id, customer_id, title, description, priority, status, source, assigned_to,
               external_case_ref, external_case_status, external_case_subject, external_case_severity,
               external_event_ref, sla_due_at, created_at, updated_at, resolved_at, closed_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.CustomerID,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.Source,
		ticket.AssignedTo,
		ticket.ExternalCaseRef,
		ticket.ExternalCaseStatus,
		ticket.ExternalCaseSubject,
		ticket.ExternalCaseSeverity,
		ticket.ExternalEventRef,
		ticket.SLADueAt,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
	)
	return mapError(err)
}

func (r *ticketRepository) Update(ctx context.Context, id string, patch domain.TicketPatch, now time.Time) (*domain.Ticket, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) int {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
		return len(args)
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
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
	nowArg := set("updated_at", now)
	if patch.Status != nil {
		statusArg := set("status", string(*patch.Status))
		sets = append(sets,
			fmt.Sprintf("resolved_at = CASE WHEN $%d = 'resolved' AND resolved_at IS NULL THEN $%d ELSE resolved_at END", statusArg, nowArg),
			fmt.Sprintf("closed_at = CASE WHEN $%d = 'closed' AND closed_at IS NULL THEN $%d ELSE closed_at END", statusArg, nowArg),
		)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), ticketColumns)
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByCaseRef(ctx context.Context, caseRef string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE external_case_ref=$1 ORDER BY created_at ASC LIMIT 1`, caseRef)
}

func (r *ticketRepository) GetByEventRef(ctx context.Context, eventRef string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE external_event_ref=$1`, eventRef)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}
	inList := func(column string, values []string, negate bool) {
		placeholders := make([]string, len(values))
		for i, v := range values {
			args = append(args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		op := "IN"
		if negate {
			op = "NOT IN"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s (%s)", column, op, strings.Join(placeholders, ",")))
	}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		inList("status", statusStrings(filter.Statuses), false)
	}
	if len(filter.ExcludeStatuses) > 0 {
		inList("status", statusStrings(filter.ExcludeStatuses), true)
	}
	if len(filter.Priorities) > 0 {
		inList("priority", priorityStrings(filter.Priorities), false)
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		clauses = append(clauses, fmt.Sprintf("sla_due_at < $%d", len(args)))
	}
	if filter.HasCaseRef {
		clauses = append(clauses, "external_case_ref IS NOT NULL AND external_case_ref <> ''")
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	order := "created_at DESC"
	if filter.OrderByDue {
		order = "sla_due_at ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s`,
		ticketColumns, strings.Join(clauses, " AND "), order)
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) SLAMetrics(ctx context.Context, from, to time.Time) ([]domain.SLAMetric, error) {
	const query = `
        SELECT priority,
               COUNT(*),
               COUNT(*) FILTER (WHERE resolved_at <= sla_due_at),
               COUNT(*) FILTER (WHERE resolved_at > sla_due_at),
               COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 60), 0)::float8
        FROM tickets
        WHERE created_at BETWEEN $1 AND $2
          AND status IN ('resolved', 'closed')
        GROUP BY priority`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAMetric
	for rows.Next() {
		var m domain.SLAMetric
		if err := rows.Scan(&m.Priority, &m.Total, &m.Met, &m.Violated, &m.AvgResolutionMinutes); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.CustomerID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Source,
		&ticket.AssignedTo,
		&ticket.ExternalCaseRef,
		&ticket.ExternalCaseStatus,
		&ticket.ExternalCaseSubject,
		&ticket.ExternalCaseSeverity,
		&ticket.ExternalEventRef,
		&ticket.SLADueAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func priorityStrings(priorities []domain.TicketPriority) []string {
	out := make([]string, len(priorities))
	for i, p := range priorities {
		out[i] = string(p)
	}
	return out
}
