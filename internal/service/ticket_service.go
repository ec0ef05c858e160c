package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
	"github.com/spec-kit/sla-ticket-service/internal/sla"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

// TicketService coordinates the ticket lifecycle.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.TicketCommentRepository
	history    repository.TicketHistoryRepository
	calculator *sla.Calculator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.TicketCommentRepository
	// HistoryRepo is optional; nil disables the audit trail.
	HistoryRepo repository.TicketHistoryRepository
	Calculator  *sla.Calculator
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	CustomerID       string
	Title            string
	Description      string
	Priority         domain.TicketPriority
	Source           domain.TicketSource
	AssignedTo       *string
	ExternalCaseRef  *string
	ExternalEventRef *string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	CustomerID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		calculator: deps.Calculator,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clock,
	}
}

// CreateTicket validates input, stamps the SLA deadline and persists the ticket
// with status new. The ticket_created event is published after the insert.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	input.CustomerID = strings.TrimSpace(input.CustomerID)
	input.Title = strings.TrimSpace(input.Title)

	missing := []string{}
	if input.CustomerID == "" {
		missing = append(missing, "customer_id")
	}
	if input.Title == "" {
		missing = append(missing, "title")
	}
	if input.Priority == "" {
		missing = append(missing, "priority")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}
	if input.Source == "" {
		input.Source = domain.TicketSourceWeb
	}
	if !input.Source.Valid() {
		return nil, apperrors.NewValidationError("invalid source", map[string]any{"source": input.Source})
	}

	now := s.now()
	dueAt, err := s.calculator.ComputeDueDate(input.Priority, now)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		CustomerID:       input.CustomerID,
		Title:            input.Title,
		Description:      strings.TrimSpace(input.Description),
		Priority:         input.Priority,
		Status:           domain.TicketStatusNew,
		Source:           input.Source,
		AssignedTo:       input.AssignedTo,
		ExternalCaseRef:  input.ExternalCaseRef,
		ExternalEventRef: input.ExternalEventRef,
		SLADueAt:         dueAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("priority", string(ticket.Priority)),
		zap.String("source", string(ticket.Source)),
		zap.Time("sla_due_at", ticket.SLADueAt))
	_ = publishEvent(ctx, s.dispatcher, s.logger,
		events.NewEvent(events.EventTicketCreated, ticket.ID, now, events.TicketCreatedPayload{Ticket: *ticket}))
	return ticket, nil
}

// UpdateTicket applies the present fields of patch. resolved_at and closed_at
// are set by the store on first entry into those statuses and never cleared.
func (s *TicketService) UpdateTicket(ctx context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var before *domain.Ticket
	if s.history != nil {
		// Best effort: a failed read only loses the audit entries. The read is
		// outside the update, so a concurrent update can make OldValue stale.
		before, _ = s.tickets.GetByID(ctx, id)
	}

	now := s.now()
	ticket, err := s.tickets.Update(ctx, id, patch, now)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"id": id})
	}
	if before != nil {
		entries := historyEntries(before, ticket, domain.ActorFromContext(ctx), now)
		if err := s.history.Create(ctx, entries...); err != nil {
			s.logger.Warn("recording ticket history failed", zap.String("ticket_id", id), zap.Error(err))
		}
	}

	changed := changedFields(patch)
	s.logger.Info("ticket updated", zap.String("ticket_id", id), zap.Strings("changed", changed))
	_ = publishEvent(ctx, s.dispatcher, s.logger,
		events.NewEvent(events.EventTicketUpdated, id, now, events.TicketUpdatedPayload{Ticket: *ticket, Changed: changed}))
	return ticket, nil
}

// GetTicket returns a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"id": id})
	}
	return ticket, nil
}

// ListTickets returns tickets newest first.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": st})
		}
	}
	for _, p := range filter.Priorities {
		if !p.Valid() {
			return nil, apperrors.NewUnknownPriority(string(p))
		}
	}
	return s.tickets.List(ctx, repository.TicketFilter{
		CustomerID:  filter.CustomerID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// ListComments returns a ticket's comment thread oldest first.
func (s *TicketService) ListComments(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.comments.ListByTicket(ctx, ticketID)
}

// ListHistory returns a ticket's audit trail oldest first.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListByTicket(ctx, ticketID)
}

// historyEntries diffs the audited fields of a ticket update.
func historyEntries(before, after *domain.Ticket, actor string, at time.Time) []domain.TicketHistory {
	var entries []domain.TicketHistory
	add := func(change domain.TicketChangeType, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		entries = append(entries, domain.TicketHistory{
			TicketID:   after.ID,
			Actor:      actor,
			ChangeType: change,
			OldValue:   oldValue,
			NewValue:   newValue,
			CreatedAt:  at,
		})
	}
	add(domain.ChangeTypeStatus, string(before.Status), string(after.Status))
	add(domain.ChangeTypePriority, string(before.Priority), string(after.Priority))
	add(domain.ChangeTypeAssignee, deref(before.AssignedTo), deref(after.AssignedTo))
	add(domain.ChangeTypeExternalStatus, before.ExternalCaseStatus, after.ExternalCaseStatus)
	return entries
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func validatePatch(patch domain.TicketPatch) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": *patch.Status})
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": *patch.Priority})
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return apperrors.NewValidationError("title must not be empty", nil)
	}
	return nil
}

func changedFields(patch domain.TicketPatch) []string {
	var fields []string
	add := func(present bool, name string) {
		if present {
			fields = append(fields, name)
		}
	}
	add(patch.Title != nil, "title")
	add(patch.Description != nil, "description")
	add(patch.Priority != nil, "priority")
	add(patch.Status != nil, "status")
	add(patch.AssignedTo != nil, "assigned_to")
	add(patch.ExternalCaseRef != nil, "external_case_ref")
	add(patch.ExternalCaseStatus != nil, "external_case_status")
	add(patch.ExternalCaseSubject != nil, "external_case_subject")
	add(patch.ExternalCaseSeverity != nil, "external_case_severity")
	return fields
}
