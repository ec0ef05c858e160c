package dto

import (
	"time"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	CustomerID      string                `json:"customer_id"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Priority        domain.TicketPriority `json:"priority"`
	Source          domain.TicketSource   `json:"source"`
	AssignedTo      *string               `json:"assigned_to"`
	ExternalCaseRef *string               `json:"external_case_ref"`
}

// UpdateTicketRequest carries a partial update; absent fields are untouched.
type UpdateTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Priority    *domain.TicketPriority `json:"priority"`
	Status      *domain.TicketStatus   `json:"status"`
	AssignedTo  *string                `json:"assigned_to"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID                   string                `json:"id"`
	CustomerID           string                `json:"customer_id"`
	Title                string                `json:"title"`
	Description          string                `json:"description"`
	Priority             domain.TicketPriority `json:"priority"`
	Status               domain.TicketStatus   `json:"status"`
	Source               domain.TicketSource   `json:"source"`
	AssignedTo           *string               `json:"assigned_to"`
	ExternalCaseRef      *string               `json:"external_case_ref"`
	ExternalCaseStatus   string                `json:"external_case_status,omitempty"`
	ExternalCaseSubject  string                `json:"external_case_subject,omitempty"`
	ExternalCaseSeverity string                `json:"external_case_severity,omitempty"`
	ExternalEventRef     *string               `json:"external_event_ref"`
	SLADueAt             time.Time             `json:"sla_due_at"`
	Overdue              bool                  `json:"overdue"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
	ResolvedAt           *time.Time            `json:"resolved_at"`
	ClosedAt             *time.Time            `json:"closed_at"`
}

// CommentResponse represents one thread entry.
type CommentResponse struct {
	ID              string    `json:"id"`
	AuthorID        *string   `json:"author_id"`
	Content         string    `json:"content"`
	IsInternal      bool      `json:"is_internal"`
	ExternalCommRef *string   `json:"external_comm_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	ChangeType string    `json:"change_type"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	CreatedAt  time.Time `json:"created_at"`
}
