package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew             TicketStatus = "new"
	TicketStatusInProgress      TicketStatus = "in_progress"
	TicketStatusWaitingCustomer TicketStatus = "waiting_customer"
	TicketStatusResolved        TicketStatus = "resolved"
	TicketStatusClosed          TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusWaitingCustomer,
		TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// IsOpen reports whether the SLA clock still applies to the status.
func (s TicketStatus) IsOpen() bool {
	return s != TicketStatusResolved && s != TicketStatusClosed
}

// DoneStatuses are excluded from SLA scans and case polling.
var DoneStatuses = []TicketStatus{TicketStatusResolved, TicketStatusClosed}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityCritical TicketPriority = "critical"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityLow      TicketPriority = "low"
)

// Priorities lists all priorities from most to least urgent.
var Priorities = []TicketPriority{
	TicketPriorityCritical,
	TicketPriorityHigh,
	TicketPriorityMedium,
	TicketPriorityLow,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityCritical, TicketPriorityHigh, TicketPriorityMedium, TicketPriorityLow:
		return true
	}
	return false
}

// TicketSource records where a ticket originated.
type TicketSource string

const (
	TicketSourceWeb        TicketSource = "web"
	TicketSourceEmail      TicketSource = "email"
	TicketSourceAPI        TicketSource = "api"
	TicketSourceAWSSupport TicketSource = "aws_support"
	TicketSourceAWSHealth  TicketSource = "aws_health"
)

// Valid reports whether s is a known source.
func (s TicketSource) Valid() bool {
	switch s {
	case TicketSourceWeb, TicketSourceEmail, TicketSourceAPI, TicketSourceAWSSupport, TicketSourceAWSHealth:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests tracked against an SLA.
type Ticket struct {
	ID                   string
	CustomerID           string
	Title                string
	Description          string
	Priority             TicketPriority
	Status               TicketStatus
	Source               TicketSource
	AssignedTo           *string
	ExternalCaseRef      *string
	ExternalCaseStatus   string
	ExternalCaseSubject  string
	ExternalCaseSeverity string
	ExternalEventRef     *string
	SLADueAt             time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ResolvedAt           *time.Time
	ClosedAt             *time.Time
}

// IsOverdue reports whether an open ticket has passed its SLA deadline at now.
func (t *Ticket) IsOverdue(now time.Time) bool {
	return t.Status.IsOpen() && t.SLADueAt.Before(now)
}

// TicketPatch carries the fields of a partial update; nil means untouched.
type TicketPatch struct {
	Title                *string
	Description          *string
	Priority             *TicketPriority
	Status               *TicketStatus
	AssignedTo           *string
	ExternalCaseRef      *string
	ExternalCaseStatus   *string
	ExternalCaseSubject  *string
	ExternalCaseSeverity *string
}

// IsEmpty reports whether the patch changes nothing besides updated_at.
func (p TicketPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil &&
		p.AssignedTo == nil && p.ExternalCaseRef == nil && p.ExternalCaseStatus == nil &&
		p.ExternalCaseSubject == nil && p.ExternalCaseSeverity == nil
}
