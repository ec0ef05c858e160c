package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventSLAViolation        EventType = "sla_violation"
	EventHealthEventAffected EventType = "health_event_affected"
)

// Event represents a domain event emitted by services after a write commits.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(eventType EventType, ticketID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket domain.Ticket `json:"ticket"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Ticket  domain.Ticket `json:"ticket"`
	Changed []string      `json:"changed"`
}

// SLAViolationPayload payload.
type SLAViolationPayload struct {
	Ticket         domain.Ticket `json:"ticket"`
	MinutesOverdue float64       `json:"minutes_overdue"`
}

// HealthEventAffectedPayload is published once per affected account.
type HealthEventAffectedPayload struct {
	AccountID string        `json:"account_id"`
	EventRef  string        `json:"event_ref"`
	Ticket    domain.Ticket `json:"ticket"`
}
