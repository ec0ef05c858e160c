package domain

import "time"

// TicketComment is an append-only communication record on a ticket.
type TicketComment struct {
	ID              string
	TicketID        string
	AuthorID        *string
	Content         string
	IsInternal      bool
	ExternalCommRef *string
	CreatedAt       time.Time
}
