package dto

// CreateCaseRequest opens a support case for an existing ticket.
type CreateCaseRequest struct {
	TicketID     string `json:"ticket_id"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	SeverityCode string `json:"severity_code"`
}

// AddCommunicationRequest posts a reply to a support case.
type AddCommunicationRequest struct {
	Body string `json:"body"`
}

// ProcessHealthEventRequest names one health event. Event refs are ARNs and
// carry characters that do not survive as path segments.
type ProcessHealthEventRequest struct {
	EventRef string `json:"event_ref"`
}
