package dto

import (
	"time"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// SLATargetResponse is one row of the SLA policy.
type SLATargetResponse struct {
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeMinutes int                   `json:"response_time_minutes"`
	ResolutionTimeHours int                   `json:"resolution_time_hours"`
	Description         string                `json:"description"`
}

// UpdateSLATargetRequest replaces the target for the priority in the path.
type UpdateSLATargetRequest struct {
	ResponseTimeMinutes int     `json:"response_time_minutes"`
	ResolutionTimeHours int     `json:"resolution_time_hours"`
	Description         *string `json:"description"`
}

// SLAMetricResponse aggregates outcomes for one priority.
type SLAMetricResponse struct {
	Priority             domain.TicketPriority `json:"priority,omitempty"`
	Total                int                   `json:"total"`
	Met                  int                   `json:"met"`
	Violated             int                   `json:"violated"`
	ComplianceRate       float64               `json:"compliance_rate"`
	AvgResolutionMinutes float64               `json:"avg_resolution_minutes"`
}

// SLAReportResponse wraps metrics with the period and an overall row.
type SLAReportResponse struct {
	From       time.Time           `json:"from"`
	To         time.Time           `json:"to"`
	Overall    SLAMetricResponse   `json:"overall"`
	ByPriority []SLAMetricResponse `json:"by_priority"`
}

// ViolationResponse is an overdue open ticket.
type ViolationResponse struct {
	TicketID       string                `json:"ticket_id"`
	Title          string                `json:"title"`
	Priority       domain.TicketPriority `json:"priority"`
	Status         domain.TicketStatus   `json:"status"`
	SLADueAt       time.Time             `json:"sla_due_at"`
	MinutesOverdue float64               `json:"minutes_overdue"`
}
