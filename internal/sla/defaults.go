package sla

import (
	"github.com/spec-kit/sla-ticket-service/internal/config"
	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// DefaultPolicy builds the startup policy from configuration.
func DefaultPolicy(cfg config.SLAConfig) domain.SLAPolicy {
	return domain.NewSLAPolicy(
		domain.SLATarget{
			Priority:            domain.TicketPriorityCritical,
			ResponseTimeMinutes: cfg.CriticalResponseMinutes,
			ResolutionTimeHours: cfg.CriticalResolutionHours,
			Description:         "Production down or severe business impact",
		},
		domain.SLATarget{
			Priority:            domain.TicketPriorityHigh,
			ResponseTimeMinutes: cfg.HighResponseMinutes,
			ResolutionTimeHours: cfg.HighResolutionHours,
			Description:         "Production impaired",
		},
		domain.SLATarget{
			Priority:            domain.TicketPriorityMedium,
			ResponseTimeMinutes: cfg.MediumResponseMinutes,
			ResolutionTimeHours: cfg.MediumResolutionHours,
			Description:         "System impaired",
		},
		domain.SLATarget{
			Priority:            domain.TicketPriorityLow,
			ResponseTimeMinutes: cfg.LowResponseMinutes,
			ResolutionTimeHours: cfg.LowResolutionHours,
			Description:         "General guidance",
		},
	)
}
