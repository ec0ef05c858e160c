package domain

import "time"

// SLATarget is the commitment for a single priority.
type SLATarget struct {
	Priority            TicketPriority
	ResponseTimeMinutes int
	ResolutionTimeHours int
	Description         string
	UpdatedAt           time.Time
}

// ResponseTime returns the response window as a duration.
func (t SLATarget) ResponseTime() time.Duration {
	return time.Duration(t.ResponseTimeMinutes) * time.Minute
}

// ResolutionTime returns the resolution window as a duration.
func (t SLATarget) ResolutionTime() time.Duration {
	return time.Duration(t.ResolutionTimeHours) * time.Hour
}

// SLAPolicy is an immutable snapshot of SLA targets keyed by priority.
// Use With to derive a modified copy.
type SLAPolicy struct {
	targets map[TicketPriority]SLATarget
}

// NewSLAPolicy builds a policy from targets. Later targets override earlier ones.
func NewSLAPolicy(targets ...SLATarget) SLAPolicy {
	m := make(map[TicketPriority]SLATarget, len(targets))
	for _, t := range targets {
		m[t.Priority] = t
	}
	return SLAPolicy{targets: m}
}

// Target returns the target for priority, if defined.
func (p SLAPolicy) Target(priority TicketPriority) (SLATarget, bool) {
	t, ok := p.targets[priority]
	return t, ok
}

// With returns a copy of the policy with target applied.
func (p SLAPolicy) With(target SLATarget) SLAPolicy {
	m := make(map[TicketPriority]SLATarget, len(p.targets)+1)
	for k, v := range p.targets {
		m[k] = v
	}
	m[target.Priority] = target
	return SLAPolicy{targets: m}
}

// Targets returns the targets ordered from most to least urgent.
func (p SLAPolicy) Targets() []SLATarget {
	out := make([]SLATarget, 0, len(p.targets))
	for _, pr := range Priorities {
		if t, ok := p.targets[pr]; ok {
			out = append(out, t)
		}
	}
	return out
}

// SLAMetric aggregates SLA outcomes for one priority over a period.
type SLAMetric struct {
	Priority             TicketPriority
	Total                int
	Met                  int
	Violated             int
	AvgResolutionMinutes float64
}

// ComplianceRate returns met/total as a percentage, or zero for an empty bucket.
func (m SLAMetric) ComplianceRate() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Met) / float64(m.Total) * 100
}

// SLAReport summarises SLA compliance over a period.
type SLAReport struct {
	From       time.Time
	To         time.Time
	Overall    SLAMetric
	ByPriority []SLAMetric
}

// SLAViolation is an open ticket past its deadline.
type SLAViolation struct {
	Ticket         Ticket
	MinutesOverdue float64
}
