package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/observability"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
	"github.com/spec-kit/sla-ticket-service/internal/sla"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

// SLAService detects violations and administers the SLA policy.
type SLAService struct {
	tickets    repository.TicketRepository
	policies   repository.SLAPolicyRepository
	calculator *sla.Calculator
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	// mu serialises policy writes; reads go through the calculator snapshot.
	mu sync.Mutex
}

// SLADependencies bundles collaborators for SLA service.
type SLADependencies struct {
	TicketRepo repository.TicketRepository
	PolicyRepo repository.SLAPolicyRepository
	Calculator *sla.Calculator
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// ScanResult reports one violation scan.
type ScanResult struct {
	Violations int `json:"violations"`
	Published  int `json:"published"`
}

// SLAPolicyUpdate changes the target for one priority. A nil Description
// keeps the current one.
type SLAPolicyUpdate struct {
	Priority            domain.TicketPriority
	ResponseTimeMinutes int
	ResolutionTimeHours int
	Description         *string
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAService{
		tickets:    deps.TicketRepo,
		policies:   deps.PolicyRepo,
		calculator: deps.Calculator,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// ScanForViolations publishes one sla_violation event for every open ticket
// whose deadline is before now. It never modifies tickets, so a ticket that
// stays overdue is reported again on every scan.
func (s *SLAService) ScanForViolations(ctx context.Context, now time.Time) (ScanResult, error) {
	violations, err := s.Violations(ctx, now)
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{Violations: len(violations)}
	for _, v := range violations {
		s.metrics.RecordViolation(string(v.Ticket.Priority))
		s.logger.Warn("sla violation",
			zap.String("ticket_id", v.Ticket.ID),
			zap.String("priority", string(v.Ticket.Priority)),
			zap.Float64("minutes_overdue", v.MinutesOverdue))
		event := events.NewEvent(events.EventSLAViolation, v.Ticket.ID, now,
			events.SLAViolationPayload{Ticket: v.Ticket, MinutesOverdue: v.MinutesOverdue})
		if err := publishEvent(ctx, s.dispatcher, s.logger, event); err == nil {
			result.Published++
		}
	}
	s.logger.Info("sla scan complete",
		zap.Int("violations", result.Violations),
		zap.Int("published", result.Published))
	return result, nil
}

// Violations lists open overdue tickets, oldest deadline first.
func (s *SLAService) Violations(ctx context.Context, now time.Time) ([]domain.SLAViolation, error) {
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		ExcludeStatuses: domain.DoneStatuses,
		DueBefore:       &now,
		OrderByDue:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing overdue tickets: %w", err)
	}
	out := make([]domain.SLAViolation, 0, len(tickets))
	for _, t := range tickets {
		if !t.IsOverdue(now) {
			continue
		}
		out = append(out, domain.SLAViolation{Ticket: t, MinutesOverdue: now.Sub(t.SLADueAt).Minutes()})
	}
	return out, nil
}

// Policy returns the snapshot currently used for new tickets.
func (s *SLAService) Policy() domain.SLAPolicy {
	return s.calculator.Policy()
}

// LoadPolicy overlays persisted targets on the configured defaults.
func (s *SLAService) LoadPolicy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.policies.List(ctx)
	if err != nil {
		return fmt.Errorf("loading sla config: %w", err)
	}
	policy := s.calculator.Policy()
	for _, row := range rows {
		if !row.Priority.Valid() || row.ResponseTimeMinutes <= 0 || row.ResolutionTimeHours <= 0 {
			s.logger.Warn("ignoring invalid sla config row", zap.String("priority", string(row.Priority)))
			continue
		}
		policy = policy.With(row)
	}
	s.calculator.Replace(policy)
	s.logger.Info("sla policy loaded", zap.Int("overrides", len(rows)))
	return nil
}

// UpdatePolicy persists a new target and swaps the snapshot. Tickets created
// before the swap keep their deadlines.
func (s *SLAService) UpdatePolicy(ctx context.Context, update SLAPolicyUpdate) (domain.SLATarget, error) {
	if !update.Priority.Valid() {
		return domain.SLATarget{}, apperrors.NewUnknownPriority(string(update.Priority))
	}
	if update.ResponseTimeMinutes <= 0 || update.ResolutionTimeHours <= 0 {
		return domain.SLATarget{}, apperrors.NewValidationError("sla windows must be positive", map[string]any{
			"response_time_minutes": update.ResponseTimeMinutes,
			"resolution_time_hours": update.ResolutionTimeHours,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.calculator.Policy()
	target := domain.SLATarget{
		Priority:            update.Priority,
		ResponseTimeMinutes: update.ResponseTimeMinutes,
		ResolutionTimeHours: update.ResolutionTimeHours,
		UpdatedAt:           s.now(),
	}
	if update.Description != nil {
		target.Description = *update.Description
	} else if existing, ok := current.Target(update.Priority); ok {
		target.Description = existing.Description
	}

	if err := s.policies.Upsert(ctx, target); err != nil {
		return domain.SLATarget{}, fmt.Errorf("saving sla config: %w", err)
	}
	s.calculator.Replace(current.With(target))
	s.logger.Info("sla policy updated",
		zap.String("priority", string(target.Priority)),
		zap.Int("response_time_minutes", target.ResponseTimeMinutes),
		zap.Int("resolution_time_hours", target.ResolutionTimeHours))
	return target, nil
}

// Metrics returns per-priority outcomes for tickets created in [from, to].
func (s *SLAService) Metrics(ctx context.Context, from, to time.Time) ([]domain.SLAMetric, error) {
	if to.Before(from) {
		return nil, apperrors.NewValidationError("from must not be after to", nil)
	}
	return s.tickets.SLAMetrics(ctx, from, to)
}

// Report adds an overall row to Metrics.
func (s *SLAService) Report(ctx context.Context, from, to time.Time) (*domain.SLAReport, error) {
	metrics, err := s.Metrics(ctx, from, to)
	if err != nil {
		return nil, err
	}
	overall := domain.SLAMetric{}
	var weightedMinutes float64
	var resolved int
	for _, m := range metrics {
		overall.Total += m.Total
		overall.Met += m.Met
		overall.Violated += m.Violated
		n := m.Met + m.Violated
		weightedMinutes += m.AvgResolutionMinutes * float64(n)
		resolved += n
	}
	if resolved > 0 {
		overall.AvgResolutionMinutes = weightedMinutes / float64(resolved)
	}
	return &domain.SLAReport{From: from, To: to, Overall: overall, ByPriority: metrics}, nil
}
