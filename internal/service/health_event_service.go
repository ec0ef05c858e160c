package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/observability"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
)

// HealthOutcome reports what processing one health event did.
type HealthOutcome string

const (
	OutcomeCreated   HealthOutcome = "created"
	OutcomeDuplicate HealthOutcome = "duplicate"
)

// HealthEventService turns infrastructure health events into tickets.
type HealthEventService struct {
	tickets           repository.TicketRepository
	customers         repository.CustomerRepository
	ticketSvc         *TicketService
	client            HealthClient
	dispatcher        events.Dispatcher
	metrics           *observability.Metrics
	logger            *zap.Logger
	concurrency       int
	maxListed         int
	defaultCustomerID string
}

// HealthEventDependencies bundles collaborators for the health event service.
type HealthEventDependencies struct {
	TicketRepo        repository.TicketRepository
	CustomerRepo      repository.CustomerRepository
	TicketService     *TicketService
	Client            HealthClient
	Dispatcher        events.Dispatcher
	Metrics           *observability.Metrics
	Logger            *zap.Logger
	Concurrency       int
	MaxListedEntities int
	DefaultCustomerID string
}

// HealthEventResult is the outcome of ProcessHealthEvent.
type HealthEventResult struct {
	EventRef string        `json:"event_ref"`
	Outcome  HealthOutcome `json:"outcome"`
	TicketID string        `json:"ticket_id"`
}

// NewHealthEventService constructs the service.
func NewHealthEventService(deps HealthEventDependencies) *HealthEventService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	maxListed := deps.MaxListedEntities
	if maxListed <= 0 {
		maxListed = 10
	}
	defaultCustomer := deps.DefaultCustomerID
	if defaultCustomer == "" {
		defaultCustomer = "system"
	}
	return &HealthEventService{
		tickets:           deps.TicketRepo,
		customers:         deps.CustomerRepo,
		ticketSvc:         deps.TicketService,
		client:            deps.Client,
		dispatcher:        deps.Dispatcher,
		metrics:           deps.Metrics,
		logger:            logger,
		concurrency:       concurrency,
		maxListed:         maxListed,
		defaultCustomerID: defaultCustomer,
	}
}

// ProcessHealthEvent creates at most one ticket per event ref. Seen events
// return OutcomeDuplicate without calling the feed.
func (s *HealthEventService) ProcessHealthEvent(ctx context.Context, eventRef string) (HealthEventResult, error) {
	result := HealthEventResult{EventRef: eventRef}
	log := s.logger.With(zap.String("event_ref", eventRef))

	existing, err := s.tickets.GetByEventRef(ctx, eventRef)
	switch {
	case err == nil:
		log.Info("ticket already exists for health event", zap.String("ticket_id", existing.ID))
		result.Outcome = OutcomeDuplicate
		result.TicketID = existing.ID
		return result, nil
	case !errors.Is(err, repository.ErrNotFound):
		return result, fmt.Errorf("checking health event %s: %w", eventRef, err)
	}

	event, err := s.client.DescribeEvent(ctx, eventRef)
	if err != nil {
		log.Warn("describing health event failed", zap.Error(err))
		return result, err
	}
	entities, err := s.client.DescribeAffectedEntities(ctx, eventRef)
	if err != nil {
		log.Warn("describing affected entities failed", zap.Error(err))
		return result, err
	}

	accounts := distinctAccounts(entities)
	ref := eventRef
	ticket, err := s.ticketSvc.CreateTicket(ctx, TicketCreateInput{
		CustomerID:       s.resolveCustomer(ctx, accounts),
		Title:            fmt.Sprintf("AWS Health Event: %s - %s", event.Service, event.EventTypeCode),
		Description:      formatHealthDescription(event, entities, s.maxListed),
		Priority:         priorityForCategory(event.Category),
		Source:           domain.TicketSourceAWSHealth,
		ExternalEventRef: &ref,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a concurrent pass; the other writer owns the ticket.
		log.Info("health event ticket created concurrently")
		result.Outcome = OutcomeDuplicate
		if existing, getErr := s.tickets.GetByEventRef(ctx, eventRef); getErr == nil {
			result.TicketID = existing.ID
		}
		return result, nil
	}
	if err != nil {
		return result, err
	}
	result.Outcome = OutcomeCreated
	result.TicketID = ticket.ID
	log.Info("created ticket for health event", zap.String("ticket_id", ticket.ID), zap.Int("accounts", len(accounts)))

	for _, account := range accounts {
		_ = publishEvent(ctx, s.dispatcher, s.logger, events.NewEvent(events.EventHealthEventAffected, ticket.ID, ticket.CreatedAt,
			events.HealthEventAffectedPayload{AccountID: account, EventRef: eventRef, Ticket: *ticket}))
	}
	return result, nil
}

// PollHealthEvents processes every open or upcoming event. Per-event failures
// are recorded and never abort the batch.
func (s *HealthEventService) PollHealthEvents(ctx context.Context) (BatchResult, error) {
	refs, err := s.client.ListOpenOrUpcomingEvents(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		mu     sync.Mutex
		result = BatchResult{Total: len(refs)}
	)
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for _, ref := range refs {
		p.Go(func() {
			res, err := s.ProcessHealthEvent(ctx, ref)
			if err != nil {
				s.logger.Warn("processing health event failed, retrying next cycle",
					zap.String("event_ref", ref), zap.Error(err))
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ref, err))
				s.metrics.RecordReconciled("health_event", "error")
			case res.Outcome == OutcomeDuplicate:
				result.Duplicates++
				s.metrics.RecordReconciled("health_event", "duplicate")
			default:
				result.Succeeded++
				s.metrics.RecordReconciled("health_event", "ok")
			}
		})
	}
	p.Wait()

	s.logger.Info("polled health events",
		zap.Int("total", result.Total),
		zap.Int("created", result.Succeeded),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed))
	return result, nil
}

// resolveCustomer maps the first affected account with a known customer.
func (s *HealthEventService) resolveCustomer(ctx context.Context, accounts []string) string {
	for _, account := range accounts {
		customer, err := s.customers.GetByAWSAccountID(ctx, account)
		if err == nil {
			return customer.ID
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("resolving customer for account failed", zap.String("account_id", account), zap.Error(err))
		}
	}
	return s.defaultCustomerID
}

func priorityForCategory(category domain.HealthEventCategory) domain.TicketPriority {
	switch category {
	case domain.HealthCategoryIssue:
		return domain.TicketPriorityHigh
	case domain.HealthCategoryAccountNotification:
		return domain.TicketPriorityMedium
	case domain.HealthCategoryScheduledChange:
		return domain.TicketPriorityLow
	default:
		return domain.TicketPriorityMedium
	}
}

func distinctAccounts(entities []domain.AffectedEntity) []string {
	seen := map[string]struct{}{}
	var accounts []string
	for _, e := range entities {
		if e.AccountID == "" {
			continue
		}
		if _, ok := seen[e.AccountID]; ok {
			continue
		}
		seen[e.AccountID] = struct{}{}
		accounts = append(accounts, e.AccountID)
	}
	return accounts
}

func formatHealthDescription(event *domain.HealthEvent, entities []domain.AffectedEntity, maxListed int) string {
	description := event.Description
	if description == "" {
		description = "No description available"
	}

	var b strings.Builder
	b.WriteString("AWS Health Event\n\n")
	fmt.Fprintf(&b, "Service: %s\n", event.Service)
	fmt.Fprintf(&b, "Event Type: %s\n", event.EventTypeCode)
	fmt.Fprintf(&b, "Category: %s\n", event.Category)
	fmt.Fprintf(&b, "Region: %s\n", event.Region)
	fmt.Fprintf(&b, "Status: %s\n\n", event.StatusCode)
	fmt.Fprintf(&b, "Description:\n%s\n\n", description)
	fmt.Fprintf(&b, "Affected Resources: %d\n", len(entities))
	for i, e := range entities {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", len(entities)-maxListed)
			break
		}
		fmt.Fprintf(&b, "- %s\n", e.EntityValue)
	}
	if event.StartTime != nil {
		fmt.Fprintf(&b, "\nStart Time: %s", event.StartTime.UTC().Format(time.RFC3339))
	}
	if event.EndTime != nil {
		fmt.Fprintf(&b, "\nEnd Time: %s", event.EndTime.UTC().Format(time.RFC3339))
	}
	return strings.TrimSpace(b.String())
}
