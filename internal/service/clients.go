package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

// CaseClient is the case-management system (AWS Support).
type CaseClient interface {
	// DescribeCase returns apperrors.ErrCaseNotFound when the case does not exist.
	DescribeCase(ctx context.Context, caseRef string) (*domain.ExternalCase, error)
	// DescribeCommunications returns the full communication history, oldest first.
	DescribeCommunications(ctx context.Context, caseRef string) ([]domain.CaseCommunication, error)
	CreateCase(ctx context.Context, input domain.NewExternalCase) (string, error)
	AddCommunication(ctx context.Context, caseRef, body string) error
}

// HealthClient is the infrastructure health feed (AWS Health).
type HealthClient interface {
	// DescribeEvent returns apperrors.ErrEventNotFound when the event does not exist.
	DescribeEvent(ctx context.Context, eventRef string) (*domain.HealthEvent, error)
	DescribeAffectedEntities(ctx context.Context, eventRef string) ([]domain.AffectedEntity, error)
	// ListOpenOrUpcomingEvents returns refs of events with status open or upcoming.
	ListOpenOrUpcomingEvents(ctx context.Context) ([]string, error)
}

// Notifier delivers notifications. Implementations may fail; callers log only.
type Notifier interface {
	NotifyCreated(ctx context.Context, ticket domain.Ticket) error
	NotifyUpdated(ctx context.Context, ticket domain.Ticket, changed []string) error
	NotifySLAViolation(ctx context.Context, violation domain.SLAViolation) error
	NotifyAffected(ctx context.Context, accountID string, ticket domain.Ticket) error
}

// BatchResult summarises a reconciliation pass. Failures never abort a batch.
type BatchResult struct {
	Total      int      `json:"total"`
	Succeeded  int      `json:"succeeded"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// Err reports a pass with failed items as an error so the run is not
// recorded as healthy.
func (r BatchResult) Err() error {
	if r.Failed == 0 {
		return nil
	}
	if len(r.Errors) == 0 {
		return fmt.Errorf("%d of %d items failed", r.Failed, r.Total)
	}
	return fmt.Errorf("%d of %d items failed, first: %s", r.Failed, r.Total, r.Errors[0])
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) error {
	if dispatcher == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("publishing event failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return err
	}
	return nil
}

func notFoundOr(err error, resource string, details map[string]any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, details)
	}
	return err
}
