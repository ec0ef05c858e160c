package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/observability"
)

// NotificationService turns domain events into notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier Notifier, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.notifier == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.handleTicketUpdated)
	n.dispatcher.Subscribe(events.EventSLAViolation, n.handleSLAViolation)
	n.dispatcher.Subscribe(events.EventHealthEventAffected, n.handleHealthEventAffected)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	return n.record(event, n.notifier.NotifyCreated(ctx, payload.Ticket))
}

func (n *NotificationService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketUpdatedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	return n.record(event, n.notifier.NotifyUpdated(ctx, payload.Ticket, payload.Changed))
}

func (n *NotificationService) handleSLAViolation(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAViolationPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	violation := domain.SLAViolation{Ticket: payload.Ticket, MinutesOverdue: payload.MinutesOverdue}
	return n.record(event, n.notifier.NotifySLAViolation(ctx, violation))
}

func (n *NotificationService) handleHealthEventAffected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.HealthEventAffectedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	return n.record(event, n.notifier.NotifyAffected(ctx, payload.AccountID, payload.Ticket))
}

func (n *NotificationService) record(event events.Event, err error) error {
	if err != nil {
		n.metrics.RecordNotification(string(event.Type), "error")
		return fmt.Errorf("notify %s: %w", event.Type, err)
	}
	n.metrics.RecordNotification(string(event.Type), "ok")
	n.logger.Debug("notification sent",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID))
	return nil
}

func unexpectedPayload(event events.Event) error {
	return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
}
