package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/service"
)

// NotificationWorker runs the post-commit notification queue.
type NotificationWorker struct {
	dispatcher *events.AsyncDispatcher
	service    *service.NotificationService
	logger     *zap.Logger
}

// NewNotificationWorker pairs the queue with the handlers that drain it.
func NewNotificationWorker(dispatcher *events.AsyncDispatcher, notificationService *service.NotificationService, logger *zap.Logger) *NotificationWorker {
	return &NotificationWorker{dispatcher: dispatcher, service: notificationService, logger: logger}
}

// Start registers notification handlers and launches the queue workers.
func (w *NotificationWorker) Start() {
	if w.service != nil {
		w.service.RegisterHandlers()
	}
	w.dispatcher.Start()
	w.logger.Info("notification worker started")
}

// Stop drains queued notifications until ctx ends.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	if err := w.dispatcher.Stop(ctx); err != nil {
		w.logger.Warn("notification queue not drained", zap.Error(err))
		return err
	}
	w.logger.Info("notification worker stopped")
	return nil
}
