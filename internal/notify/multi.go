package notify

import (
	"context"
	"errors"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// Channel is one notification transport.
type Channel interface {
	NotifyCreated(ctx context.Context, ticket domain.Ticket) error
	NotifyUpdated(ctx context.Context, ticket domain.Ticket, changed []string) error
	NotifySLAViolation(ctx context.Context, violation domain.SLAViolation) error
	NotifyAffected(ctx context.Context, accountID string, ticket domain.Ticket) error
}

// Multi fans a notification out to every channel. A failing channel does
// not stop the others; their errors are joined.
type Multi []Channel

// NotifyCreated implements Channel.
func (m Multi) NotifyCreated(ctx context.Context, ticket domain.Ticket) error {
	return m.each(func(c Channel) error { return c.NotifyCreated(ctx, ticket) })
}

// NotifyUpdated implements Channel.
func (m Multi) NotifyUpdated(ctx context.Context, ticket domain.Ticket, changed []string) error {
	return m.each(func(c Channel) error { return c.NotifyUpdated(ctx, ticket, changed) })
}

// NotifySLAViolation implements Channel.
func (m Multi) NotifySLAViolation(ctx context.Context, violation domain.SLAViolation) error {
	return m.each(func(c Channel) error { return c.NotifySLAViolation(ctx, violation) })
}

// NotifyAffected implements Channel.
func (m Multi) NotifyAffected(ctx context.Context, accountID string, ticket domain.Ticket) error {
	return m.each(func(c Channel) error { return c.NotifyAffected(ctx, accountID, ticket) })
}

func (m Multi) each(fn func(Channel) error) error {
	var errs []error
	for _, c := range m {
		if err := fn(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
