package domain

import (
	"context"
	"time"
)

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus         TicketChangeType = "status_change"
	ChangeTypePriority       TicketChangeType = "priority_change"
	ChangeTypeAssignee       TicketChangeType = "assignee_change"
	ChangeTypeExternalStatus TicketChangeType = "external_status_change"
)

// SystemActor attributes changes made by background reconcilers.
const SystemActor = "system"

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string
	TicketID   string
	Actor      string
	ChangeType TicketChangeType
	OldValue   string
	NewValue   string
	CreatedAt  time.Time
}

type actorKey struct{}

// WithActor records who is acting on ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting subject, or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
