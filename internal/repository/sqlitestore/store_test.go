package sqlitestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/config"
	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/persistence"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
)

// newTestStores opens an in-memory database with the schema applied.
func newTestStores(t *testing.T) Stores {
	t.Helper()

	db, err := persistence.NewSQLite(context.Background(), config.SQLiteConfig{Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return New(db.DB)
}

func strPtr(s string) *string { return &s }

func newTicket(priority domain.TicketPriority, createdAt time.Time) *domain.Ticket {
	return &domain.Ticket{
		CustomerID: "cust-1",
		Title:      "Database unreachable",
		Priority:   priority,
		Status:     domain.TicketStatusNew,
		Source:     domain.TicketSourceWeb,
		SLADueAt:   createdAt.Add(time.Hour),
		CreatedAt:  createdAt,
	}
}

func TestTicketCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ticket := newTicket(domain.TicketPriorityHigh, created)
	ticket.ExternalCaseRef = strPtr("case-123")
	require.NoError(t, s.Tickets.Create(ctx, ticket))
	require.NotEmpty(t, ticket.ID)

	got, err := s.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Database unreachable", got.Title)
	assert.Equal(t, domain.TicketPriorityHigh, got.Priority)
	assert.True(t, got.SLADueAt.Equal(created.Add(time.Hour)))
	assert.Nil(t, got.ResolvedAt)

	byCase, err := s.Tickets.GetByCaseRef(ctx, "case-123")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, byCase.ID)

	_, err = s.Tickets.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTicketUpdateSetsResolvedAtOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ticket := newTicket(domain.TicketPriorityMedium, created)
	require.NoError(t, s.Tickets.Create(ctx, ticket))

	resolved := domain.TicketStatusResolved
	first := created.Add(30 * time.Minute)
	got, err := s.Tickets.Update(ctx, ticket.ID, domain.TicketPatch{Status: &resolved}, first)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(first))
	assert.True(t, got.UpdatedAt.Equal(first))

	title := "renamed"
	second := created.Add(2 * time.Hour)
	got, err = s.Tickets.Update(ctx, ticket.ID, domain.TicketPatch{Status: &resolved, Title: &title}, second)
	require.NoError(t, err)
	assert.True(t, got.ResolvedAt.Equal(first), "resolved_at must not move")
	assert.True(t, got.UpdatedAt.Equal(second))
	assert.Equal(t, "renamed", got.Title)

	closed := domain.TicketStatusClosed
	got, err = s.Tickets.Update(ctx, ticket.ID, domain.TicketPatch{Status: &closed}, second)
	require.NoError(t, err)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ResolvedAt.Equal(first))

	reopened := domain.TicketStatusInProgress
	got, err = s.Tickets.Update(ctx, ticket.ID, domain.TicketPatch{Status: &reopened}, second.Add(time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, got.ResolvedAt, "terminal timestamps are never cleared")
	assert.NotNil(t, got.ClosedAt)
}

func TestTicketUpdateMissing(t *testing.T) {
	s := newTestStores(t)
	title := "x"
	_, err := s.Tickets.Update(context.Background(), "nope", domain.TicketPatch{Title: &title}, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTicketListOverdueOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	overdue := newTicket(domain.TicketPriorityCritical, base)
	overdue.SLADueAt = base.Add(15 * time.Minute)
	require.NoError(t, s.Tickets.Create(ctx, overdue))

	notDue := newTicket(domain.TicketPriorityLow, base)
	notDue.SLADueAt = base.Add(24 * time.Hour)
	require.NoError(t, s.Tickets.Create(ctx, notDue))

	done := newTicket(domain.TicketPriorityHigh, base)
	done.SLADueAt = base.Add(time.Minute)
	done.Status = domain.TicketStatusResolved
	require.NoError(t, s.Tickets.Create(ctx, done))

	now := base.Add(time.Hour)
	got, err := s.Tickets.List(ctx, repository.TicketFilter{
		ExcludeStatuses: domain.DoneStatuses,
		DueBefore:       &now,
		OrderByDue:      true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

func TestTicketListByCaseRefAndPaging(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ticket := newTicket(domain.TicketPriorityMedium, base.Add(time.Duration(i)*time.Minute))
		if i > 0 {
			ticket.ExternalCaseRef = strPtr("case-" + string(rune('a'+i)))
		}
		require.NoError(t, s.Tickets.Create(ctx, ticket))
	}

	withCase, err := s.Tickets.List(ctx, repository.TicketFilter{HasCaseRef: true})
	require.NoError(t, err)
	assert.Len(t, withCase, 2)

	page, err := s.Tickets.List(ctx, repository.TicketFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt), "newest first")
}

func TestTicketDuplicateEventRef(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	now := time.Now()

	first := newTicket(domain.TicketPriorityHigh, now)
	first.ExternalEventRef = strPtr("arn:aws:health:us-east-1::event/EC2/1")
	require.NoError(t, s.Tickets.Create(ctx, first))

	second := newTicket(domain.TicketPriorityHigh, now)
	second.ExternalEventRef = strPtr("arn:aws:health:us-east-1::event/EC2/1")
	err := s.Tickets.Create(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrDuplicate))

	got, err := s.Tickets.GetByEventRef(ctx, "arn:aws:health:us-east-1::event/EC2/1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestSLAMetrics(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	resolved := domain.TicketStatusResolved

	met := newTicket(domain.TicketPriorityHigh, base)
	require.NoError(t, s.Tickets.Create(ctx, met))
	_, err := s.Tickets.Update(ctx, met.ID, domain.TicketPatch{Status: &resolved}, base.Add(30*time.Minute))
	require.NoError(t, err)

	late := newTicket(domain.TicketPriorityHigh, base)
	require.NoError(t, s.Tickets.Create(ctx, late))
	_, err = s.Tickets.Update(ctx, late.ID, domain.TicketPatch{Status: &resolved}, base.Add(90*time.Minute))
	require.NoError(t, err)

	open := newTicket(domain.TicketPriorityLow, base)
	require.NoError(t, s.Tickets.Create(ctx, open))

	metrics, err := s.Tickets.SLAMetrics(ctx, base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, domain.TicketPriorityHigh, metrics[0].Priority)
	assert.Equal(t, 2, metrics[0].Total)
	assert.Equal(t, 1, metrics[0].Met)
	assert.Equal(t, 1, metrics[0].Violated)
	assert.InDelta(t, 60.0, metrics[0].AvgResolutionMinutes, 0.001)
}

func TestCommentDuplicateExternalRefIgnored(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	ticket := newTicket(domain.TicketPriorityMedium, time.Now())
	require.NoError(t, s.Tickets.Create(ctx, ticket))

	ref := "fp:abc"
	inserted, err := s.Comments.Create(ctx, &domain.TicketComment{TicketID: ticket.ID, Content: "hello", ExternalCommRef: &ref})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Comments.Create(ctx, &domain.TicketComment{TicketID: ticket.ID, Content: "hello", ExternalCommRef: &ref})
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = s.Comments.Create(ctx, &domain.TicketComment{TicketID: ticket.ID, Content: "internal note", IsInternal: true})
	require.NoError(t, err)
	assert.True(t, inserted)

	exists, err := s.Comments.ExistsByExternalRef(ctx, ticket.ID, ref)
	require.NoError(t, err)
	assert.True(t, exists)

	comments, err := s.Comments.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.False(t, comments[0].IsInternal)
	assert.True(t, comments[1].IsInternal)
}

func TestPolicyUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)

	require.NoError(t, s.Policies.Upsert(ctx, domain.SLATarget{
		Priority: domain.TicketPriorityCritical, ResponseTimeMinutes: 15, ResolutionTimeHours: 4,
	}))
	require.NoError(t, s.Policies.Upsert(ctx, domain.SLATarget{
		Priority: domain.TicketPriorityCritical, ResponseTimeMinutes: 10, ResolutionTimeHours: 2, Description: "tighter",
	}))

	targets, err := s.Policies.List(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, 10, targets[0].ResponseTimeMinutes)
	assert.Equal(t, "tighter", targets[0].Description)
}

func TestCustomerLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)

	require.NoError(t, s.Customers.Create(ctx, &domain.Customer{
		ID: "cust-1", Name: "Acme", Email: "ops@acme.test", AWSAccountID: strPtr("123456789012"),
	}))

	got, err := s.Customers.GetByAWSAccountID(ctx, "123456789012")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.ID)

	_, err = s.Customers.GetByID(ctx, "cust-2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestHistoryAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ticket := newTicket(domain.TicketPriorityHigh, base)
	require.NoError(t, s.Tickets.Create(ctx, ticket))

	require.NoError(t, s.History.Create(ctx))
	require.NoError(t, s.History.Create(ctx,
		domain.TicketHistory{TicketID: ticket.ID, Actor: "agent-1", ChangeType: domain.ChangeTypeStatus,
			OldValue: "new", NewValue: "in_progress", CreatedAt: base.Add(time.Minute)},
		domain.TicketHistory{TicketID: ticket.ID, Actor: "agent-1", ChangeType: domain.ChangeTypePriority,
			OldValue: "high", NewValue: "critical", CreatedAt: base.Add(time.Minute)},
	))

	entries, err := s.History.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ChangeTypeStatus, entries[0].ChangeType)
	assert.Equal(t, domain.ChangeTypePriority, entries[1].ChangeType)
	assert.NotEmpty(t, entries[0].ID)
	assert.True(t, entries[0].CreatedAt.Equal(base.Add(time.Minute)))

	err = s.History.Create(ctx, domain.TicketHistory{TicketID: "missing", Actor: "x", ChangeType: domain.ChangeTypeStatus, CreatedAt: base})
	assert.Error(t, err, "foreign key enforced")
}
