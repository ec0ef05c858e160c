package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

func TestScanFlagsOpenOverdueTicketOnly(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	now := h.clock.Now()

	overdue := &domain.Ticket{
		ID: "t-1", CustomerID: "c", Title: "x", Priority: domain.TicketPriorityHigh,
		Status: domain.TicketStatusInProgress, SLADueAt: now.Add(-time.Minute),
	}
	require.NoError(t, h.tickets.Create(ctx, overdue))

	result, err := h.slaSvc.ScanForViolations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Violations)
	assert.Equal(t, 1, result.Published)
	violations := h.dispatcher.ofType(events.EventSLAViolation)
	require.Len(t, violations, 1)
	payload := violations[0].Payload.(events.SLAViolationPayload)
	assert.Equal(t, "t-1", payload.Ticket.ID)
	assert.InDelta(t, 1.0, payload.MinutesOverdue, 0.001)

	_, err = h.tickets.Update(ctx, "t-1", domain.TicketPatch{Status: statusPtr(domain.TicketStatusResolved)}, now)
	require.NoError(t, err)
	result, err = h.slaSvc.ScanForViolations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Violations)
	assert.Equal(t, 0, result.Published)
	assert.Len(t, h.dispatcher.ofType(events.EventSLAViolation), 1)
}

func TestScanRenotifiesOnEveryRun(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	now := h.clock.Now()
	require.NoError(t, h.tickets.Create(ctx, &domain.Ticket{
		ID: "t-1", CustomerID: "c", Title: "x", Priority: domain.TicketPriorityLow,
		Status: domain.TicketStatusWaitingCustomer, SLADueAt: now.Add(-time.Hour),
	}))

	for i := 0; i < 3; i++ {
		_, err := h.slaSvc.ScanForViolations(ctx, now.Add(time.Duration(i)*5*time.Minute))
		require.NoError(t, err)
	}
	assert.Len(t, h.dispatcher.ofType(events.EventSLAViolation), 3)
}

func TestEndToEndHighTicketResolvedInTimeNeverFlagged(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	start := h.clock.Now()

	ticket, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{CustomerID: "c", Title: "x", Priority: domain.TicketPriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, start.Add(60*time.Minute), ticket.SLADueAt)

	h.clock.Advance(30 * time.Minute)
	_, err = h.ticketSvc.UpdateTicket(ctx, ticket.ID, domain.TicketPatch{Status: statusPtr(domain.TicketStatusResolved)})
	require.NoError(t, err)

	for _, offset := range []time.Duration{59 * time.Minute, 61 * time.Minute, 24 * time.Hour} {
		result, err := h.slaSvc.ScanForViolations(ctx, start.Add(offset))
		require.NoError(t, err)
		assert.Zero(t, result.Violations)
	}
	assert.Empty(t, h.dispatcher.ofType(events.EventSLAViolation))
}

func TestUpdatePolicyAffectsOnlyLaterTickets(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	before, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{CustomerID: "c", Title: "x", Priority: domain.TicketPriorityCritical})
	require.NoError(t, err)

	target, err := h.slaSvc.UpdatePolicy(ctx, SLAPolicyUpdate{
		Priority: domain.TicketPriorityCritical, ResponseTimeMinutes: 5, ResolutionTimeHours: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Production down or severe business impact", target.Description)
	assert.Equal(t, 5, h.policies.rows[domain.TicketPriorityCritical].ResponseTimeMinutes)

	after, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{CustomerID: "c", Title: "y", Priority: domain.TicketPriorityCritical})
	require.NoError(t, err)

	stored, err := h.ticketSvc.GetTicket(ctx, before.ID)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), stored.SLADueAt)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute), after.SLADueAt)
}

func TestUpdatePolicyValidation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.slaSvc.UpdatePolicy(ctx, SLAPolicyUpdate{Priority: "p1", ResponseTimeMinutes: 5, ResolutionTimeHours: 1})
	assert.ErrorIs(t, err, apperrors.ErrUnknownPriority)

	_, err = h.slaSvc.UpdatePolicy(ctx, SLAPolicyUpdate{Priority: domain.TicketPriorityLow, ResponseTimeMinutes: 0, ResolutionTimeHours: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, h.policies.rows)
}

func TestLoadPolicyOverlaysPersistedRows(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.policies.Upsert(ctx, domain.SLATarget{
		Priority: domain.TicketPriorityLow, ResponseTimeMinutes: 30, ResolutionTimeHours: 10,
	}))

	require.NoError(t, h.slaSvc.LoadPolicy(ctx))
	low, ok := h.slaSvc.Policy().Target(domain.TicketPriorityLow)
	require.True(t, ok)
	assert.Equal(t, 30, low.ResponseTimeMinutes)
	critical, ok := h.slaSvc.Policy().Target(domain.TicketPriorityCritical)
	require.True(t, ok)
	assert.Equal(t, 15, critical.ResponseTimeMinutes)
}

func TestReportAggregatesOverall(t *testing.T) {
	h := newHarness()
	now := h.clock.Now()

	report, err := h.slaSvc.Report(context.Background(), now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Overall.Total)
	assert.Equal(t, 3, report.Overall.Met)
	assert.Equal(t, 2, report.Overall.Violated)
	assert.InDelta(t, 52.0, report.Overall.AvgResolutionMinutes, 0.001)
	assert.InDelta(t, 60.0, report.Overall.ComplianceRate(), 0.001)

	_, err = h.slaSvc.Metrics(context.Background(), now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
