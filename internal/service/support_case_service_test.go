package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/observability"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

func newSupportCaseService(h *harness, client *fakeCaseClient) *SupportCaseService {
	return NewSupportCaseService(SupportCaseDependencies{
		TicketRepo:    h.tickets,
		CommentRepo:   h.comments,
		TicketService: h.ticketSvc,
		Client:        client,
		Metrics:       observability.NewMetrics(),
		Logger:        zap.NewNop(),
		Concurrency:   2,
	})
}

func createCaseTicket(t *testing.T, h *harness, caseRef string) *domain.Ticket {
	t.Helper()
	ticket, err := h.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		CustomerID:      "c",
		Title:           "linked " + caseRef,
		Priority:        domain.TicketPriorityMedium,
		Source:          domain.TicketSourceAWSSupport,
		ExternalCaseRef: strPtr(caseRef),
	})
	require.NoError(t, err)
	return ticket
}

func TestSyncCommunicationsIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	client := &fakeCaseClient{comms: map[string][]domain.CaseCommunication{
		"case-1": {
			{ID: "att-1", CaseRef: "case-1", Body: "first", SubmittedBy: "aws", TimeCreated: "2026-05-04T08:00:00Z"},
			{CaseRef: "case-1", Body: "no attachment", SubmittedBy: "customer", TimeCreated: "2026-05-04T08:05:00Z"},
		},
	}}
	svc := newSupportCaseService(h, client)
	ticket := createCaseTicket(t, h, "case-1")

	first, err := svc.SyncCommunications(ctx, "case-1", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	second, err := svc.SyncCommunications(ctx, "case-1", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second)

	comments, err := h.ticketSvc.ListComments(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.False(t, comments[0].IsInternal)
	assert.Equal(t, "att-1", *comments[0].ExternalCommRef)
	assert.Contains(t, *comments[1].ExternalCommRef, fingerprintPrefix)
}

func TestCommunicationKeyDistinguishesMessages(t *testing.T) {
	a := domain.CaseCommunication{Body: "same", SubmittedBy: "x", TimeCreated: "t1"}
	b := domain.CaseCommunication{Body: "same", SubmittedBy: "x", TimeCreated: "t2"}
	assert.NotEqual(t, communicationKey("case-1", a), communicationKey("case-1", b))
	assert.Equal(t, communicationKey("case-1", a), communicationKey("case-1", a))
	assert.NotEqual(t, communicationKey("case-1", a), communicationKey("case-2", a))
	assert.Equal(t, "att-9", communicationKey("case-1", domain.CaseCommunication{ID: "att-9"}))
}

func TestSyncCaseCopiesFieldsOnlyOnChange(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	client := &fakeCaseClient{cases: map[string]domain.ExternalCase{
		"case-1": {Ref: "case-1", Status: "pending-customer-action", Subject: "EC2 limits", SeverityCode: "normal"},
	}}
	svc := newSupportCaseService(h, client)
	ticket := createCaseTicket(t, h, "case-1")

	result, err := svc.SyncCase(ctx, "case-1")
	require.NoError(t, err)
	assert.True(t, result.Updated)
	assert.Equal(t, ticket.ID, result.TicketID)

	stored, err := h.ticketSvc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending-customer-action", stored.ExternalCaseStatus)
	assert.Equal(t, "EC2 limits", stored.ExternalCaseSubject)
	assert.Equal(t, "normal", stored.ExternalCaseSeverity)
	assert.Equal(t, domain.TicketStatusNew, stored.Status)

	result, err = svc.SyncCase(ctx, "case-1")
	require.NoError(t, err)
	assert.False(t, result.Updated)
}

func TestSyncCaseWithoutTicketIsNoop(t *testing.T) {
	h := newHarness()
	client := &fakeCaseClient{cases: map[string]domain.ExternalCase{"case-9": {Ref: "case-9", Status: "opened"}}}
	svc := newSupportCaseService(h, client)

	result, err := svc.SyncCase(context.Background(), "case-9")
	require.NoError(t, err)
	assert.Empty(t, result.TicketID)
	assert.False(t, result.Updated)
}

func TestSyncCaseMissingCase(t *testing.T) {
	h := newHarness()
	svc := newSupportCaseService(h, &fakeCaseClient{})

	_, err := svc.SyncCase(context.Background(), "case-x")
	assert.ErrorIs(t, err, apperrors.ErrCaseNotFound)
}

func TestPollAllActiveCasesContinuesPastFailure(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	client := &fakeCaseClient{
		cases: map[string]domain.ExternalCase{
			"case-1": {Ref: "case-1", Status: "resolved"},
			"case-3": {Ref: "case-3", Status: "resolved"},
		},
		fail: map[string]error{
			"case-2": apperrors.NewExternalUnavailable("aws_support", errors.New("throttled")),
		},
	}
	svc := newSupportCaseService(h, client)
	first := createCaseTicket(t, h, "case-1")
	createCaseTicket(t, h, "case-2")
	third := createCaseTicket(t, h, "case-3")

	done := createCaseTicket(t, h, "case-4")
	_, err := h.ticketSvc.UpdateTicket(ctx, done.ID, domain.TicketPatch{Status: statusPtr(domain.TicketStatusClosed)})
	require.NoError(t, err)

	result, err := svc.PollAllActiveCases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "case-2")

	for _, id := range []string{first.ID, third.ID} {
		stored, err := h.ticketSvc.GetTicket(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "resolved", stored.ExternalCaseStatus)
	}
}

func TestPollAllActiveCasesLogsItemFailure(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	client := &fakeCaseClient{
		cases: map[string]domain.ExternalCase{"case-1": {Ref: "case-1", Status: "opened"}},
		commsFail: map[string]error{
			"case-1": apperrors.NewExternalUnavailable("aws_support", context.DeadlineExceeded),
		},
	}
	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewSupportCaseService(SupportCaseDependencies{
		TicketRepo:    h.tickets,
		CommentRepo:   h.comments,
		TicketService: h.ticketSvc,
		Client:        client,
		Metrics:       observability.NewMetrics(),
		Logger:        zap.New(core),
	})
	createCaseTicket(t, h, "case-1")

	result, err := svc.PollAllActiveCases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Error(t, result.Err())

	failures := logs.FilterField(zap.String("case_ref", "case-1")).FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].ContextMap()["error"], "context deadline exceeded")
}

func TestBatchResultErr(t *testing.T) {
	assert.NoError(t, BatchResult{Total: 2, Succeeded: 1, Duplicates: 1}.Err())

	err := BatchResult{Total: 4, Succeeded: 2, Failed: 2, Errors: []string{"case-2: throttled", "case-3: throttled"}}.Err()
	require.Error(t, err)
	assert.Equal(t, "2 of 4 items failed, first: case-2: throttled", err.Error())
}

func TestCreateExternalCaseLinksTicket(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	client := &fakeCaseClient{}
	svc := newSupportCaseService(h, client)
	ticket, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{CustomerID: "c", Title: "x", Priority: domain.TicketPriorityHigh})
	require.NoError(t, err)

	linked, err := svc.CreateExternalCase(ctx, ticket.ID, domain.NewExternalCase{Subject: "Need help", Body: "details", SeverityCode: "high"})
	require.NoError(t, err)
	require.NotNil(t, linked.ExternalCaseRef)
	assert.Equal(t, "Need help", linked.ExternalCaseSubject)
	require.Len(t, client.created, 1)

	_, err = svc.CreateExternalCase(ctx, ticket.ID, domain.NewExternalCase{Subject: "", Body: "details"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.CreateExternalCase(ctx, "missing", domain.NewExternalCase{Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Len(t, client.created, 1)
}

func TestAddCaseCommunication(t *testing.T) {
	h := newHarness()
	client := &fakeCaseClient{}
	svc := newSupportCaseService(h, client)

	require.NoError(t, svc.AddCaseCommunication(context.Background(), "case-1", "thanks"))
	assert.Equal(t, []string{"case-1:thanks"}, client.replies)

	err := svc.AddCaseCommunication(context.Background(), "case-1", "  ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
