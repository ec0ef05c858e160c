package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/config"
	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
	"github.com/spec-kit/sla-ticket-service/internal/sla"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

type memTickets struct {
	mu      sync.Mutex
	byID    map[string]*domain.Ticket
	creates int
}

func newMemTickets() *memTickets {
	return &memTickets{byID: map[string]*domain.Ticket{}}
}

func (m *memTickets) Create(_ context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ExternalEventRef != nil {
		for _, existing := range m.byID {
			if existing.ExternalEventRef != nil && *existing.ExternalEventRef == *t.ExternalEventRef {
				return repository.ErrDuplicate
			}
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	cp := *t
	m.byID[t.ID] = &cp
	m.creates++
	return nil
}

func (m *memTickets) Update(_ context.Context, id string, p domain.TicketPatch, now time.Time) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.AssignedTo != nil {
		t.AssignedTo = p.AssignedTo
	}
	if p.ExternalCaseRef != nil {
		t.ExternalCaseRef = p.ExternalCaseRef
	}
	if p.ExternalCaseStatus != nil {
		t.ExternalCaseStatus = *p.ExternalCaseStatus
	}
	if p.ExternalCaseSubject != nil {
		t.ExternalCaseSubject = *p.ExternalCaseSubject
	}
	if p.ExternalCaseSeverity != nil {
		t.ExternalCaseSeverity = *p.ExternalCaseSeverity
	}
	if p.Status != nil {
		t.Status = *p.Status
		if t.Status == domain.TicketStatusResolved && t.ResolvedAt == nil {
			at := now
			t.ResolvedAt = &at
		}
		if t.Status == domain.TicketStatusClosed && t.ClosedAt == nil {
			at := now
			t.ClosedAt = &at
		}
	}
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (m *memTickets) get(pred func(*domain.Ticket) bool) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byID {
		if pred(t) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	return m.get(func(t *domain.Ticket) bool { return t.ID == id })
}

func (m *memTickets) GetByCaseRef(_ context.Context, ref string) (*domain.Ticket, error) {
	return m.get(func(t *domain.Ticket) bool { return t.ExternalCaseRef != nil && *t.ExternalCaseRef == ref })
}

func (m *memTickets) GetByEventRef(_ context.Context, ref string) (*domain.Ticket, error) {
	return m.get(func(t *domain.Ticket) bool { return t.ExternalEventRef != nil && *t.ExternalEventRef == ref })
}

func (m *memTickets) List(_ context.Context, f repository.TicketFilter) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contains := func(list []domain.TicketStatus, s domain.TicketStatus) bool {
		for _, v := range list {
			if v == s {
				return true
			}
		}
		return false
	}
	var out []domain.Ticket
	for _, t := range m.byID {
		if f.CustomerID != nil && t.CustomerID != *f.CustomerID {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
			continue
		}
		if contains(f.ExcludeStatuses, t.Status) {
			continue
		}
		if f.DueBefore != nil && !t.SLADueAt.Before(*f.DueBefore) {
			continue
		}
		if f.HasCaseRef && (t.ExternalCaseRef == nil || *t.ExternalCaseRef == "") {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.OrderByDue {
			return out[i].SLADueAt.Before(out[j].SLADueAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memTickets) SLAMetrics(context.Context, time.Time, time.Time) ([]domain.SLAMetric, error) {
	return []domain.SLAMetric{
		{Priority: domain.TicketPriorityHigh, Total: 4, Met: 3, Violated: 1, AvgResolutionMinutes: 40},
		{Priority: domain.TicketPriorityLow, Total: 1, Met: 0, Violated: 1, AvgResolutionMinutes: 100},
	}, nil
}

func (m *memTickets) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memComments struct {
	mu   sync.Mutex
	rows []domain.TicketComment
}

func (m *memComments) Create(_ context.Context, c *domain.TicketComment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ExternalCommRef != nil {
		for _, r := range m.rows {
			if r.TicketID == c.TicketID && r.ExternalCommRef != nil && *r.ExternalCommRef == *c.ExternalCommRef {
				return false, nil
			}
		}
	}
	c.ID = uuid.NewString()
	m.rows = append(m.rows, *c)
	return true, nil
}

func (m *memComments) ExistsByExternalRef(_ context.Context, ticketID, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.TicketID == ticketID && r.ExternalCommRef != nil && *r.ExternalCommRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *memComments) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TicketComment
	for _, r := range m.rows {
		if r.TicketID == ticketID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memPolicies struct {
	rows map[domain.TicketPriority]domain.SLATarget
}

func (m *memPolicies) List(context.Context) ([]domain.SLATarget, error) {
	var out []domain.SLATarget
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memPolicies) Upsert(_ context.Context, t domain.SLATarget) error {
	if m.rows == nil {
		m.rows = map[domain.TicketPriority]domain.SLATarget{}
	}
	m.rows[t.Priority] = t
	return nil
}

type memCustomers struct {
	byAccount map[string]domain.Customer
}

func (m *memCustomers) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	for _, c := range m.byAccount {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCustomers) GetByAWSAccountID(_ context.Context, account string) (*domain.Customer, error) {
	if c, ok := m.byAccount[account]; ok {
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

// recordingDispatcher captures published events in order.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) ofType(t events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, e := range d.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeCaseClient struct {
	mu      sync.Mutex
	cases     map[string]domain.ExternalCase
	comms     map[string][]domain.CaseCommunication
	fail      map[string]error
	commsFail map[string]error
	created   []domain.NewExternalCase
	replies   []string
}

func (f *fakeCaseClient) DescribeCase(_ context.Context, ref string) (*domain.ExternalCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[ref]; ok {
		return nil, err
	}
	c, ok := f.cases[ref]
	if !ok {
		return nil, apperrors.NewCaseNotFound(ref)
	}
	return &c, nil
}

func (f *fakeCaseClient) DescribeCommunications(_ context.Context, ref string) ([]domain.CaseCommunication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.commsFail[ref]; ok {
		return nil, err
	}
	return append([]domain.CaseCommunication(nil), f.comms[ref]...), nil
}

func (f *fakeCaseClient) CreateCase(_ context.Context, in domain.NewExternalCase) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return "case-" + uuid.NewString()[:8], nil
}

func (f *fakeCaseClient) AddCommunication(_ context.Context, ref, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, ref+":"+body)
	return nil
}

type fakeHealthClient struct {
	mu        sync.Mutex
	events    map[string]domain.HealthEvent
	entities  map[string][]domain.AffectedEntity
	open      []string
	describes int
}

func (f *fakeHealthClient) DescribeEvent(_ context.Context, ref string) (*domain.HealthEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describes++
	e, ok := f.events[ref]
	if !ok {
		return nil, apperrors.NewEventNotFound(ref)
	}
	return &e, nil
}

func (f *fakeHealthClient) DescribeAffectedEntities(_ context.Context, ref string) ([]domain.AffectedEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entities[ref], nil
}

func (f *fakeHealthClient) ListOpenOrUpcomingEvents(context.Context) ([]string, error) {
	return f.open, nil
}

// fixedClock returns a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memHistory struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (m *memHistory) Create(_ context.Context, entries ...domain.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range m.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type harness struct {
	clock      *fixedClock
	tickets    *memTickets
	comments   *memComments
	history    *memHistory
	policies   *memPolicies
	dispatcher *recordingDispatcher
	calculator *sla.Calculator
	ticketSvc  *TicketService
	slaSvc     *SLAService
}

func defaultSLAConfig() config.SLAConfig {
	return config.SLAConfig{
		CriticalResponseMinutes: 15, HighResponseMinutes: 60, MediumResponseMinutes: 240, LowResponseMinutes: 1440,
		CriticalResolutionHours: 4, HighResolutionHours: 8, MediumResolutionHours: 24, LowResolutionHours: 72,
	}
}

func newHarness() *harness {
	h := &harness{
		clock:      &fixedClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		tickets:    newMemTickets(),
		comments:   &memComments{},
		history:    &memHistory{},
		policies:   &memPolicies{},
		dispatcher: &recordingDispatcher{},
		calculator: sla.NewCalculator(sla.DefaultPolicy(defaultSLAConfig())),
	}
	h.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo:  h.tickets,
		CommentRepo: h.comments,
		HistoryRepo: h.history,
		Calculator:  h.calculator,
		Dispatcher:  h.dispatcher,
		Logger:      zap.NewNop(),
		Clock:       h.clock.Now,
	})
	h.slaSvc = NewSLAService(SLADependencies{
		TicketRepo: h.tickets,
		PolicyRepo: h.policies,
		Calculator: h.calculator,
		Dispatcher: h.dispatcher,
		Logger:     zap.NewNop(),
		Clock:      h.clock.Now,
	})
	return h
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }
