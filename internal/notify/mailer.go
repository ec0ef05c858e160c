package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
)

// Mailer emails customers about their tickets and operations about SLA breaches.
type Mailer struct {
	sender    EmailSender
	customers repository.CustomerRepository
	opsEmail  string
	logger    *zap.Logger
}

// NewMailer builds a Mailer. opsEmail receives violation alerts.
func NewMailer(sender EmailSender, customers repository.CustomerRepository, opsEmail string, logger *zap.Logger) *Mailer {
	return &Mailer{sender: sender, customers: customers, opsEmail: opsEmail, logger: logger}
}

// NotifyCreated tells the customer their ticket was opened.
func (m *Mailer) NotifyCreated(ctx context.Context, ticket domain.Ticket) error {
	subject := fmt.Sprintf("[Ticket #%s] %s", ticket.ID, ticket.Title)
	body := fmt.Sprintf(`Hello,

Your ticket has been created.

Ticket: %s
Title: %s
Priority: %s
Response due by: %s

Our support team will get back to you as soon as possible.`,
		ticket.ID, ticket.Title, ticket.Priority, ticket.SLADueAt.UTC().Format(time.RFC1123))
	return m.mailCustomer(ctx, ticket.CustomerID, subject, body)
}

// NotifyUpdated tells the customer their ticket changed.
func (m *Mailer) NotifyUpdated(ctx context.Context, ticket domain.Ticket, changed []string) error {
	subject := fmt.Sprintf("[Ticket #%s] Status update", ticket.ID)
	body := fmt.Sprintf(`Hello,

Your ticket has been updated.

Ticket: %s
Current status: %s
Changed: %s
Updated at: %s`,
		ticket.ID, ticket.Status, strings.Join(changed, ", "), ticket.UpdatedAt.UTC().Format(time.RFC1123))
	return m.mailCustomer(ctx, ticket.CustomerID, subject, body)
}

// NotifySLAViolation alerts operations about an overdue ticket.
func (m *Mailer) NotifySLAViolation(ctx context.Context, violation domain.SLAViolation) error {
	if m.opsEmail == "" {
		return nil
	}
	t := violation.Ticket
	subject := fmt.Sprintf("[URGENT] Ticket #%s breached its SLA", t.ID)
	body := fmt.Sprintf(`Ticket #%s is past its SLA response deadline.

Title: %s
Priority: %s
Due at: %s (%s)
Status: %s

Please handle this ticket immediately.`,
		t.ID, t.Title, t.Priority, t.SLADueAt.UTC().Format(time.RFC1123), overdueText(t.SLADueAt, violation.MinutesOverdue), t.Status)
	return m.sender.SendEmail(ctx, []string{m.opsEmail}, subject, body)
}

// NotifyAffected emails the customer owning accountID, or operations when
// the account is unknown.
func (m *Mailer) NotifyAffected(ctx context.Context, accountID string, ticket domain.Ticket) error {
	subject := fmt.Sprintf("[Ticket #%s] AWS Health event affecting account %s", ticket.ID, accountID)
	body := fmt.Sprintf(`An AWS Health event affects resources in account %s.

%s

%s`, accountID, ticket.Title, ticket.Description)

	customer, err := m.customers.GetByAWSAccountID(ctx, accountID)
	switch {
	case err == nil && customer.Email != "":
		return m.sender.SendEmail(ctx, []string{customer.Email}, subject, body)
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("resolving account %s: %w", accountID, err)
	}
	if m.opsEmail == "" {
		return nil
	}
	return m.sender.SendEmail(ctx, []string{m.opsEmail}, subject, body)
}

func (m *Mailer) mailCustomer(ctx context.Context, customerID, subject, body string) error {
	customer, err := m.customers.GetByID(ctx, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		m.logger.Debug("no customer record, skipping email", zap.String("customer_id", customerID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving customer %s: %w", customerID, err)
	}
	if customer.Email == "" {
		return nil
	}
	return m.sender.SendEmail(ctx, []string{customer.Email}, subject, body)
}

// overdueText renders e.g. "42 minutes overdue" or "3 hours overdue".
func overdueText(dueAt time.Time, minutesOverdue float64) string {
	late := dueAt.Add(time.Duration(minutesOverdue * float64(time.Minute)))
	return humanize.RelTime(dueAt, late, "overdue", "early")
}
