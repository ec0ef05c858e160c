package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
)

// WebhookNotifier posts a JSON document per notification to a fixed URL.
// Server errors and 429s are retried with a short backoff.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
	}
}

type webhookTicket struct {
	ID              string     `json:"id"`
	CustomerID      string     `json:"customer_id"`
	Title           string     `json:"title"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	Source          string     `json:"source"`
	ExternalCaseRef *string    `json:"external_case_ref,omitempty"`
	SLADueAt        time.Time  `json:"sla_due_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

type webhookBody struct {
	Event          string        `json:"event"`
	Ticket         webhookTicket `json:"ticket"`
	Changed        []string      `json:"changed,omitempty"`
	MinutesOverdue float64       `json:"minutes_overdue,omitempty"`
	AccountID      string        `json:"account_id,omitempty"`
}

func toWebhookTicket(t domain.Ticket) webhookTicket {
	return webhookTicket{
		ID:              t.ID,
		CustomerID:      t.CustomerID,
		Title:           t.Title,
		Priority:        string(t.Priority),
		Status:          string(t.Status),
		Source:          string(t.Source),
		ExternalCaseRef: t.ExternalCaseRef,
		SLADueAt:        t.SLADueAt,
		UpdatedAt:       t.UpdatedAt,
		ResolvedAt:      t.ResolvedAt,
	}
}

// NotifyCreated posts a ticket_created document.
func (w *WebhookNotifier) NotifyCreated(ctx context.Context, ticket domain.Ticket) error {
	return w.post(ctx, webhookBody{Event: "ticket_created", Ticket: toWebhookTicket(ticket)})
}

// NotifyUpdated posts a ticket_updated document.
func (w *WebhookNotifier) NotifyUpdated(ctx context.Context, ticket domain.Ticket, changed []string) error {
	return w.post(ctx, webhookBody{Event: "ticket_updated", Ticket: toWebhookTicket(ticket), Changed: changed})
}

// NotifySLAViolation posts an sla_violation document.
func (w *WebhookNotifier) NotifySLAViolation(ctx context.Context, violation domain.SLAViolation) error {
	return w.post(ctx, webhookBody{
		Event:          "sla_violation",
		Ticket:         toWebhookTicket(violation.Ticket),
		MinutesOverdue: violation.MinutesOverdue,
	})
}

// NotifyAffected posts a health_event_affected document for one account.
func (w *WebhookNotifier) NotifyAffected(ctx context.Context, accountID string, ticket domain.Ticket) error {
	return w.post(ctx, webhookBody{Event: "health_event_affected", Ticket: toWebhookTicket(ticket), AccountID: accountID})
}

func (w *WebhookNotifier) post(ctx context.Context, body webhookBody) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling webhook body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("posting webhook: %w", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("webhook returned %d", resp.StatusCode)
			continue
		default:
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", w.maxRetries+1, lastErr)
}
