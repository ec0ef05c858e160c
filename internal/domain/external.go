package domain

import "time"

// ExternalCase is a transient view of a case in the case-management system.
type ExternalCase struct {
	Ref          string
	Status       string
	Subject      string
	SeverityCode string
}

// CaseCommunication is one message in an external case's history.
// ID is empty when the source exposes no stable per-message identifier.
type CaseCommunication struct {
	ID          string
	CaseRef     string
	Body        string
	SubmittedBy string
	TimeCreated string
}

// NewExternalCase describes a case to be opened.
type NewExternalCase struct {
	Subject      string
	Body         string
	SeverityCode string
}

// HealthEventCategory mirrors the health feed's event type category.
type HealthEventCategory string

const (
	HealthCategoryIssue               HealthEventCategory = "issue"
	HealthCategoryAccountNotification HealthEventCategory = "accountNotification"
	HealthCategoryScheduledChange     HealthEventCategory = "scheduledChange"
	HealthCategoryInvestigation       HealthEventCategory = "investigation"
)

// HealthEvent is a transient view of an infrastructure health event.
type HealthEvent struct {
	Ref           string
	Service       string
	EventTypeCode string
	Category      HealthEventCategory
	Region        string
	StatusCode    string
	Description   string
	StartTime     *time.Time
	EndTime       *time.Time
}

// AffectedEntity is a resource affected by a health event.
type AffectedEntity struct {
	EntityValue string
	AccountID   string
}
