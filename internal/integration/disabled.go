package integration

import (
	"context"
	"errors"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

var errDisabled = errors.New("aws integration disabled by configuration")

// Disabled stands in for both clients when AWS_ENABLED=false. Every call
// fails with ExternalUnavailable.
type Disabled struct{}

func (Disabled) unavailable() error {
	return apperrors.NewExternalUnavailable("aws", errDisabled)
}

func (d Disabled) DescribeCase(context.Context, string) (*domain.ExternalCase, error) {
	return nil, d.unavailable()
}

func (d Disabled) DescribeCommunications(context.Context, string) ([]domain.CaseCommunication, error) {
	return nil, d.unavailable()
}

func (d Disabled) CreateCase(context.Context, domain.NewExternalCase) (string, error) {
	return "", d.unavailable()
}

func (d Disabled) AddCommunication(context.Context, string, string) error {
	return d.unavailable()
}

func (d Disabled) DescribeEvent(context.Context, string) (*domain.HealthEvent, error) {
	return nil, d.unavailable()
}

func (d Disabled) DescribeAffectedEntities(context.Context, string) ([]domain.AffectedEntity, error) {
	return nil, d.unavailable()
}

func (d Disabled) ListOpenOrUpcomingEvents(context.Context) ([]string, error) {
	return nil, d.unavailable()
}
