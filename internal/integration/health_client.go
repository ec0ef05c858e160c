package integration

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/health"
	"github.com/aws/aws-sdk-go-v2/service/health/types"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

const healthSystem = "aws_health"

// HealthAPI is the subset of the AWS Health client used here.
type HealthAPI interface {
	DescribeEventDetails(ctx context.Context, in *health.DescribeEventDetailsInput, optFns ...func(*health.Options)) (*health.DescribeEventDetailsOutput, error)
	DescribeAffectedEntities(ctx context.Context, in *health.DescribeAffectedEntitiesInput, optFns ...func(*health.Options)) (*health.DescribeAffectedEntitiesOutput, error)
	DescribeEvents(ctx context.Context, in *health.DescribeEventsInput, optFns ...func(*health.Options)) (*health.DescribeEventsOutput, error)
}

// HealthClient reads the AWS Health event feed.
type HealthClient struct {
	api     HealthAPI
	breaker *breaker
	logger  *zap.Logger
}

// NewHealthClient wraps api with a per-call timeout and circuit breaker.
func NewHealthClient(api HealthAPI, callTimeout time.Duration, settings BreakerSettings, logger *zap.Logger) *HealthClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthClient{
		api:     api,
		breaker: newBreaker(healthSystem, callTimeout, settings, logger),
		logger:  logger,
	}
}

// DescribeEvent returns ErrEventNotFound when the feed has no details for eventRef.
func (c *HealthClient) DescribeEvent(ctx context.Context, eventRef string) (*domain.HealthEvent, error) {
	return call(ctx, c.breaker, func(ctx context.Context) (*domain.HealthEvent, error) {
		out, err := c.api.DescribeEventDetails(ctx, &health.DescribeEventDetailsInput{
			EventArns: []string{eventRef},
		})
		if err != nil {
			return nil, err
		}
		if len(out.SuccessfulSet) == 0 || out.SuccessfulSet[0].Event == nil {
			for _, failed := range out.FailedSet {
				c.logger.Debug("event details lookup failed",
					zap.String("event_ref", eventRef),
					zap.String("error_name", aws.ToString(failed.ErrorName)),
					zap.String("error_message", aws.ToString(failed.ErrorMessage)))
			}
			return nil, apperrors.NewEventNotFound(eventRef)
		}
		return toHealthEvent(eventRef, out.SuccessfulSet[0]), nil
	})
}

// DescribeAffectedEntities pages through every entity affected by eventRef.
func (c *HealthClient) DescribeAffectedEntities(ctx context.Context, eventRef string) ([]domain.AffectedEntity, error) {
	return call(ctx, c.breaker, func(ctx context.Context) ([]domain.AffectedEntity, error) {
		paginator := health.NewDescribeAffectedEntitiesPaginator(c.api, &health.DescribeAffectedEntitiesInput{
			Filter: &types.EntityFilter{EventArns: []string{eventRef}},
		})
		var entities []domain.AffectedEntity
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, e := range page.Entities {
				entities = append(entities, domain.AffectedEntity{
					EntityValue: aws.ToString(e.EntityValue),
					AccountID:   aws.ToString(e.AwsAccountId),
				})
			}
		}
		return entities, nil
	})
}

// ListOpenOrUpcomingEvents returns the refs of every open or upcoming event.
func (c *HealthClient) ListOpenOrUpcomingEvents(ctx context.Context) ([]string, error) {
	return call(ctx, c.breaker, func(ctx context.Context) ([]string, error) {
		paginator := health.NewDescribeEventsPaginator(c.api, &health.DescribeEventsInput{
			Filter: &types.EventFilter{
				EventStatusCodes: []types.EventStatusCode{types.EventStatusCodeOpen, types.EventStatusCodeUpcoming},
			},
		})
		var refs []string
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, e := range page.Events {
				if arn := aws.ToString(e.Arn); arn != "" {
					refs = append(refs, arn)
				}
			}
		}
		return refs, nil
	})
}

func toHealthEvent(eventRef string, details types.EventDetails) *domain.HealthEvent {
	e := details.Event
	out := &domain.HealthEvent{
		Ref:           eventRef,
		Service:       aws.ToString(e.Service),
		EventTypeCode: aws.ToString(e.EventTypeCode),
		Category:      domain.HealthEventCategory(e.EventTypeCategory),
		Region:        aws.ToString(e.Region),
		StatusCode:    string(e.StatusCode),
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
	}
	if details.EventDescription != nil {
		out.Description = aws.ToString(details.EventDescription.LatestDescription)
	}
	return out
}
