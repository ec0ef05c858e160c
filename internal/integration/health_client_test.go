package integration

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/health"
	"github.com/aws/aws-sdk-go-v2/service/health/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

const eventArn = "arn:aws:health:us-east-1::event/EC2/AWS_EC2_OPERATIONAL_ISSUE/1"

type fakeHealthAPI struct {
	details     map[string]types.EventDetails
	entityPages [][]types.AffectedEntity
	events      []types.Event
	filter      *types.EventFilter
}

func (f *fakeHealthAPI) DescribeEventDetails(_ context.Context, in *health.DescribeEventDetailsInput, _ ...func(*health.Options)) (*health.DescribeEventDetailsOutput, error) {
	out := &health.DescribeEventDetailsOutput{}
	for _, arn := range in.EventArns {
		if d, ok := f.details[arn]; ok {
			out.SuccessfulSet = append(out.SuccessfulSet, d)
			continue
		}
		out.FailedSet = append(out.FailedSet, types.EventDetailsErrorItem{
			EventArn: aws.String(arn), ErrorName: aws.String("NotFound"),
		})
	}
	return out, nil
}

func (f *fakeHealthAPI) DescribeAffectedEntities(_ context.Context, in *health.DescribeAffectedEntitiesInput, _ ...func(*health.Options)) (*health.DescribeAffectedEntitiesOutput, error) {
	page := 0
	if in.NextToken != nil {
		page = 1
	}
	out := &health.DescribeAffectedEntitiesOutput{Entities: f.entityPages[page]}
	if page == 0 && len(f.entityPages) > 1 {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func (f *fakeHealthAPI) DescribeEvents(_ context.Context, in *health.DescribeEventsInput, _ ...func(*health.Options)) (*health.DescribeEventsOutput, error) {
	f.filter = in.Filter
	return &health.DescribeEventsOutput{Events: f.events}, nil
}

func TestHealthDescribeEvent(t *testing.T) {
	start := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	api := &fakeHealthAPI{details: map[string]types.EventDetails{
		eventArn: {
			Event: &types.Event{
				Arn:               aws.String(eventArn),
				Service:           aws.String("EC2"),
				EventTypeCode:     aws.String("AWS_EC2_OPERATIONAL_ISSUE"),
				EventTypeCategory: types.EventTypeCategoryIssue,
				Region:            aws.String("us-east-1"),
				StatusCode:        types.EventStatusCodeOpen,
				StartTime:         &start,
			},
			EventDescription: &types.EventDescription{LatestDescription: aws.String("Elevated errors")},
		},
	}}
	client := NewHealthClient(api, time.Second, BreakerSettings{}, zap.NewNop())

	got, err := client.DescribeEvent(context.Background(), eventArn)
	require.NoError(t, err)
	assert.Equal(t, "EC2", got.Service)
	assert.Equal(t, domain.HealthCategoryIssue, got.Category)
	assert.Equal(t, "open", got.StatusCode)
	assert.Equal(t, "Elevated errors", got.Description)
	assert.Equal(t, &start, got.StartTime)

	_, err = client.DescribeEvent(context.Background(), "arn:missing")
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
}

func TestHealthAffectedEntitiesPaged(t *testing.T) {
	api := &fakeHealthAPI{entityPages: [][]types.AffectedEntity{
		{{EntityValue: aws.String("i-1"), AwsAccountId: aws.String("111111111111")}},
		{{EntityValue: aws.String("i-2"), AwsAccountId: aws.String("222222222222")}},
	}}
	client := NewHealthClient(api, time.Second, BreakerSettings{}, zap.NewNop())

	entities, err := client.DescribeAffectedEntities(context.Background(), eventArn)
	require.NoError(t, err)
	assert.Equal(t, []domain.AffectedEntity{
		{EntityValue: "i-1", AccountID: "111111111111"},
		{EntityValue: "i-2", AccountID: "222222222222"},
	}, entities)
}

func TestHealthListOpenOrUpcomingEvents(t *testing.T) {
	api := &fakeHealthAPI{events: []types.Event{{Arn: aws.String(eventArn)}, {}}}
	client := NewHealthClient(api, time.Second, BreakerSettings{}, zap.NewNop())

	refs, err := client.ListOpenOrUpcomingEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{eventArn}, refs)
	require.NotNil(t, api.filter)
	assert.ElementsMatch(t, []types.EventStatusCode{types.EventStatusCodeOpen, types.EventStatusCodeUpcoming}, api.filter.EventStatusCodes)
}
