package integration

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/support"
	"github.com/aws/aws-sdk-go-v2/service/support/types"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

const (
	supportSystem       = "aws_support"
	defaultServiceCode  = "general-info"
	defaultCategoryCode = "other"
	defaultSeverityCode = "low"
	caseLanguage        = "en"
)

// SupportAPI is the subset of the AWS Support client used here.
type SupportAPI interface {
	DescribeCases(ctx context.Context, in *support.DescribeCasesInput, optFns ...func(*support.Options)) (*support.DescribeCasesOutput, error)
	DescribeCommunications(ctx context.Context, in *support.DescribeCommunicationsInput, optFns ...func(*support.Options)) (*support.DescribeCommunicationsOutput, error)
	CreateCase(ctx context.Context, in *support.CreateCaseInput, optFns ...func(*support.Options)) (*support.CreateCaseOutput, error)
	AddCommunicationToCase(ctx context.Context, in *support.AddCommunicationToCaseInput, optFns ...func(*support.Options)) (*support.AddCommunicationToCaseOutput, error)
}

// SupportClient reads and writes AWS Support cases.
type SupportClient struct {
	api     SupportAPI
	breaker *breaker
	logger  *zap.Logger
}

// NewSupportClient wraps api with a per-call timeout and circuit breaker.
func NewSupportClient(api SupportAPI, callTimeout time.Duration, settings BreakerSettings, logger *zap.Logger) *SupportClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupportClient{
		api:     api,
		breaker: newBreaker(supportSystem, callTimeout, settings, logger),
		logger:  logger,
	}
}

// DescribeCase fetches one case, resolved cases included.
func (c *SupportClient) DescribeCase(ctx context.Context, caseRef string) (*domain.ExternalCase, error) {
	return call(ctx, c.breaker, func(ctx context.Context) (*domain.ExternalCase, error) {
		out, err := c.api.DescribeCases(ctx, &support.DescribeCasesInput{
			CaseIdList:            []string{caseRef},
			IncludeCommunications: aws.Bool(false),
			IncludeResolvedCases:  true,
		})
		if err != nil {
			var notFound *types.CaseIdNotFound
			if errors.As(err, &notFound) {
				return nil, apperrors.NewCaseNotFound(caseRef)
			}
			return nil, err
		}
		if len(out.Cases) == 0 {
			return nil, apperrors.NewCaseNotFound(caseRef)
		}
		details := out.Cases[0]
		return &domain.ExternalCase{
			Ref:          caseRef,
			Status:       aws.ToString(details.Status),
			Subject:      aws.ToString(details.Subject),
			SeverityCode: aws.ToString(details.SeverityCode),
		}, nil
	})
}

// DescribeCommunications pages through the case history and returns it oldest first.
func (c *SupportClient) DescribeCommunications(ctx context.Context, caseRef string) ([]domain.CaseCommunication, error) {
	return call(ctx, c.breaker, func(ctx context.Context) ([]domain.CaseCommunication, error) {
		paginator := support.NewDescribeCommunicationsPaginator(c.api, &support.DescribeCommunicationsInput{
			CaseId: aws.String(caseRef),
		})
		var comms []domain.CaseCommunication
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				var notFound *types.CaseIdNotFound
				if errors.As(err, &notFound) {
					return nil, apperrors.NewCaseNotFound(caseRef)
				}
				return nil, err
			}
			for _, comm := range page.Communications {
				comms = append(comms, toCaseCommunication(caseRef, comm))
			}
		}
		// Timestamps share one ISO-8601 layout, so string order is time order.
		sort.SliceStable(comms, func(i, j int) bool { return comms[i].TimeCreated < comms[j].TimeCreated })
		return comms, nil
	})
}

// CreateCase opens a general-info case and returns its id.
func (c *SupportClient) CreateCase(ctx context.Context, input domain.NewExternalCase) (string, error) {
	severity := input.SeverityCode
	if severity == "" {
		severity = defaultSeverityCode
	}
	caseID, err := call(ctx, c.breaker, func(ctx context.Context) (string, error) {
		out, err := c.api.CreateCase(ctx, &support.CreateCaseInput{
			Subject:           aws.String(input.Subject),
			CommunicationBody: aws.String(input.Body),
			ServiceCode:       aws.String(defaultServiceCode),
			CategoryCode:      aws.String(defaultCategoryCode),
			SeverityCode:      aws.String(severity),
			Language:          aws.String(caseLanguage),
		})
		if err != nil {
			return "", err
		}
		return aws.ToString(out.CaseId), nil
	})
	if err != nil {
		c.logger.Error("creating support case failed", zap.Error(err))
		return "", err
	}
	return caseID, nil
}

// AddCommunication posts body to the case.
func (c *SupportClient) AddCommunication(ctx context.Context, caseRef, body string) error {
	_, err := call(ctx, c.breaker, func(ctx context.Context) (struct{}, error) {
		_, err := c.api.AddCommunicationToCase(ctx, &support.AddCommunicationToCaseInput{
			CaseId:            aws.String(caseRef),
			CommunicationBody: aws.String(body),
		})
		var notFound *types.CaseIdNotFound
		if errors.As(err, &notFound) {
			return struct{}{}, apperrors.NewCaseNotFound(caseRef)
		}
		return struct{}{}, err
	})
	return err
}

// toCaseCommunication uses the first attachment id as the message id; the
// API exposes no other stable identifier.
func toCaseCommunication(caseRef string, comm types.Communication) domain.CaseCommunication {
	out := domain.CaseCommunication{
		CaseRef:     caseRef,
		Body:        aws.ToString(comm.Body),
		SubmittedBy: aws.ToString(comm.SubmittedBy),
		TimeCreated: aws.ToString(comm.TimeCreated),
	}
	if len(comm.AttachmentSet) > 0 {
		out.ID = aws.ToString(comm.AttachmentSet[0].AttachmentId)
	}
	return out
}
