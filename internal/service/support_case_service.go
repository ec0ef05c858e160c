package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/observability"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

// fingerprintPrefix marks dedup keys derived from message content rather than
// a source identifier.
const fingerprintPrefix = "fp:"

// SupportCaseService keeps tickets in step with their support cases.
type SupportCaseService struct {
	tickets     repository.TicketRepository
	comments    repository.TicketCommentRepository
	ticketSvc   *TicketService
	client      CaseClient
	metrics     *observability.Metrics
	logger      *zap.Logger
	concurrency int
}

// SupportCaseDependencies bundles collaborators for the support case service.
type SupportCaseDependencies struct {
	TicketRepo    repository.TicketRepository
	CommentRepo   repository.TicketCommentRepository
	TicketService *TicketService
	Client        CaseClient
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Concurrency   int
}

// CaseSyncResult reports what one case sync changed.
type CaseSyncResult struct {
	CaseRef  string `json:"case_ref"`
	TicketID string `json:"ticket_id,omitempty"`
	Updated  bool   `json:"updated"`
	Imported int    `json:"imported"`
}

// NewSupportCaseService constructs the service.
func NewSupportCaseService(deps SupportCaseDependencies) *SupportCaseService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SupportCaseService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		ticketSvc:   deps.TicketService,
		client:      deps.Client,
		metrics:     deps.Metrics,
		logger:      logger,
		concurrency: concurrency,
	}
}

// SyncCase copies the case's status, subject and severity onto the linked
// ticket and imports new communications. A case with no linked ticket is a no-op.
func (s *SupportCaseService) SyncCase(ctx context.Context, caseRef string) (CaseSyncResult, error) {
	result := CaseSyncResult{CaseRef: caseRef}
	log := s.logger.With(zap.String("case_ref", caseRef))

	ext, err := s.client.DescribeCase(ctx, caseRef)
	if err != nil {
		if errors.Is(err, apperrors.ErrCaseNotFound) {
			log.Warn("support case not found")
		} else {
			log.Error("describing support case failed", zap.Error(err))
		}
		return result, err
	}

	ticket, err := s.tickets.GetByCaseRef(ctx, caseRef)
	if errors.Is(err, repository.ErrNotFound) {
		log.Debug("no ticket linked to case")
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("finding ticket for case %s: %w", caseRef, err)
	}
	result.TicketID = ticket.ID

	if patch := casePatch(ticket, ext); !patch.IsEmpty() {
		if _, err := s.ticketSvc.UpdateTicket(ctx, ticket.ID, patch); err != nil {
			return result, err
		}
		result.Updated = true
	}

	imported, err := s.SyncCommunications(ctx, caseRef, ticket.ID)
	result.Imported = imported
	if err != nil {
		return result, err
	}
	log.Info("synced support case",
		zap.String("ticket_id", ticket.ID),
		zap.Bool("updated", result.Updated),
		zap.Int("imported", imported))
	return result, nil
}

// SyncCommunications imports case communications not yet on the ticket as
// customer-visible comments and returns how many were added.
func (s *SupportCaseService) SyncCommunications(ctx context.Context, caseRef, ticketID string) (int, error) {
	comms, err := s.client.DescribeCommunications(ctx, caseRef)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, comm := range comms {
		key := communicationKey(caseRef, comm)
		exists, err := s.comments.ExistsByExternalRef(ctx, ticketID, key)
		if err != nil {
			return imported, fmt.Errorf("checking communication %s: %w", key, err)
		}
		if exists {
			continue
		}
		inserted, err := s.comments.Create(ctx, &domain.TicketComment{
			TicketID:        ticketID,
			Content:         comm.Body,
			IsInternal:      false,
			ExternalCommRef: &key,
			CreatedAt:       parseCommunicationTime(comm.TimeCreated),
		})
		if err != nil {
			return imported, fmt.Errorf("importing communication %s: %w", key, err)
		}
		if inserted {
			imported++
		}
	}
	if imported > 0 {
		s.logger.Info("imported case communications",
			zap.String("case_ref", caseRef),
			zap.String("ticket_id", ticketID),
			zap.Int("count", imported))
	}
	return imported, nil
}

// CreateExternalCase opens a support case for a ticket and links it.
// Calling it twice opens two cases.
func (s *SupportCaseService) CreateExternalCase(ctx context.Context, ticketID string, input domain.NewExternalCase) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Subject) == "" || strings.TrimSpace(input.Body) == "" {
		return nil, apperrors.NewValidationError("subject and body are required", nil)
	}
	if _, err := s.ticketSvc.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}

	caseRef, err := s.client.CreateCase(ctx, input)
	if err != nil {
		return nil, err
	}
	s.logger.Info("created support case", zap.String("case_ref", caseRef), zap.String("ticket_id", ticketID))

	return s.ticketSvc.UpdateTicket(ctx, ticketID, domain.TicketPatch{
		ExternalCaseRef:      &caseRef,
		ExternalCaseSubject:  &input.Subject,
		ExternalCaseSeverity: &input.SeverityCode,
	})
}

// AddCaseCommunication posts a reply to a support case.
func (s *SupportCaseService) AddCaseCommunication(ctx context.Context, caseRef, body string) error {
	if strings.TrimSpace(body) == "" {
		return apperrors.NewValidationError("body is required", nil)
	}
	if err := s.client.AddCommunication(ctx, caseRef, body); err != nil {
		return err
	}
	s.logger.Info("added communication to support case", zap.String("case_ref", caseRef))
	return nil
}

// PollAllActiveCases syncs every case linked to an open ticket. Each case is
// independent: one failure is recorded and the rest continue.
func (s *SupportCaseService) PollAllActiveCases(ctx context.Context) (BatchResult, error) {
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		ExcludeStatuses: domain.DoneStatuses,
		HasCaseRef:      true,
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("listing active cases: %w", err)
	}

	seen := make(map[string]struct{}, len(tickets))
	var refs []string
	for _, t := range tickets {
		if t.ExternalCaseRef == nil || *t.ExternalCaseRef == "" {
			continue
		}
		if _, ok := seen[*t.ExternalCaseRef]; ok {
			continue
		}
		seen[*t.ExternalCaseRef] = struct{}{}
		refs = append(refs, *t.ExternalCaseRef)
	}

	var (
		mu     sync.Mutex
		result = BatchResult{Total: len(refs)}
	)
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for _, ref := range refs {
		p.Go(func() {
			_, err := s.SyncCase(ctx, ref)
			if err != nil {
				s.logger.Warn("syncing support case failed, retrying next cycle",
					zap.String("case_ref", ref), zap.Error(err))
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ref, err))
				s.metrics.RecordReconciled("support_case", "error")
				return
			}
			result.Succeeded++
			s.metrics.RecordReconciled("support_case", "ok")
		})
	}
	p.Wait()

	s.logger.Info("polled support cases",
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))
	return result, nil
}

func casePatch(ticket *domain.Ticket, ext *domain.ExternalCase) domain.TicketPatch {
	var patch domain.TicketPatch
	if ticket.ExternalCaseStatus != ext.Status {
		patch.ExternalCaseStatus = &ext.Status
	}
	if ticket.ExternalCaseSubject != ext.Subject {
		patch.ExternalCaseSubject = &ext.Subject
	}
	if ticket.ExternalCaseSeverity != ext.SeverityCode {
		patch.ExternalCaseSeverity = &ext.SeverityCode
	}
	return patch
}

// communicationKey prefers the source's identifier. Otherwise it hashes the
// fields that together identify a message within its case.
func communicationKey(caseRef string, comm domain.CaseCommunication) string {
	if comm.ID != "" {
		return comm.ID
	}
	sum := blake2b.Sum256([]byte(strings.Join([]string{caseRef, comm.SubmittedBy, comm.TimeCreated, comm.Body}, "\x00")))
	return fingerprintPrefix + hex.EncodeToString(sum[:])
}

func parseCommunicationTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Now()
}
