package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-ticket-service/internal/api/dto"
	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/service"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

// IntegrationsHandler exposes on-demand support case and health event operations.
type IntegrationsHandler struct {
	cases  *service.SupportCaseService
	health *service.HealthEventService
}

// NewIntegrationsHandler constructs handler.
func NewIntegrationsHandler(cases *service.SupportCaseService, health *service.HealthEventService) *IntegrationsHandler {
	return &IntegrationsHandler{cases: cases, health: health}
}

// CreateCase POST /integrations/support/cases.
func (h *IntegrationsHandler) CreateCase(c *fiber.Ctx) error {
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.TicketID) == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	ticket, err := h.cases.CreateExternalCase(c.UserContext(), req.TicketID, domain.NewExternalCase{
		Subject:      req.Subject,
		Body:         req.Body,
		SeverityCode: req.SeverityCode,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket, ticket.UpdatedAt)})
}

// SyncCase POST /integrations/support/cases/:caseRef/sync.
func (h *IntegrationsHandler) SyncCase(c *fiber.Ctx) error {
	result, err := h.cases.SyncCase(c.UserContext(), c.Params("caseRef"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// AddCommunication POST /integrations/support/cases/:caseRef/communications.
func (h *IntegrationsHandler) AddCommunication(c *fiber.Ctx) error {
	var req dto.AddCommunicationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.cases.AddCaseCommunication(c.UserContext(), c.Params("caseRef"), req.Body); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ProcessHealthEvent POST /integrations/health/events/process.
func (h *IntegrationsHandler) ProcessHealthEvent(c *fiber.Ctx) error {
	var req dto.ProcessHealthEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.EventRef) == "" {
		return apperrors.NewValidationError("event_ref required", nil)
	}
	result, err := h.health.ProcessHealthEvent(c.UserContext(), req.EventRef)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if result.Outcome == service.OutcomeCreated {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": result})
}
