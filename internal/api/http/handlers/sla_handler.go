package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-ticket-service/internal/api/dto"
	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/service"
	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

const defaultReportDays = 30

// SLAHandler exposes the SLA policy, metrics and live violations.
type SLAHandler struct {
	service *service.SLAService
	now     func() time.Time
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService) *SLAHandler {
	return &SLAHandler{service: slaService, now: time.Now}
}

// GetConfig GET /sla/config.
func (h *SLAHandler) GetConfig(c *fiber.Ctx) error {
	targets := h.service.Policy().Targets()
	items := make([]dto.SLATargetResponse, 0, len(targets))
	for _, t := range targets {
		items = append(items, slaTargetResponse(t))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateConfig PUT /sla/config/:priority.
func (h *SLAHandler) UpdateConfig(c *fiber.Ctx) error {
	var req dto.UpdateSLATargetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	target, err := h.service.UpdatePolicy(c.UserContext(), service.SLAPolicyUpdate{
		Priority:            domain.TicketPriority(c.Params("priority")),
		ResponseTimeMinutes: req.ResponseTimeMinutes,
		ResolutionTimeHours: req.ResolutionTimeHours,
		Description:         req.Description,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaTargetResponse(target)})
}

// Metrics GET /sla/metrics.
func (h *SLAHandler) Metrics(c *fiber.Ctx) error {
	from, to, err := h.period(c)
	if err != nil {
		return err
	}
	metrics, err := h.service.Metrics(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	items := make([]dto.SLAMetricResponse, 0, len(metrics))
	for _, m := range metrics {
		items = append(items, slaMetricResponse(m))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Report GET /sla/report.
func (h *SLAHandler) Report(c *fiber.Ctx) error {
	from, to, err := h.period(c)
	if err != nil {
		return err
	}
	report, err := h.service.Report(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	byPriority := make([]dto.SLAMetricResponse, 0, len(report.ByPriority))
	for _, m := range report.ByPriority {
		byPriority = append(byPriority, slaMetricResponse(m))
	}
	return c.JSON(fiber.Map{"data": dto.SLAReportResponse{
		From:       report.From,
		To:         report.To,
		Overall:    slaMetricResponse(report.Overall),
		ByPriority: byPriority,
	}})
}

// Violations GET /sla/violations.
func (h *SLAHandler) Violations(c *fiber.Ctx) error {
	violations, err := h.service.Violations(c.UserContext(), h.now())
	if err != nil {
		return err
	}
	items := make([]dto.ViolationResponse, 0, len(violations))
	for _, v := range violations {
		items = append(items, dto.ViolationResponse{
			TicketID:       v.Ticket.ID,
			Title:          v.Ticket.Title,
			Priority:       v.Ticket.Priority,
			Status:         v.Ticket.Status,
			SLADueAt:       v.Ticket.SLADueAt,
			MinutesOverdue: v.MinutesOverdue,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// period reads from/to as RFC3339, or days back from now.
func (h *SLAHandler) period(c *fiber.Ctx) (time.Time, time.Time, error) {
	now := h.now()
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := now
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -parseInt(c.Query("days"), defaultReportDays))
	if from != nil {
		start = *from
	}
	return start, end, nil
}

func slaTargetResponse(t domain.SLATarget) dto.SLATargetResponse {
	return dto.SLATargetResponse{
		Priority:            t.Priority,
		ResponseTimeMinutes: t.ResponseTimeMinutes,
		ResolutionTimeHours: t.ResolutionTimeHours,
		Description:         t.Description,
	}
}

func slaMetricResponse(m domain.SLAMetric) dto.SLAMetricResponse {
	return dto.SLAMetricResponse{
		Priority:             m.Priority,
		Total:                m.Total,
		Met:                  m.Met,
		Violated:             m.Violated,
		ComplianceRate:       m.ComplianceRate(),
		AvgResolutionMinutes: m.AvgResolutionMinutes,
	}
}
