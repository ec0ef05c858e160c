package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-ticket-service/internal/scheduler"
)

// JobsHandler triggers and inspects scheduled jobs.
type JobsHandler struct {
	scheduler *scheduler.Scheduler
}

// NewJobsHandler constructs handler.
func NewJobsHandler(s *scheduler.Scheduler) *JobsHandler {
	return &JobsHandler{scheduler: s}
}

// List GET /jobs.
func (h *JobsHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.scheduler.Status()})
}

// Run POST /jobs/:name/run. The job runs in the background.
func (h *JobsHandler) Run(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.scheduler.RunNow(name); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"job": name, "status": "started"}})
}
