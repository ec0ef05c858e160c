package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/sla-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-ticket-service/internal/auth"
	"github.com/spec-kit/sla-ticket-service/internal/domain"
	"github.com/spec-kit/sla-ticket-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	SLA            *handlers.SLAHandler
	Jobs           *handlers.JobsHandler
	Integrations   *handlers.IntegrationsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAgent, domain.RoleAdmin))
	admin := auth.RequireRole(domain.RoleAdmin)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)

	sla := api.Group("/sla")
	sla.Get("/config", cfg.SLA.GetConfig)
	sla.Put("/config/:priority", admin, cfg.SLA.UpdateConfig)
	sla.Get("/metrics", cfg.SLA.Metrics)
	sla.Get("/report", cfg.SLA.Report)
	sla.Get("/violations", cfg.SLA.Violations)

	jobs := api.Group("/jobs")
	jobs.Get("/", cfg.Jobs.List)
	jobs.Post("/:name/run", admin, cfg.Jobs.Run)

	integrations := api.Group("/integrations")
	integrations.Post("/support/cases", cfg.Integrations.CreateCase)
	integrations.Post("/support/cases/:caseRef/sync", cfg.Integrations.SyncCase)
	integrations.Post("/support/cases/:caseRef/communications", cfg.Integrations.AddCommunication)
	integrations.Post("/health/events/process", cfg.Integrations.ProcessHealthEvent)
}
