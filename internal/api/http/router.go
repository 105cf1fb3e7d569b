package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	SLA            *handlers.SLAHandler
	AuthMiddleware *auth.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	entityScope := auth.RequireEntityParam("id")
	api.Get("/entities/:id/sla/summary", entityScope, cfg.SLA.Summary)
	api.Get("/entities/:id/sla/compliance", entityScope, cfg.SLA.Compliance)

	tickets := api.Group("/tickets/:id/sla")
	tickets.Get("", cfg.SLA.TicketStatus)
	tickets.Get("/history", cfg.SLA.History)

	operators := auth.RequireRole(auth.RoleAdmin, auth.RoleService)
	tickets.Post("/check", operators, cfg.SLA.Check)
	tickets.Post("/apply", operators, cfg.SLA.Apply)
	tickets.Post("/reprioritize", operators, cfg.SLA.Reprioritize)
	tickets.Post("/metrics/:type", operators, cfg.SLA.RecordMetric)

	api.Post("/entities/:id/sla/calendar/reload", operators, cfg.SLA.ReloadCalendar)
	api.Get("/sla/monitoring", auth.RequireRole(auth.RoleAdmin, auth.RoleService, auth.RoleAgent), cfg.SLA.Monitoring)
}
