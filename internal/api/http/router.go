package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Organizations  *handlers.OrganizationsHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Post("/auth/login", cfg.Auth.Login)

	org := app.Group("/api/v1/orgs/:orgId", cfg.AuthMiddleware.Handle, auth.RequireOrgMember("orgId"))
	org.Get("", cfg.Organizations.Get)

	read := auth.RequireCapability(auth.CapTicketRead)
	org.Get("/tickets", read, cfg.Tickets.ListTickets)
	org.Post("/tickets", auth.RequireCapability(auth.CapTicketCreate), cfg.Tickets.CreateTicket)
	org.Get("/tickets/:ticketId", read, cfg.Tickets.GetTicket)
	org.Patch("/tickets/:ticketId", auth.RequireCapability(auth.CapTicketUpdate), cfg.Tickets.UpdateTicket)
	org.Get("/tickets/:ticketId/comments", read, cfg.Tickets.ListComments)
	org.Post("/tickets/:ticketId/comments", auth.RequireCapability(auth.CapCommentWrite), cfg.Tickets.AddComment)
}
