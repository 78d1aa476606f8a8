package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusdesk/appeal-service/internal/api/http/handlers"
	"github.com/campusdesk/appeal-service/internal/auth"
	"github.com/campusdesk/appeal-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Appeals        *handlers.AppealsHandler
	StaffAppeals   *handlers.StaffAppealsHandler
	StaffUsers     *handlers.StaffUsersHandler
	Notifications  *handlers.NotificationsHandler
	Bot            *handlers.BotHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	app.Post("/auth/login", cfg.Auth.Login)
	app.Post("/bot/updates", cfg.Bot.Update)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	appeals := protected.Group("/appeals")
	appeals.Post("", cfg.Appeals.CreateAppeal)
	appeals.Get("", cfg.Appeals.ListAppeals)
	appeals.Get("/:id", cfg.Appeals.GetAppeal)
	appeals.Post("/:id/messages", cfg.Appeals.AddMessage)
	appeals.Post("/:id/rating", cfg.Appeals.RateAppeal)

	notifications := protected.Group("/notifications")
	notifications.Get("", cfg.Notifications.List)
	notifications.Put("/preferences", cfg.Notifications.SetPreference)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	staff := protected.Group("/staff", auth.RequireStaff())
	staff.Get("/appeals", cfg.StaffAppeals.ListAppeals)
	staff.Get("/appeals/:id", cfg.StaffAppeals.GetAppeal)
	staff.Post("/appeals/:id/messages", cfg.StaffAppeals.AddMessage)
	staff.Put("/appeals/:id/assignee", cfg.StaffAppeals.AssignAppeal)
	staff.Put("/appeals/:id/priority", cfg.StaffAppeals.ChangePriority)
	staff.Post("/appeals/:id/close", cfg.StaffAppeals.CloseAppeal)
	staff.Get("/users", cfg.StaffUsers.ListStaff)
	staff.Put("/users/:id/access", cfg.StaffUsers.UpdateAccess)
}
