package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/casetrack/casetrack/internal/api/http/handlers"
	"github.com/casetrack/casetrack/internal/auth"
	"github.com/casetrack/casetrack/internal/rbac"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Cases          *handlers.CasesHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
	// AuthLimiter throttles the unauthenticated auth endpoints. Nil disables it.
	AuthLimiter *IPRateLimiter
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Health)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.MetricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.MetricsHandler))
	}

	api := app.Group("/api")
	api.Get("/health", cfg.Health.Health)

	throttle := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.AuthLimiter != nil {
		throttle = cfg.AuthLimiter.Handler()
	}
	requireAuth := cfg.AuthMiddleware.Handle

	authGroup := api.Group("/auth")
	authGroup.Post("/register", throttle, cfg.Auth.Register)
	authGroup.Post("/login", throttle, cfg.Auth.Login)
	authGroup.Post("/refresh", throttle, cfg.Auth.Refresh)
	authGroup.Post("/logout", requireAuth, cfg.Auth.Logout)
	authGroup.Get("/me", requireAuth, cfg.Auth.Me)

	// Case scope is evaluated per resource by the service.
	cases := api.Group("/cases", requireAuth)
	cases.Get("", cfg.Cases.ListCases)
	cases.Post("", cfg.Cases.CreateCase)
	cases.Get("/:id", cfg.Cases.GetCase)
	cases.Patch("/:id", cfg.Cases.UpdateCase)
	cases.Delete("/:id", cfg.Cases.DeleteCase)

	api.Get("/users", requireAuth, cfg.Users.ListAssignable)

	admin := api.Group("/admin", requireAuth)
	admin.Get("/users", auth.RequirePermission(rbac.ManageUsers), cfg.Users.ListUsers)
	admin.Delete("/users/:id", auth.RequirePermission(rbac.ManageUsers), cfg.Users.DeactivateUser)
	admin.Get("/cases", auth.RequirePermission(rbac.ManageUsers), cfg.Users.ListAllCases)
	admin.Get("/permissions/:id", auth.RequirePermission(rbac.ManageUsers), cfg.Users.Permissions)
	admin.Get("/audit-logs", auth.RequirePermission(rbac.ViewAuditLogs), cfg.Users.ListAuditLogs)
}
