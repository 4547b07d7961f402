package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auction-house/internal/api/http/handlers"
	"github.com/spec-kit/auction-house/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler
	Users         *handlers.UsersHandler
	Authenticator auth.Authenticator
	// AuthLimiter guards the unauthenticated auth endpoints. Optional.
	AuthLimiter fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")
	authenticate := auth.Authenticate(cfg.Authenticator)

	authGroup := api.Group("/auth")
	limit := cfg.AuthLimiter
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}
	authGroup.Post("/register", limit, cfg.Auth.Register)
	authGroup.Post("/login", limit, cfg.Auth.Login)
	authGroup.Get("/validate", authenticate, auth.RequireAuthenticated(), cfg.Auth.Validate)
	authGroup.Post("/password", authenticate, auth.RequireAuthenticated(), cfg.Auth.ChangePassword)

	users := api.Group("/users", authenticate, auth.RequirePolicy(auth.PolicyAdmin))
	users.Get("/", cfg.Users.List)
	users.Get("/search", cfg.Users.Search)
	users.Put("/:id/role", cfg.Users.ChangeRole)
}
