package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/libreta-api/internal/config"
	"github.com/noah-isme/libreta-api/internal/handler"
	"github.com/noah-isme/libreta-api/internal/middleware"
	"github.com/noah-isme/libreta-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ClosureHandler       *handler.ClosureHandler
	ConsolidationHandler *handler.ConsolidationHandler
	SpreadsheetHandler   *handler.SpreadsheetHandler
	GradeHandler         *handler.GradeHandler
	ActivityHandler      *handler.ActivityHandler
	HealthChecks         map[string]handler.HealthCheckFunc
	JWTMiddleware        fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	closers := middleware.RequireRole(middleware.RoleDirector, middleware.RoleCoordinator)
	staff := middleware.RequireRole(middleware.RoleDirector, middleware.RoleCoordinator, middleware.RoleTeacher)

	if deps.ClosureHandler != nil {
		deps.ClosureHandler.Register(api.Group("/closures", jwtMiddleware, staff), closers)
		deps.ClosureHandler.RegisterPeriods(api.Group("/periods", jwtMiddleware, staff), closers)
	}

	if deps.ConsolidationHandler != nil {
		deps.ConsolidationHandler.Register(api.Group("/consolidations", jwtMiddleware, staff))
	}

	if deps.SpreadsheetHandler != nil {
		limit := cfg.UploadRateLimit
		deps.SpreadsheetHandler.Register(api.Group("/ugel", jwtMiddleware, staff), middleware.RateLimit("ugel-upload", limit, time.Minute))
	}

	if deps.GradeHandler != nil {
		deps.GradeHandler.Register(api.Group("/grades", jwtMiddleware, staff))
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/audit", jwtMiddleware, closers))
	}
}
