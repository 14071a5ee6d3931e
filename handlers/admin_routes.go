// handlers/admin_routes.go
package handlers

import (
	"jackpot-service/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
)

// SetupAdminRoutes exposes process controls. GET /admin/log-level reads the level,
// PUT {"level":"debug"} changes it without a restart.
func SetupAdminRoutes(app *fiber.App, level zap.AtomicLevel, log *zap.Logger) {
	admin := app.Group("/admin/log-level", middleware.UserContextMiddleware(log), middleware.RequireRole(middleware.RoleAdmin, log))
	admin.Get("/", adaptor.HTTPHandler(level))
	admin.Put("/", adaptor.HTTPHandler(level))
}
