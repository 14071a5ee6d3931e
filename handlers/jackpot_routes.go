// handlers/jackpot_routes.go
package handlers

import (
	"jackpot-service/middleware"
	"jackpot-service/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupJackpotRoutes(app *fiber.App, jackpot *services.JackpotService, settings *services.SettingsService, log *zap.Logger) {
	// Public reads, no user context needed
	public := app.Group("/jackpot")
	public.Get("/status", jackpot.GetStatus)
	public.Get("/stream", jackpot.StreamJackpotSSE)
	public.Get("/rounds", jackpot.ListRoundsHandler)
	public.Get("/rounds/:number", jackpot.GetRoundHandler)
	public.Get("/rounds/:number/verify", jackpot.VerifyRoundHandler)

	// 🔐 User routes: gateway forwards X-User-ID
	user := app.Group("/jackpot/tickets", middleware.UserContextMiddleware(log))
	user.Post("/", jackpot.PurchaseTicketsHandler)
	user.Get("/", jackpot.ListMyTicketsHandler)

	// 🔐 Admin routes
	admin := app.Group("/admin/jackpot", middleware.UserContextMiddleware(log), middleware.RequireRole(middleware.RoleAdmin, log))
	admin.Post("/rounds/:id/draw", jackpot.ExecuteDrawHandler)
	admin.Patch("/rounds/:id", jackpot.UpdateParametersHandler)
	admin.Post("/rounds/:id/pause", jackpot.TogglePauseHandler)
	admin.Post("/rounds/:id/surplus/withdraw", jackpot.WithdrawSurplusHandler)
	admin.Get("/settings", settings.GetSettingsHandler)
	admin.Put("/settings", settings.UpdateSettingsHandler)
}
