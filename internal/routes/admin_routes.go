package routes

import (
	"github.com/gofiber/fiber/v2"

	"tradeport/internal/handlers"
	"tradeport/internal/middleware"
)

func SetupAdminRoutes(app *fiber.App, h *handlers.AdminHandler) {
	admin := app.Group("/api/admin", middleware.Protected(), middleware.RequireAdmin())

	// Dispute review
	admin.Get("/disputes", h.ListDisputes)
	admin.Post("/disputes/:id/resolve", h.ResolveDispute)

	// Withdrawal review
	admin.Get("/withdrawals", h.ListWithdrawals)
	admin.Post("/withdrawals/:id/review", h.ReviewWithdrawal)
}
