package routes

import (
	"github.com/gofiber/fiber/v2"

	"tradeport/internal/handlers"
	"tradeport/internal/middleware"
)

func SetupEscrowRoutes(app *fiber.App, h *handlers.EscrowHandler) {
	escrow := app.Group("/api/escrow", middleware.Protected())

	// Place the escrow hold after payment capture (buyer)
	escrow.Post("/:id/pay", h.PayOrder)

	// Escrow position and ledger trail for an order
	escrow.Get("/:id/status", h.GetEscrowStatus)
}
