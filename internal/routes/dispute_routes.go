package routes

import (
	"github.com/gofiber/fiber/v2"

	"tradeport/internal/handlers"
	"tradeport/internal/middleware"
)

func SetupDisputeRoutes(app *fiber.App, h *handlers.DisputeHandler) {
	disputes := app.Group("/api/disputes", middleware.Protected())

	// Raise a dispute on an order
	disputes.Post("/", h.RaiseDispute)

	// Get all my disputes
	disputes.Get("/my-disputes", h.GetMyDisputes)

	// Get specific dispute
	disputes.Get("/:id", h.GetDisputeByID)
}
