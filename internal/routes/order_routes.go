package routes

import (
	"github.com/gofiber/fiber/v2"

	"tradeport/internal/handlers"
	"tradeport/internal/middleware"
)

func SetupOrderRoutes(app *fiber.App, h *handlers.OrderHandler) {
	orders := app.Group("/api/orders", middleware.Protected())

	// Create single order (buyer)
	orders.Post("/", h.CreateOrder)

	// Multi-seller cart checkout (buyer)
	orders.Post("/checkout", h.Checkout)

	// Lifecycle transitions
	orders.Post("/:id/confirm", h.ConfirmOrder)
	orders.Post("/:id/pickup", h.PickupOrder)
	orders.Post("/:id/transit", h.TransitOrder)
	orders.Post("/:id/deliver", h.DeliverOrder)
	orders.Post("/:id/cancel", h.CancelOrder)

	// Get all my orders
	orders.Get("/my-orders", h.GetMyOrders)

	// Get specific order
	orders.Get("/:id", h.GetOrderByID)
}
