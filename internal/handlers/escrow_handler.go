package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tradeport/internal/escrow"
)

type EscrowHandler struct {
	DB     *gorm.DB
	Engine *escrow.Engine
}

func NewEscrowHandler(db *gorm.DB, engine *escrow.Engine) *EscrowHandler {
	return &EscrowHandler{DB: db, Engine: engine}
}

type PayOrderRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// PayOrder is the payment-status feed: once the gateway confirms capture,
// the escrow hold is placed. Retrying against an existing hold is safe.
func (h *EscrowHandler) PayOrder(c *fiber.Ctx) error {
	orderID, _ := c.ParamsInt("id")
	buyerID := c.Locals("user_id").(uint)

	req := new(PayOrderRequest)
	if !bindBody(c, req) {
		return nil
	}

	result, err := h.Engine.CreateHold(uint(orderID), buyerID, req.Amount)
	if err != nil {
		return engineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payment received. Funds are held in escrow until delivery.",
		"entries": result.Entries,
	})
}

// GetEscrowStatus reports the escrow position and ledger trail for an order.
func (h *EscrowHandler) GetEscrowStatus(c *fiber.Ctx) error {
	orderID, _ := c.ParamsInt("id")

	status, err := h.Engine.Status(uint(orderID))
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(fiber.Map{
		"has_escrow": status.HasEscrow,
		"status":     status.Status,
		"amount":     status.Amount,
		"entries":    status.Entries,
	})
}
