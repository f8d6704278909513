package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tradeport/internal/escrow"
	"tradeport/internal/models"
)

type DisputeHandler struct {
	DB     *gorm.DB
	Engine *escrow.Engine
}

func NewDisputeHandler(db *gorm.DB, engine *escrow.Engine) *DisputeHandler {
	return &DisputeHandler{DB: db, Engine: engine}
}

type RaiseDisputeRequest struct {
	OrderID     uint   `json:"order_id" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// RaiseDispute opens a dispute on an order the caller participates in. If
// the order was already paid out, the seller's portion is blocked until the
// dispute resolves.
func (h *DisputeHandler) RaiseDispute(c *fiber.Ctx) error {
	req := new(RaiseDisputeRequest)
	if !bindBody(c, req) {
		return nil
	}

	userID := c.Locals("user_id").(uint)

	var order models.Order
	if err := h.DB.First(&order, req.OrderID).Error; err != nil {
		return engineError(c, err)
	}
	if !isParticipant(&order, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": errNotYourOrder.Error()})
	}

	dispute, err := h.Engine.OpenDispute(req.OrderID, userID, req.Reason, req.Description)
	if err != nil {
		return engineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Dispute raised. Our team will review it shortly.",
		"dispute": fiber.Map{
			"id":          dispute.ID,
			"order_id":    dispute.OrderID,
			"reason":      dispute.Reason,
			"description": dispute.Description,
			"status":      dispute.Status,
			"created_at":  dispute.CreatedAt,
		},
	})
}

// GetMyDisputes lists disputes on the caller's orders, the courier's included.
func (h *DisputeHandler) GetMyDisputes(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var disputes []models.Dispute
	err := h.DB.
		Preload("Order").
		Joins("JOIN orders ON disputes.order_id = orders.id").
		Where("orders.buyer_id = ? OR orders.seller_id = ? OR orders.courier_id = ?", userID, userID, userID).
		Order("disputes.created_at DESC").
		Find(&disputes).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve disputes"})
	}

	return c.JSON(fiber.Map{
		"disputes": disputes,
		"count":    len(disputes),
	})
}

// GetDisputeByID retrieves one dispute for a participant.
func (h *DisputeHandler) GetDisputeByID(c *fiber.Ctx) error {
	disputeID, _ := c.ParamsInt("id")
	userID := c.Locals("user_id").(uint)

	var dispute models.Dispute
	if err := h.DB.Preload("Order").First(&dispute, disputeID).Error; err != nil {
		return engineError(c, err)
	}

	if !isParticipant(&dispute.Order, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You don't have access to this dispute"})
	}

	return c.JSON(fiber.Map{"dispute": dispute})
}
