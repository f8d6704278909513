package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tradeport/internal/escrow"
	"tradeport/internal/models"
	"tradeport/internal/orders"
)

var validate = validator.New()

// isParticipant reports whether a user is a party to an order: buyer, seller
// or the assigned courier.
func isParticipant(o *models.Order, userID uint) bool {
	if o.BuyerID == userID || o.SellerID == userID {
		return true
	}
	return o.CourierID != nil && *o.CourierID == userID
}

// bindBody parses and validates a request DTO, writing the 400 response
// itself. Returns false when the handler should stop.
func bindBody(c *fiber.Ctx, dst any) bool {
	if err := c.BodyParser(dst); err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
		return false
	}
	return true
}

// engineError maps engine failures onto HTTP statuses. Every expected failure
// keeps its specific reason; only genuinely unexpected errors collapse to 500.
func engineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, escrow.ErrOrderNotFound),
		errors.Is(err, escrow.ErrDisputeNotFound),
		errors.Is(err, escrow.ErrEntryNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, escrow.ErrWrongBuyer):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, escrow.ErrEscrowAlreadySettled),
		errors.Is(err, escrow.ErrHoldNotAllowed),
		errors.Is(err, escrow.ErrOrderDisputed),
		errors.Is(err, escrow.ErrDisputeAlreadyOpen),
		errors.Is(err, escrow.ErrDisputeAlreadyResolved),
		errors.Is(err, escrow.ErrNoActiveEscrowHold),
		errors.Is(err, escrow.ErrWithdrawalNotPending):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrAmountMismatch),
		errors.Is(err, escrow.ErrInvalidResolution),
		errors.Is(err, escrow.ErrInvalidRefundPercentage),
		errors.Is(err, escrow.ErrBelowMinimumWithdrawal),
		errors.Is(err, escrow.ErrInsufficientBalance),
		errors.Is(err, escrow.ErrInsufficientPending):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to process operation",
	})
}
