package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tradeport/internal/escrow"
	"tradeport/internal/models"
	"tradeport/internal/services"
)

type AdminHandler struct {
	DB       *gorm.DB
	Engine   *escrow.Engine
	Paystack *services.PaystackService
	Notifier *services.NotificationService
}

func NewAdminHandler(db *gorm.DB, engine *escrow.Engine, paystack *services.PaystackService, notifier *services.NotificationService) *AdminHandler {
	return &AdminHandler{DB: db, Engine: engine, Paystack: paystack, Notifier: notifier}
}

// ListDisputes lists disputes for review, open ones first by default.
func (h *AdminHandler) ListDisputes(c *fiber.Ctx) error {
	query := h.DB.Preload("Order").Preload("Order.Buyer").Preload("Order.Seller")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var disputes []models.Dispute
	if err := query.Order("created_at ASC").Find(&disputes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve disputes"})
	}

	return c.JSON(fiber.Map{
		"disputes": disputes,
		"count":    len(disputes),
	})
}

type ResolveDisputeRequest struct {
	Resolution       string `json:"resolution" validate:"required,oneof=refund_buyer payout_seller partial_refund"`
	Note             string `json:"note" validate:"required"`
	RefundPercentage int    `json:"refund_percentage" validate:"omitempty,min=1,max=99"`
}

// ResolveDispute applies the reviewer's decision and notifies both sides once
// the fund movements have committed.
func (h *AdminHandler) ResolveDispute(c *fiber.Ctx) error {
	disputeID, _ := c.ParamsInt("id")
	adminID := c.Locals("user_id").(uint)

	req := new(ResolveDisputeRequest)
	if !bindBody(c, req) {
		return nil
	}

	result, err := h.Engine.ResolveDispute(escrow.ResolveDisputeParams{
		DisputeID:        uint(disputeID),
		Resolution:       req.Resolution,
		AdminID:          adminID,
		Note:             req.Note,
		RefundPercentage: req.RefundPercentage,
	})
	if err != nil {
		return engineError(c, err)
	}

	var dispute models.Dispute
	if err := h.DB.Preload("Order").Preload("Order.Buyer").Preload("Order.Seller").First(&dispute, disputeID).Error; err == nil {
		h.Notifier.DisputeResolved(dispute.Order.Buyer.Email, dispute.OrderID, req.Resolution)
		h.Notifier.DisputeResolved(dispute.Order.Seller.Email, dispute.OrderID, req.Resolution)
	}

	return c.JSON(fiber.Map{
		"message": "Dispute resolved",
		"entries": result.Entries,
	})
}

// ListWithdrawals lists withdrawal requests awaiting review.
func (h *AdminHandler) ListWithdrawals(c *fiber.Ctx) error {
	status := c.Query("status", string(models.LedgerPending))

	var entries []models.LedgerEntry
	err := h.DB.Preload("User").
		Where("type = ? AND status = ?", models.LedgerWithdrawalRequest, status).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve withdrawals"})
	}

	return c.JSON(fiber.Map{
		"withdrawals": entries,
		"count":       len(entries),
	})
}

type ReviewWithdrawalRequest struct {
	Approve bool `json:"approve"`
}

// ReviewWithdrawal settles a pending withdrawal. The ledger and balance
// changes commit first; the bank transfer is fired afterwards so a gateway
// failure never leaves the books half-moved.
func (h *AdminHandler) ReviewWithdrawal(c *fiber.Ctx) error {
	entryID, _ := c.ParamsInt("id")
	adminID := c.Locals("user_id").(uint)

	req := new(ReviewWithdrawalRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	entry, err := h.Engine.ResolveWithdrawal(uint(entryID), req.Approve, adminID)
	if err != nil {
		return engineError(c, err)
	}

	if req.Approve {
		go h.transferOut(entry)
	}

	var user models.User
	if entry.UserID != nil {
		if err := h.DB.First(&user, *entry.UserID).Error; err == nil {
			h.Notifier.WithdrawalProcessed(user.Email, entry.Amount, req.Approve)
		}
	}

	message := "Withdrawal approved. Transfer initiated."
	if !req.Approve {
		message = "Withdrawal rejected. Funds returned to the user's balance."
	}
	return c.JSON(fiber.Map{
		"message": message,
		"entry":   entry,
	})
}

// transferOut pays an approved withdrawal to the bank account recorded on the
// request. Failures are logged for manual retry; the ledger already shows the
// request as completed and an operator reconciles against the rail.
func (h *AdminHandler) transferOut(entry *models.LedgerEntry) {
	accountID, ok := entry.Metadata.Int64("bank_account_id")
	if !ok {
		log.Printf("withdrawal entry #%d has no bank_account_id metadata", entry.ID)
		return
	}

	var account models.BankAccount
	if err := h.DB.First(&account, uint(accountID)).Error; err != nil {
		log.Printf("bank account %d for withdrawal entry #%d not found: %v", accountID, entry.ID, err)
		return
	}

	recipient, err := h.Paystack.CreateTransferRecipient(account.AccountName, account.AccountNumber, account.BankCode)
	if err != nil {
		log.Printf("creating transfer recipient for withdrawal entry #%d failed: %v", entry.ID, err)
		return
	}
	transferCode, err := h.Paystack.InitiateTransfer(recipient, entry.Amount, "Wallet withdrawal")
	if err != nil {
		log.Printf("initiating transfer for withdrawal entry #%d failed: %v", entry.ID, err)
		return
	}
	log.Printf("withdrawal entry #%d transfer initiated: %s", entry.ID, transferCode)
}
