package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tradeport/internal/escrow"
	"tradeport/internal/models"
)

type WalletHandler struct {
	DB     *gorm.DB
	Engine *escrow.Engine
}

func NewWalletHandler(db *gorm.DB, engine *escrow.Engine) *WalletHandler {
	return &WalletHandler{DB: db, Engine: engine}
}

// GetBalance returns the caller's balance triple.
func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return engineError(c, err)
	}

	return c.JSON(fiber.Map{
		"available_balance": user.AvailableBalance,
		"pending_balance":   user.PendingBalance,
		"total_earnings":    user.TotalEarnings,
	})
}

// GetLedgerHistory lists the caller's ledger entries, newest first.
func (h *WalletHandler) GetLedgerHistory(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	query := h.DB.Where("user_id = ?", userID)
	if t := c.Query("type"); t != "" {
		query = query.Where("type = ?", t)
	}

	var entries []models.LedgerEntry
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve ledger history"})
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

type WithdrawalAmountRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// ValidateWithdrawal runs the withdrawal checks without moving funds, so the
// client can show the reason before the user commits.
func (h *WalletHandler) ValidateWithdrawal(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	req := new(WithdrawalAmountRequest)
	if !bindBody(c, req) {
		return nil
	}

	check, err := h.Engine.ValidateWithdrawal(userID, req.Amount)
	if err != nil {
		return engineError(c, err)
	}

	return c.JSON(check)
}

type RequestWithdrawalRequest struct {
	Amount        int64 `json:"amount" validate:"required,gt=0"`
	BankAccountID uint  `json:"bank_account_id" validate:"required"`
}

// RequestWithdrawal blocks the amount and queues it for admin review.
func (h *WalletHandler) RequestWithdrawal(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	req := new(RequestWithdrawalRequest)
	if !bindBody(c, req) {
		return nil
	}

	var account models.BankAccount
	err := h.DB.Where("id = ? AND user_id = ?", req.BankAccountID, userID).First(&account).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Bank account not found"})
	}

	entry, err := h.Engine.RequestWithdrawal(userID, req.Amount, req.BankAccountID)
	if err != nil {
		return engineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Withdrawal request submitted for review",
		"entry":   entry,
	})
}

type AddBankAccountRequest struct {
	BankName      string `json:"bank_name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,len=10"`
	AccountName   string `json:"account_name" validate:"required"`
	BankCode      string `json:"bank_code" validate:"required"`
}

// AddBankAccount registers a payout destination. The first account a user
// adds becomes the default.
func (h *WalletHandler) AddBankAccount(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	req := new(AddBankAccountRequest)
	if !bindBody(c, req) {
		return nil
	}

	var count int64
	h.DB.Model(&models.BankAccount{}).Where("user_id = ?", userID).Count(&count)

	account := models.BankAccount{
		UserID:        userID,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		BankCode:      req.BankCode,
		IsDefault:     count == 0,
	}
	if err := h.DB.Create(&account).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to add bank account"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Bank account added",
		"account": account,
	})
}

// GetBankAccounts lists the caller's payout destinations.
func (h *WalletHandler) GetBankAccounts(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var accounts []models.BankAccount
	if err := h.DB.Where("user_id = ?", userID).Order("is_default DESC, created_at ASC").Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve bank accounts"})
	}

	return c.JSON(fiber.Map{
		"accounts": accounts,
		"count":    len(accounts),
	})
}
