package routes

import (
	"github.com/gofiber/fiber/v2"

	"tradeport/internal/handlers"
	"tradeport/internal/middleware"
)

func SetupWalletRoutes(app *fiber.App, h *handlers.WalletHandler) {
	wallet := app.Group("/api/wallet", middleware.Protected())

	// Balance triple
	wallet.Get("/balance", h.GetBalance)

	// Ledger history
	wallet.Get("/ledger", h.GetLedgerHistory)

	// Withdrawals
	wallet.Post("/withdraw/validate", h.ValidateWithdrawal)
	wallet.Post("/withdraw", h.RequestWithdrawal)

	// Bank accounts
	wallet.Post("/bank-accounts", h.AddBankAccount)
	wallet.Get("/bank-accounts", h.GetBankAccounts)
}
