package escrow

import (
	"gorm.io/gorm"

	"tradeport/internal/models"
)

// Balance primitives. Every decrement is guarded in SQL against the current
// row value, so a withdrawal and a dispute block racing on one user cannot
// both pass a stale check.

// creditEarnings adds settled funds to a party's available balance and
// lifetime earnings.
func creditEarnings(tx *gorm.DB, userID uint, amount int64) error {
	return tx.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"total_earnings":    gorm.Expr("total_earnings + ?", amount),
		}).Error
}

// blockFunds moves amount from available to pending (dispute block, pending
// withdrawal). Fails when the available balance re-read inside the atomic
// unit cannot cover the amount.
func blockFunds(tx *gorm.DB, userID uint, amount int64) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND available_balance >= ?", userID, amount).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance - ?", amount),
			"pending_balance":   gorm.Expr("pending_balance + ?", amount),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// unblockFunds returns blocked funds to the available balance.
func unblockFunds(tx *gorm.DB, userID uint, amount int64) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND pending_balance >= ?", userID, amount).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"pending_balance":   gorm.Expr("pending_balance - ?", amount),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientPending
	}
	return nil
}

// removePending takes blocked funds out of the account entirely (approved
// withdrawal, dispute clawback). withEarnings also reverses the lifetime
// earnings, which only dispute reversals do.
func removePending(tx *gorm.DB, userID uint, amount int64, withEarnings bool) error {
	updates := map[string]any{
		"pending_balance": gorm.Expr("pending_balance - ?", amount),
	}
	if withEarnings {
		updates["total_earnings"] = gorm.Expr("total_earnings - ?", amount)
	}
	res := tx.Model(&models.User{}).
		Where("id = ? AND pending_balance >= ?", userID, amount).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientPending
	}
	return nil
}
