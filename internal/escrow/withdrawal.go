package escrow

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeport/internal/models"
)

// WithdrawalCheck is the outcome of withdrawal validation. Invalid checks
// carry the reason and the balance that was actually read.
type WithdrawalCheck struct {
	Valid            bool   `json:"valid"`
	AvailableBalance int64  `json:"available_balance"`
	Reason           string `json:"reason,omitempty"`
}

// ValidateWithdrawal re-reads the available balance and checks the amount
// against it and the configured minimum.
func (e *Engine) ValidateWithdrawal(userID uint, amount int64) (*WithdrawalCheck, error) {
	var user models.User
	if err := e.db.First(&user, userID).Error; err != nil {
		return nil, err
	}

	check := &WithdrawalCheck{AvailableBalance: user.AvailableBalance}
	switch {
	case amount <= 0:
		check.Reason = ErrInvalidAmount.Error()
	case amount < e.minWithdrawal:
		check.Reason = fmt.Sprintf("minimum withdrawal is %d", e.minWithdrawal)
	case amount > user.AvailableBalance:
		check.Reason = ErrInsufficientBalance.Error()
	default:
		check.Valid = true
	}
	return check, nil
}

// RequestWithdrawal moves the amount from available to pending and writes the
// withdrawal_request entry in the same unit. The balance guard runs inside
// the transaction, so a racing dispute block cannot slip past it.
func (e *Engine) RequestWithdrawal(userID uint, amount int64, bankAccountID uint) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return err
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}
		if amount < e.minWithdrawal {
			return fmt.Errorf("%w: minimum is %d", ErrBelowMinimumWithdrawal, e.minWithdrawal)
		}
		if err := blockFunds(tx, userID, amount); err != nil {
			return err
		}

		entry = models.LedgerEntry{
			UserID:      &userID,
			Type:        models.LedgerWithdrawalRequest,
			Amount:      amount,
			Status:      models.LedgerPending,
			Description: fmt.Sprintf("Withdrawal request of %d", amount),
			Metadata: models.JSONMap{
				"bank_account_id": bankAccountID,
			},
		}
		return appendEntry(tx, &entry)
	})
	e.metrics.observe("request_withdrawal", err)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ResolveWithdrawal settles a pending withdrawal request. Approval removes
// the already-blocked amount; rejection returns it to the available balance.
func (e *Engine) ResolveWithdrawal(entryID uint, approve bool, adminID uint) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := e.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, entryID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		if entry.Type != models.LedgerWithdrawalRequest || entry.Status != models.LedgerPending {
			return ErrWithdrawalNotPending
		}

		if entry.Metadata == nil {
			entry.Metadata = models.JSONMap{}
		}
		entry.Metadata["resolved_by"] = adminID

		if approve {
			if err := removePending(tx, *entry.UserID, entry.Amount, false); err != nil {
				return err
			}
			entry.Status = models.LedgerCompleted
		} else {
			if err := unblockFunds(tx, *entry.UserID, entry.Amount); err != nil {
				return err
			}
			entry.Status = models.LedgerCancelled
		}
		if err := entry.Validate(); err != nil {
			return err
		}
		return tx.Save(&entry).Error
	})
	e.metrics.observe("resolve_withdrawal", err)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
