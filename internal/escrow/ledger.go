package escrow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeport/internal/models"
)

// Ledger primitives. All of these run inside the caller's transaction; a
// ledger write and the balance mutation it justifies always share one atomic
// unit.

func appendEntry(tx *gorm.DB, entry *models.LedgerEntry) error {
	if entry.Reference == "" {
		entry.Reference = uuid.NewString()
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	return tx.Create(entry).Error
}

// findHeldEntry locks and returns the single held entry of the given type for
// an order.
func findHeldEntry(tx *gorm.DB, orderID uint, typ models.LedgerType) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND type = ? AND status = ?", orderID, typ, models.LedgerHeld).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func findEntry(tx *gorm.DB, orderID uint, typ models.LedgerType, status models.LedgerStatus) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := tx.Where("order_id = ? AND type = ? AND status = ?", orderID, typ, status).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// flipStatus settles a held entry. Held entries flip exactly once; terminal
// entries are immutable and corrections go through new entries.
func flipStatus(tx *gorm.DB, entry *models.LedgerEntry, to models.LedgerStatus) error {
	if entry.Status.Terminal() {
		return fmt.Errorf("ledger entry %s is terminal (%s), cannot change to %s",
			entry.Reference, entry.Status, to)
	}
	if !entry.Type.AllowsStatus(to) {
		return fmt.Errorf("ledger entry type %s cannot have status %s", entry.Type, to)
	}
	entry.Status = to
	return tx.Model(entry).Update("status", to).Error
}

func orderEntries(tx *gorm.DB, orderID uint) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := tx.Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&entries).Error
	return entries, err
}
