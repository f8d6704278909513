package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"tradeport/internal/models"
)

func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Coupon{},
		&models.Order{},
		&models.LedgerEntry{},
		&models.Dispute{},
		&models.BankAccount{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database migration completed successfully")
	return nil
}
