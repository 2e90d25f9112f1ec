package db

import (
	"payouts/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Organization{},
		&models.AuctionEvent{},
		&models.Payout{},
		&models.ReserveLedgerEntry{},
		&models.Chargeback{},
		&models.PayoutRun{},
		&models.SystemSetting{},
	)
}
