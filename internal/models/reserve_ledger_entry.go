package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReserveEntryWithheld         = "withheld"
	ReserveEntryReleased         = "released"
	ReserveEntryForfeitedPartial = "forfeited_partial"
	ReserveEntryForfeitedFull    = "forfeited_full"
)

// ReserveLedgerEntry is the append-only record of reserve movement for a
// payout. Entries are never updated or deleted; the sum of released and
// forfeited amounts for a payout never exceeds its original reserve.
type ReserveLedgerEntry struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	PayoutID uint64 `gorm:"not null;index"`

	EntryType string          `gorm:"type:varchar(20);not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Reason    string          `gorm:"type:text"`

	RelatedChargebackID *uint64 `gorm:"index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ReserveLedgerEntry) TableName() string {
	return "reserve_ledger_entries"
}

// Disposal reports whether the entry moves reserve out of the withheld pool.
func (e ReserveLedgerEntry) Disposal() bool {
	switch e.EntryType {
	case ReserveEntryReleased, ReserveEntryForfeitedPartial, ReserveEntryForfeitedFull:
		return true
	}
	return false
}
