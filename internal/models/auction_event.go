package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventActive = "active"
	EventEnded  = "ended"
)

// AuctionEvent is the engine's read-only projection of an auction: enough to
// know who is owed what and when the clock started. The auction service owns
// the full record.
type AuctionEvent struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	OrganizationID uint64 `gorm:"not null;index"`

	Title       string          `gorm:"type:varchar(300)"`
	Currency    string          `gorm:"type:varchar(10);not null;default:'USD'"`
	TotalRaised decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`

	Status  string     `gorm:"type:varchar(20);not null;default:'active';index"`
	EndedAt *time.Time `gorm:"type:timestamptz;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (AuctionEvent) TableName() string {
	return "auction_events"
}
