package models

import (
	"time"
)

// Organization carries the seller trust profile and transfer destination.
// The payout engine reads this table and never mutates it; ownership lives
// with the organization service.
type Organization struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:varchar(200);not null"`

	TrustLevel            string `gorm:"type:varchar(20);not null;default:'new';index"`
	SuccessfulEventsCount int    `gorm:"not null;default:0"`
	ChargebackCount       int    `gorm:"not null;default:0"`

	// Gateway account the organization's transfers are sent to.
	DestinationAccount string `gorm:"type:varchar(100);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Organization) TableName() string {
	return "organizations"
}
