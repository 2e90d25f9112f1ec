package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ChargebackOpen   = "open"
	ChargebackWon    = "won"
	ChargebackLost   = "lost"
	ChargebackClosed = "closed"
)

// Chargeback is a dispute the payment gateway raised against an organization,
// optionally tied to one auction event. A lost chargeback triggers a reserve
// deduction attempt; any amount the reserve cannot cover is recorded as
// ShortfallAmount and left for an external collections process.
type Chargeback struct {
	ID             uint64  `gorm:"primaryKey;autoIncrement"`
	OrganizationID uint64  `gorm:"not null;index"`
	EventID        *uint64 `gorm:"index"`

	Amount   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Currency string          `gorm:"type:varchar(10);not null;default:'USD'"`
	Reason   string          `gorm:"type:text"`

	Status           string `gorm:"type:varchar(20);not null;default:'open';index"`
	GatewayDisputeID string `gorm:"type:varchar(100);not null;uniqueIndex"`

	DeductedFromReserve bool            `gorm:"not null;default:false;index"`
	ShortfallAmount     decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`

	ResolvedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Chargeback) TableName() string {
	return "chargebacks"
}

func (c Chargeback) Resolved() bool {
	switch c.Status {
	case ChargebackWon, ChargebackLost, ChargebackClosed:
		return true
	}
	return false
}
