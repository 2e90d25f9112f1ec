package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payout is one disbursement owed to an organization for a single auction
// event. The fee split recorded at creation is immutable; later reserve
// movement lives in ReserveLedgerEntry rows, never here.
type Payout struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	EventID        uint64 `gorm:"not null;uniqueIndex:uniq_payout_event_org"`
	OrganizationID uint64 `gorm:"not null;uniqueIndex:uniq_payout_event_org;index"`

	GrossAmount   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ProcessorFees decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PlatformFee   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ReserveAmount decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	NetPayout     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Currency      string          `gorm:"type:varchar(10);not null;default:'USD'"`

	Status string `gorm:"type:varchar(20);not null;default:'pending';index"`

	// Risk-flag tags appended by the eligibility gate, JSON array of strings.
	Flags          datatypes.JSON `gorm:"type:jsonb"`
	RequiresReview bool           `gorm:"not null;default:false;index"`

	ReviewedBy  string     `gorm:"type:varchar(120)"`
	ReviewedAt  *time.Time `gorm:"type:timestamptz"`
	ReviewNotes string     `gorm:"type:text"`

	AttemptCount      int        `gorm:"not null;default:0"`
	FailureReason     string     `gorm:"type:text"`
	TransferReference string     `gorm:"type:varchar(100);index"`
	EligibleAt        *time.Time `gorm:"type:timestamptz"`
	ProcessedAt       *time.Time `gorm:"type:timestamptz"`
	CompletedAt       *time.Time `gorm:"type:timestamptz"`

	// Set once the reserve is fully disposed (released and/or forfeited);
	// keeps the release scan from re-reading settled payouts forever.
	ReserveClosedAt *time.Time `gorm:"type:timestamptz;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Payout) TableName() string {
	return "payouts"
}
