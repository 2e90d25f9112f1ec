package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunJobFinalizer = "payout_finalizer"
	RunJobSweep     = "eligibility_sweep"
	RunJobProcessor = "payout_processor"
	RunJobReserve   = "reserve_release"

	RunTriggerCron   = "cron"
	RunTriggerManual = "manual"
)

// PayoutRun is the audit row one batch job execution leaves behind. Counter
// columns not meaningful for a given job stay zero.
type PayoutRun struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	RunKey  string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Job     string `gorm:"type:varchar(40);not null;index"`
	Trigger string `gorm:"type:varchar(20);not null;default:'cron'"`

	Processed int `gorm:"not null;default:0"`
	Held      int `gorm:"not null;default:0"`
	Released  int `gorm:"not null;default:0"`
	Forfeited int `gorm:"not null;default:0"`
	Errors    int `gorm:"not null;default:0"`
	Conflicts int `gorm:"not null;default:0"`

	Details datatypes.JSON `gorm:"type:jsonb"`

	StartedAt  time.Time `gorm:"type:timestamptz;not null"`
	FinishedAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (PayoutRun) TableName() string {
	return "payout_runs"
}
