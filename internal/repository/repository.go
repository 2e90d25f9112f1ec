package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"payouts/internal/models"
)

// Repository is the storage boundary for the payout engine. Status-changing
// payout and chargeback writes go through the compare-and-set Transition
// methods so the legal-transition guard holds against the store, not just in
// memory.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Payouts
	CreatePayoutTx(ctx context.Context, tx *gorm.DB, item *models.Payout) error
	GetPayoutByID(ctx context.Context, id uint64) (*models.Payout, error)
	ListPayouts(ctx context.Context, params ListPayoutsParams) ([]models.Payout, error)
	CountPayouts(ctx context.Context, params ListPayoutsParams) (int64, error)
	ListPayoutsByStatuses(ctx context.Context, statuses []string, limit int) ([]models.Payout, error)
	ListReserveReleaseCandidates(ctx context.Context, limit int) ([]models.Payout, error)
	ListCompletedPayoutsWithOpenReserve(ctx context.Context, organizationID uint64, eventID *uint64) ([]models.Payout, error)

	// TransitionPayout performs the atomic conditional status update
	// `SET ... WHERE id = ? AND status = ?` and reports whether the row was
	// claimed. A false return with a nil error means another worker got
	// there first.
	TransitionPayout(ctx context.Context, id uint64, from, to string, updates map[string]any) (bool, error)

	// ClosePayoutReserve stamps reserve_closed_at once the reserve is fully
	// disposed so the release scan stops re-reading the payout.
	ClosePayoutReserve(ctx context.Context, id uint64, closedAt time.Time) error

	// Reserve ledger (append-only)
	InsertReserveLedgerEntry(ctx context.Context, item *models.ReserveLedgerEntry) error
	InsertReserveLedgerEntryTx(ctx context.Context, tx *gorm.DB, item *models.ReserveLedgerEntry) error
	ListReserveLedgerEntries(ctx context.Context, payoutID uint64) ([]models.ReserveLedgerEntry, error)
	SumReserveDisposals(ctx context.Context, payoutID uint64) (decimal.Decimal, error)

	// Chargebacks
	CreateChargebackIfAbsent(ctx context.Context, item *models.Chargeback) error
	GetChargebackByID(ctx context.Context, id uint64) (*models.Chargeback, error)
	GetChargebackByDisputeID(ctx context.Context, gatewayDisputeID string) (*models.Chargeback, error)
	ListChargebacks(ctx context.Context, params ListChargebacksParams) ([]models.Chargeback, error)
	CountChargebacks(ctx context.Context, params ListChargebacksParams) (int64, error)
	CountOpenChargebacks(ctx context.Context, organizationID uint64) (int64, error)
	ListUndeductedLostChargebacks(ctx context.Context, organizationID uint64, eventID *uint64) ([]models.Chargeback, error)
	ResolveChargeback(ctx context.Context, id uint64, status string, resolvedAt time.Time) (bool, error)
	MarkChargebackDeducted(ctx context.Context, id uint64, shortfall decimal.Decimal) error
	// MarkChargebackDeductedTx is the in-transaction variant used when the
	// deducted mark must commit together with the forfeiture ledger entries.
	MarkChargebackDeductedTx(ctx context.Context, tx *gorm.DB, id uint64, shortfall decimal.Decimal) error

	// Organizations & auction events (read-only projections)
	GetOrganizationByID(ctx context.Context, id uint64) (*models.Organization, error)
	ListOrganizationsByIDs(ctx context.Context, ids []uint64) ([]models.Organization, error)
	GetAuctionEventByID(ctx context.Context, id uint64) (*models.AuctionEvent, error)
	ListAuctionEventsByIDs(ctx context.Context, ids []uint64) ([]models.AuctionEvent, error)
	ListEventsAwaitingPayout(ctx context.Context, limit int) ([]models.AuctionEvent, error)

	// Batch run audit
	InsertPayoutRun(ctx context.Context, item *models.PayoutRun) error
	ListPayoutRuns(ctx context.Context, params ListPayoutRunsParams) ([]models.PayoutRun, error)

	// System settings
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}

type ListPayoutsParams struct {
	Limit          int
	Offset         int
	Status         *string
	OrganizationID *uint64
	EventID        *uint64
	RequiresReview *bool
	Currency       *string
	Since          *time.Time
	OrderBy        string
	Asc            *bool
}

type ListChargebacksParams struct {
	Limit          int
	Offset         int
	Status         *string
	OrganizationID *uint64
	EventID        *uint64
	Deducted       *bool
	OrderBy        string
	Asc            *bool
}

type ListPayoutRunsParams struct {
	Limit   int
	Offset  int
	Job     *string
	Trigger *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
