package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payouts/internal/models"
	"payouts/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Payouts -----------------------------------------------------------------

func (s *Store) CreatePayoutTx(ctx context.Context, tx *gorm.DB, item *models.Payout) error {
	if s == nil || tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetPayoutByID(ctx context.Context, id uint64) (*models.Payout, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Payout
	err := s.db.WithContext(ctx).Model(&models.Payout{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPayouts(ctx context.Context, params repository.ListPayoutsParams) ([]models.Payout, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyPayoutFilters(s.db.WithContext(ctx).Model(&models.Payout{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Payout
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPayouts(ctx context.Context, params repository.ListPayoutsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applyPayoutFilters(s.db.WithContext(ctx).Model(&models.Payout{}), params).Count(&total).Error
	return total, err
}

func applyPayoutFilters(query *gorm.DB, params repository.ListPayoutsParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.OrganizationID != nil && *params.OrganizationID > 0 {
		query = query.Where("organization_id = ?", *params.OrganizationID)
	}
	if params.EventID != nil && *params.EventID > 0 {
		query = query.Where("event_id = ?", *params.EventID)
	}
	if params.RequiresReview != nil {
		query = query.Where("requires_review = ?", *params.RequiresReview)
	}
	if params.Currency != nil && strings.TrimSpace(*params.Currency) != "" {
		query = query.Where("currency = ?", strings.ToUpper(strings.TrimSpace(*params.Currency)))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) ListPayoutsByStatuses(ctx context.Context, statuses []string, limit int) ([]models.Payout, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	statuses = cleanStrings(statuses)
	if len(statuses) == 0 {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var items []models.Payout
	err := s.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("status IN ?", statuses).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListReserveReleaseCandidates(ctx context.Context, limit int) ([]models.Payout, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var items []models.Payout
	err := s.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("status = ?", "completed").
		Where("reserve_amount > 0").
		Where("reserve_closed_at IS NULL").
		Order("completed_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListCompletedPayoutsWithOpenReserve(ctx context.Context, organizationID uint64, eventID *uint64) ([]models.Payout, error) {
	if s == nil || s.db == nil || organizationID == 0 {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("organization_id = ?", organizationID).
		Where("status = ?", "completed").
		Where("reserve_amount > 0").
		Where("reserve_closed_at IS NULL")
	if eventID != nil && *eventID > 0 {
		query = query.Where("event_id = ?", *eventID)
	}
	var items []models.Payout
	if err := query.Order("completed_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) TransitionPayout(ctx context.Context, id uint64, from, to string, updates map[string]any) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if id == 0 || from == "" || to == "" {
		return false, nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ClosePayoutReserve(ctx context.Context, id uint64, closedAt time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Where("reserve_closed_at IS NULL").
		Updates(map[string]any{
			"reserve_closed_at": closedAt,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// --- Reserve ledger ----------------------------------------------------------

func (s *Store) InsertReserveLedgerEntry(ctx context.Context, item *models.ReserveLedgerEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertReserveLedgerEntryTx(ctx context.Context, tx *gorm.DB, item *models.ReserveLedgerEntry) error {
	if s == nil || tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) ListReserveLedgerEntries(ctx context.Context, payoutID uint64) ([]models.ReserveLedgerEntry, error) {
	if s == nil || s.db == nil || payoutID == 0 {
		return nil, nil
	}
	var items []models.ReserveLedgerEntry
	err := s.db.WithContext(ctx).
		Model(&models.ReserveLedgerEntry{}).
		Where("payout_id = ?", payoutID).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumReserveDisposals(ctx context.Context, payoutID uint64) (decimal.Decimal, error) {
	if s == nil || s.db == nil || payoutID == 0 {
		return decimal.Zero, nil
	}
	var out decimal.Decimal
	err := s.db.WithContext(ctx).
		Table("reserve_ledger_entries").
		Select("COALESCE(SUM(amount),0)").
		Where("payout_id = ?", payoutID).
		Where("entry_type IN ?", []string{
			models.ReserveEntryReleased,
			models.ReserveEntryForfeitedPartial,
			models.ReserveEntryForfeitedFull,
		}).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, err
	}
	return out, nil
}

// --- Chargebacks -------------------------------------------------------------

func (s *Store) CreateChargebackIfAbsent(ctx context.Context, item *models.Chargeback) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.GatewayDisputeID) == "" {
		return nil
	}
	// Webhook deliveries repeat; the dispute id is the dedupe key and an
	// existing row is never clobbered here.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_dispute_id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) GetChargebackByID(ctx context.Context, id uint64) (*models.Chargeback, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Chargeback
	err := s.db.WithContext(ctx).Model(&models.Chargeback{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetChargebackByDisputeID(ctx context.Context, gatewayDisputeID string) (*models.Chargeback, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	gatewayDisputeID = strings.TrimSpace(gatewayDisputeID)
	if gatewayDisputeID == "" {
		return nil, nil
	}
	var item models.Chargeback
	err := s.db.WithContext(ctx).
		Model(&models.Chargeback{}).
		Where("gateway_dispute_id = ?", gatewayDisputeID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListChargebacks(ctx context.Context, params repository.ListChargebacksParams) ([]models.Chargeback, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyChargebackFilters(s.db.WithContext(ctx).Model(&models.Chargeback{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Chargeback
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountChargebacks(ctx context.Context, params repository.ListChargebacksParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applyChargebackFilters(s.db.WithContext(ctx).Model(&models.Chargeback{}), params).Count(&total).Error
	return total, err
}

func applyChargebackFilters(query *gorm.DB, params repository.ListChargebacksParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.OrganizationID != nil && *params.OrganizationID > 0 {
		query = query.Where("organization_id = ?", *params.OrganizationID)
	}
	if params.EventID != nil && *params.EventID > 0 {
		query = query.Where("event_id = ?", *params.EventID)
	}
	if params.Deducted != nil {
		query = query.Where("deducted_from_reserve = ?", *params.Deducted)
	}
	return query
}

func (s *Store) CountOpenChargebacks(ctx context.Context, organizationID uint64) (int64, error) {
	if s == nil || s.db == nil || organizationID == 0 {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Chargeback{}).
		Where("organization_id = ?", organizationID).
		Where("status = ?", models.ChargebackOpen).
		Count(&total).Error
	return total, err
}

func (s *Store) ListUndeductedLostChargebacks(ctx context.Context, organizationID uint64, eventID *uint64) ([]models.Chargeback, error) {
	if s == nil || s.db == nil || organizationID == 0 {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.Chargeback{}).
		Where("organization_id = ?", organizationID).
		Where("status = ?", models.ChargebackLost).
		Where("deducted_from_reserve = ?", false)
	if eventID != nil && *eventID > 0 {
		// Event-scoped disputes hit their own payout; org-wide disputes
		// (no event) hit whichever reserve is open.
		query = query.Where("event_id = ? OR event_id IS NULL", *eventID)
	}
	var items []models.Chargeback
	if err := query.Order("created_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ResolveChargeback(ctx context.Context, id uint64, status string, resolvedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	status = strings.TrimSpace(status)
	if id == 0 || status == "" {
		return false, nil
	}
	if resolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Chargeback{}).
		Where("id = ?", id).
		Where("status = ?", models.ChargebackOpen).
		Updates(map[string]any{
			"status":      status,
			"resolved_at": resolvedAt,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MarkChargebackDeducted(ctx context.Context, id uint64, shortfall decimal.Decimal) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}
	return s.db.WithContext(ctx).
		Model(&models.Chargeback{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"deducted_from_reserve": true,
			"shortfall_amount":      shortfall,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (s *Store) MarkChargebackDeductedTx(ctx context.Context, tx *gorm.DB, id uint64, shortfall decimal.Decimal) error {
	if s == nil || tx == nil || id == 0 {
		return nil
	}
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}
	return tx.WithContext(ctx).
		Model(&models.Chargeback{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"deducted_from_reserve": true,
			"shortfall_amount":      shortfall,
			"updated_at":            time.Now().UTC(),
		}).Error
}

// --- Organizations & auction events ------------------------------------------

func (s *Store) GetOrganizationByID(ctx context.Context, id uint64) (*models.Organization, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Organization
	err := s.db.WithContext(ctx).Model(&models.Organization{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOrganizationsByIDs(ctx context.Context, ids []uint64) ([]models.Organization, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil, nil
	}
	var items []models.Organization
	err := s.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id IN ?", ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetAuctionEventByID(ctx context.Context, id uint64) (*models.AuctionEvent, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.AuctionEvent
	err := s.db.WithContext(ctx).Model(&models.AuctionEvent{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAuctionEventsByIDs(ctx context.Context, ids []uint64) ([]models.AuctionEvent, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil, nil
	}
	var items []models.AuctionEvent
	err := s.db.WithContext(ctx).
		Model(&models.AuctionEvent{}).
		Where("id IN ?", ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListEventsAwaitingPayout(ctx context.Context, limit int) ([]models.AuctionEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var items []models.AuctionEvent
	err := s.db.WithContext(ctx).
		Table("auction_events AS e").
		Select("e.*").
		Joins("LEFT JOIN payouts AS p ON p.event_id = e.id AND p.organization_id = e.organization_id").
		Where("e.status = ?", models.EventEnded).
		Where("e.ended_at IS NOT NULL").
		Where("e.total_raised > 0").
		Where("p.id IS NULL").
		Order("e.ended_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Batch run audit ----------------------------------------------------------

func (s *Store) InsertPayoutRun(ctx context.Context, item *models.PayoutRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListPayoutRuns(ctx context.Context, params repository.ListPayoutRunsParams) ([]models.PayoutRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PayoutRun{})
	if params.Job != nil && strings.TrimSpace(*params.Job) != "" {
		query = query.Where("job = ?", strings.TrimSpace(*params.Job))
	}
	if params.Trigger != nil && strings.TrimSpace(*params.Trigger) != "" {
		query = query.Where("\"trigger\" = ?", strings.TrimSpace(*params.Trigger))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("started_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "started_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.PayoutRun
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- System settings ----------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.SystemSetting
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers -------------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}
