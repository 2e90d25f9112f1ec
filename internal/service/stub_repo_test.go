package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"payouts/internal/gateway"
	"payouts/internal/models"
	"payouts/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// TransitionPayout keeps the compare-and-set semantics of the real store so
// claim races behave the same way in tests.
type stubRepo struct {
	mu sync.Mutex

	payouts     map[uint64]*models.Payout
	ledger      []models.ReserveLedgerEntry
	chargebacks map[uint64]*models.Chargeback
	orgs        map[uint64]*models.Organization
	events      map[uint64]*models.AuctionEvent
	runs        []models.PayoutRun
	settings    map[string]*models.SystemSetting

	nextPayoutID     uint64
	nextChargebackID uint64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		payouts:     map[uint64]*models.Payout{},
		chargebacks: map[uint64]*models.Chargeback{},
		orgs:        map[uint64]*models.Organization{},
		events:      map[uint64]*models.AuctionEvent{},
		settings:    map[string]*models.SystemSetting{},
	}
}

func (s *stubRepo) addPayout(p models.Payout) *models.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextPayoutID++
		p.ID = s.nextPayoutID
	} else if p.ID > s.nextPayoutID {
		s.nextPayoutID = p.ID
	}
	cp := p
	s.payouts[cp.ID] = &cp
	return &cp
}

func (s *stubRepo) addChargeback(cb models.Chargeback) *models.Chargeback {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb.ID == 0 {
		s.nextChargebackID++
		cb.ID = s.nextChargebackID
	} else if cb.ID > s.nextChargebackID {
		s.nextChargebackID = cb.ID
	}
	cp := cb
	s.chargebacks[cp.ID] = &cp
	return &cp
}

// InTx snapshots the mutable tables and restores them when fn fails, so a
// partial write sequence rolls back the way the real store's transaction
// does.
func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type stubSnapshot struct {
	payouts          map[uint64]*models.Payout
	ledger           []models.ReserveLedgerEntry
	chargebacks      map[uint64]*models.Chargeback
	nextPayoutID     uint64
	nextChargebackID uint64
}

func (s *stubRepo) snapshot() stubSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := stubSnapshot{
		payouts:          make(map[uint64]*models.Payout, len(s.payouts)),
		ledger:           make([]models.ReserveLedgerEntry, len(s.ledger)),
		chargebacks:      make(map[uint64]*models.Chargeback, len(s.chargebacks)),
		nextPayoutID:     s.nextPayoutID,
		nextChargebackID: s.nextChargebackID,
	}
	for id, p := range s.payouts {
		cp := *p
		snap.payouts[id] = &cp
	}
	copy(snap.ledger, s.ledger)
	for id, cb := range s.chargebacks {
		cp := *cb
		snap.chargebacks[id] = &cp
	}
	return snap
}

func (s *stubRepo) restore(snap stubSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts = snap.payouts
	s.ledger = snap.ledger
	s.chargebacks = snap.chargebacks
	s.nextPayoutID = snap.nextPayoutID
	s.nextChargebackID = snap.nextChargebackID
}

func (s *stubRepo) CreatePayoutTx(ctx context.Context, tx *gorm.DB, item *models.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPayoutID++
	item.ID = s.nextPayoutID
	cp := *item
	s.payouts[cp.ID] = &cp
	return nil
}

func (s *stubRepo) GetPayoutByID(ctx context.Context, id uint64) (*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *stubRepo) ListPayouts(ctx context.Context, params repository.ListPayoutsParams) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payout
	for _, p := range s.payouts {
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		if params.OrganizationID != nil && p.OrganizationID != *params.OrganizationID {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) CountPayouts(ctx context.Context, params repository.ListPayoutsParams) (int64, error) {
	items, _ := s.ListPayouts(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) ListPayoutsByStatuses(ctx context.Context, statuses []string, limit int) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var out []models.Payout
	for _, p := range s.payouts {
		if want[p.Status] {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) ListReserveReleaseCandidates(ctx context.Context, limit int) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payout
	for _, p := range s.payouts {
		if p.Status == "completed" && p.ReserveAmount.IsPositive() && p.ReserveClosedAt == nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) ListCompletedPayoutsWithOpenReserve(ctx context.Context, organizationID uint64, eventID *uint64) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payout
	for _, p := range s.payouts {
		if p.OrganizationID != organizationID || p.Status != "completed" {
			continue
		}
		if !p.ReserveAmount.IsPositive() || p.ReserveClosedAt != nil {
			continue
		}
		if eventID != nil && *eventID > 0 && p.EventID != *eventID {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) TransitionPayout(ctx context.Context, id uint64, from, to string, updates map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	for key, val := range updates {
		switch key {
		case "eligible_at":
			switch v := val.(type) {
			case *time.Time:
				p.EligibleAt = v
			case time.Time:
				p.EligibleAt = &v
			}
		case "processed_at":
			if v, ok := val.(time.Time); ok {
				p.ProcessedAt = &v
			}
		case "completed_at":
			if v, ok := val.(time.Time); ok {
				p.CompletedAt = &v
			}
		case "reviewed_at":
			if v, ok := val.(time.Time); ok {
				p.ReviewedAt = &v
			}
		case "reviewed_by":
			p.ReviewedBy, _ = val.(string)
		case "review_notes":
			p.ReviewNotes, _ = val.(string)
		case "requires_review":
			p.RequiresReview, _ = val.(bool)
		case "attempt_count":
			if v, ok := val.(int); ok {
				p.AttemptCount = v
			}
		case "failure_reason":
			p.FailureReason, _ = val.(string)
		case "transfer_reference":
			p.TransferReference, _ = val.(string)
		case "flags":
			switch v := val.(type) {
			case datatypes.JSON:
				p.Flags = v
			case []byte:
				p.Flags = datatypes.JSON(v)
			}
		}
	}
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *stubRepo) ClosePayoutReserve(ctx context.Context, id uint64, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payouts[id]; ok && p.ReserveClosedAt == nil {
		p.ReserveClosedAt = &closedAt
	}
	return nil
}

func (s *stubRepo) InsertReserveLedgerEntry(ctx context.Context, item *models.ReserveLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = uint64(len(s.ledger) + 1)
	s.ledger = append(s.ledger, *item)
	return nil
}

func (s *stubRepo) InsertReserveLedgerEntryTx(ctx context.Context, tx *gorm.DB, item *models.ReserveLedgerEntry) error {
	return s.InsertReserveLedgerEntry(ctx, item)
}

func (s *stubRepo) ListReserveLedgerEntries(ctx context.Context, payoutID uint64) ([]models.ReserveLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReserveLedgerEntry
	for _, e := range s.ledger {
		if e.PayoutID == payoutID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubRepo) SumReserveDisposals(ctx context.Context, payoutID uint64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, e := range s.ledger {
		if e.PayoutID == payoutID && e.Disposal() {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (s *stubRepo) CreateChargebackIfAbsent(ctx context.Context, item *models.Chargeback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cb := range s.chargebacks {
		if cb.GatewayDisputeID == item.GatewayDisputeID {
			return nil
		}
	}
	s.nextChargebackID++
	item.ID = s.nextChargebackID
	cp := *item
	s.chargebacks[cp.ID] = &cp
	return nil
}

func (s *stubRepo) GetChargebackByID(ctx context.Context, id uint64) (*models.Chargeback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.chargebacks[id]
	if !ok {
		return nil, nil
	}
	cp := *cb
	return &cp, nil
}

func (s *stubRepo) GetChargebackByDisputeID(ctx context.Context, gatewayDisputeID string) (*models.Chargeback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cb := range s.chargebacks {
		if cb.GatewayDisputeID == strings.TrimSpace(gatewayDisputeID) {
			cp := *cb
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListChargebacks(ctx context.Context, params repository.ListChargebacksParams) ([]models.Chargeback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chargeback
	for _, cb := range s.chargebacks {
		if params.Status != nil && cb.Status != *params.Status {
			continue
		}
		out = append(out, *cb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) CountChargebacks(ctx context.Context, params repository.ListChargebacksParams) (int64, error) {
	items, _ := s.ListChargebacks(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) CountOpenChargebacks(ctx context.Context, organizationID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, cb := range s.chargebacks {
		if cb.OrganizationID == organizationID && cb.Status == models.ChargebackOpen {
			total++
		}
	}
	return total, nil
}

func (s *stubRepo) ListUndeductedLostChargebacks(ctx context.Context, organizationID uint64, eventID *uint64) ([]models.Chargeback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chargeback
	for _, cb := range s.chargebacks {
		if cb.OrganizationID != organizationID || cb.Status != models.ChargebackLost || cb.DeductedFromReserve {
			continue
		}
		if eventID != nil && *eventID > 0 && cb.EventID != nil && *cb.EventID != *eventID {
			continue
		}
		out = append(out, *cb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) ResolveChargeback(ctx context.Context, id uint64, status string, resolvedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.chargebacks[id]
	if !ok || cb.Status != models.ChargebackOpen {
		return false, nil
	}
	cb.Status = status
	cb.ResolvedAt = &resolvedAt
	return true, nil
}

func (s *stubRepo) MarkChargebackDeducted(ctx context.Context, id uint64, shortfall decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.chargebacks[id]; ok {
		cb.DeductedFromReserve = true
		cb.ShortfallAmount = shortfall
	}
	return nil
}

func (s *stubRepo) MarkChargebackDeductedTx(ctx context.Context, tx *gorm.DB, id uint64, shortfall decimal.Decimal) error {
	return s.MarkChargebackDeducted(ctx, id, shortfall)
}

func (s *stubRepo) GetOrganizationByID(ctx context.Context, id uint64) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, nil
	}
	cp := *org
	return &cp, nil
}

func (s *stubRepo) ListOrganizationsByIDs(ctx context.Context, ids []uint64) ([]models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Organization
	for _, id := range ids {
		if org, ok := s.orgs[id]; ok {
			out = append(out, *org)
		}
	}
	return out, nil
}

func (s *stubRepo) GetAuctionEventByID(ctx context.Context, id uint64) (*models.AuctionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	cp := *event
	return &cp, nil
}

func (s *stubRepo) ListAuctionEventsByIDs(ctx context.Context, ids []uint64) ([]models.AuctionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuctionEvent
	for _, id := range ids {
		if event, ok := s.events[id]; ok {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (s *stubRepo) ListEventsAwaitingPayout(ctx context.Context, limit int) ([]models.AuctionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasPayout := map[uint64]bool{}
	for _, p := range s.payouts {
		hasPayout[p.EventID] = true
	}
	var out []models.AuctionEvent
	for _, event := range s.events {
		if event.Status != models.EventEnded || event.EndedAt == nil {
			continue
		}
		if !event.TotalRaised.IsPositive() || hasPayout[event.ID] {
			continue
		}
		out = append(out, *event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) InsertPayoutRun(ctx context.Context, item *models.PayoutRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = uint64(len(s.runs) + 1)
	s.runs = append(s.runs, *item)
	return nil
}

func (s *stubRepo) ListPayoutRuns(ctx context.Context, params repository.ListPayoutRunsParams) ([]models.PayoutRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PayoutRun, len(s.runs))
	copy(out, s.runs)
	return out, nil
}

func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.settings[cp.Key] = &cp
	return nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *stubRepo) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SystemSetting
	for _, item := range s.settings {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// stubGateway records transfer requests and answers with fn, or a canned
// success when fn is nil.
type stubGateway struct {
	mu    sync.Mutex
	calls []gateway.TransferRequest
	fn    func(req gateway.TransferRequest) (*gateway.Transfer, error)
}

func (g *stubGateway) CreateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	n := len(g.calls)
	g.mu.Unlock()
	if g.fn != nil {
		return g.fn(req)
	}
	return &gateway.Transfer{
		ID:       "tr_" + req.IdempotencyKey + "_" + decimal.NewFromInt(int64(n)).String(),
		Status:   "paid",
		Amount:   req.Amount,
		Currency: req.Currency,
	}, nil
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type stubNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *stubNotifier) Send(ctx context.Context, eventType string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return nil
}
