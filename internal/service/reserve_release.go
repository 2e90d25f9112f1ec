package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payouts/internal/config"
	"payouts/internal/fees"
	"payouts/internal/gateway"
	"payouts/internal/metrics"
	"payouts/internal/models"
	"payouts/internal/notify"
	"payouts/internal/repository"
)

// ReserveReleaseService disposes of the reserve withheld on completed
// payouts once the hold period lapses. Lost chargebacks claim their share
// first; whatever remains is transferred back to the organization. The
// reserve ledger is authoritative: remaining reserve is always original
// minus the ledger's disposals, never a mutated column.
type ReserveReleaseService struct {
	Repo    repository.Repository
	Gateway TransferGateway
	Notify  Notifier
	Policy  *PolicyResolver
	Logger  *zap.Logger
	Config  config.ReserveConfig
	Flags   *SystemSettingsService
	Metrics *metrics.Registry
}

func (s *ReserveReleaseService) ProcessReserveReleases(ctx context.Context, trigger string) (RunResult, error) {
	var result RunResult
	if s == nil || s.Repo == nil || s.Gateway == nil || s.Policy == nil {
		return result, nil
	}
	if trigger == models.RunTriggerCron && !s.Flags.IsEnabled(ctx, FeatureReserveRelease, true) {
		return result, nil
	}
	startedAt := time.Now().UTC()
	snap := s.Policy.Snapshot(ctx)

	batch := s.Config.BatchSize
	if batch <= 0 {
		batch = 100
	}
	candidates, err := s.Repo.ListReserveReleaseCandidates(ctx, batch)
	if err != nil {
		return result, err
	}
	now := time.Now().UTC()
	for _, payout := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		released, forfeited, err := s.releaseOne(ctx, snap, payout, now)
		if err != nil {
			result.Errors++
			if s.Logger != nil {
				s.Logger.Warn("reserve release failed", zap.Uint64("payout_id", payout.ID), zap.Error(err))
			}
			continue
		}
		if released {
			result.Released++
		}
		if forfeited {
			result.Forfeited++
		}
	}

	s.Metrics.ObserveRunDuration(models.RunJobReserve, time.Since(startedAt).Seconds())
	recordRun(ctx, s.Repo, s.Logger, models.RunJobReserve, trigger, result, startedAt)
	if s.Logger != nil && (result.Released > 0 || result.Forfeited > 0 || result.Errors > 0) {
		s.Logger.Info("reserve release run",
			zap.String("trigger", trigger),
			zap.Int("released", result.Released),
			zap.Int("forfeited", result.Forfeited),
			zap.Int("errors", result.Errors),
		)
	}
	return result, nil
}

func (s *ReserveReleaseService) releaseOne(ctx context.Context, snap fees.PolicySnapshot, payout models.Payout, now time.Time) (released, forfeited bool, err error) {
	event, err := s.Repo.GetAuctionEventByID(ctx, payout.EventID)
	if err != nil {
		return false, false, err
	}
	if event == nil || event.EndedAt == nil {
		return false, false, errors.New("auction event missing or not ended")
	}
	org, err := s.Repo.GetOrganizationByID(ctx, payout.OrganizationID)
	if err != nil {
		return false, false, err
	}
	if org == nil {
		return false, false, errors.New("organization not found")
	}
	tier, ok := snap.Tier(org.TrustLevel)
	if !ok {
		return false, false, fees.ErrPolicyMissing
	}
	if now.Before(event.EndedAt.Add(tier.HoldPeriod)) {
		return false, false, nil
	}

	remaining, err := s.remainingReserve(ctx, payout)
	if err != nil {
		return false, false, err
	}
	if !remaining.IsPositive() {
		return false, false, s.Repo.ClosePayoutReserve(ctx, payout.ID, now)
	}

	eventID := payout.EventID
	chargebacks, err := s.Repo.ListUndeductedLostChargebacks(ctx, payout.OrganizationID, &eventID)
	if err != nil {
		return false, false, err
	}
	for _, cb := range chargebacks {
		// Event-scoped chargebacks only touch this payout's reserve;
		// organization-wide ones spread across every open reserve so the
		// recorded shortfall reflects what the whole organization could
		// actually cover.
		if _, err := s.settleLostChargeback(ctx, cb, now); err != nil {
			return false, forfeited, err
		}
	}
	if len(chargebacks) > 0 {
		after, err := s.remainingReserve(ctx, payout)
		if err != nil {
			return false, forfeited, err
		}
		if after.LessThan(remaining) {
			forfeited = true
		}
		remaining = after
	}

	if remaining.IsPositive() {
		transfer, err := s.Gateway.CreateTransfer(ctx, gateway.TransferRequest{
			Amount:         remaining,
			Currency:       payout.Currency,
			Destination:    org.DestinationAccount,
			Description:    "reserve release for auction " + strconv.FormatUint(payout.EventID, 10),
			IdempotencyKey: reserveIdempotencyKey(payout.ID),
		})
		if err != nil {
			// Reserve stays open; the next run retries under the same
			// idempotency key.
			return false, forfeited, err
		}
		if err := s.Repo.InsertReserveLedgerEntry(ctx, &models.ReserveLedgerEntry{
			PayoutID:  payout.ID,
			EntryType: models.ReserveEntryReleased,
			Amount:    remaining,
			Reason:    "hold period elapsed, transfer " + transfer.ID,
			CreatedAt: now,
		}); err != nil {
			return false, forfeited, err
		}
		s.Metrics.IncReserveRelease()
		notifyAsync(s.Notify, s.Logger, notify.EventReserveReleased, map[string]any{
			"payout_id":          payout.ID,
			"organization_id":    payout.OrganizationID,
			"amount":             remaining.StringFixed(2),
			"currency":           payout.Currency,
			"transfer_reference": transfer.ID,
		})
		released = true
	}

	return released, forfeited, s.Repo.ClosePayoutReserve(ctx, payout.ID, now)
}

// ApplyLostChargeback is the eager deduction path used when a dispute
// resolves to lost: it forfeits reserve from the organization's open
// completed payouts right away instead of waiting for the release scan.
// Best effort; if nothing can be deducted yet the chargeback stays
// undeducted and the scan picks it up later.
func (s *ReserveReleaseService) ApplyLostChargeback(ctx context.Context, cb *models.Chargeback) error {
	if s == nil || s.Repo == nil || cb == nil {
		return nil
	}
	if cb.Status != models.ChargebackLost || cb.DeductedFromReserve {
		return nil
	}
	_, err := s.settleLostChargeback(ctx, *cb, time.Now().UTC())
	return err
}

// settleLostChargeback claims the chargeback's amount from the
// organization's open reserves, oldest payout first, scoped to the
// chargeback's auction event when it has one. The forfeiture ledger
// entries and the deducted mark commit in a single transaction: a failure
// partway leaves the chargeback undeducted with no entries written, so a
// retry can never book the same chargeback twice. Returns the amount
// covered; zero means nothing was claimable and the chargeback stays
// undeducted for a later scan.
func (s *ReserveReleaseService) settleLostChargeback(ctx context.Context, cb models.Chargeback, now time.Time) (decimal.Decimal, error) {
	candidates, err := s.Repo.ListCompletedPayoutsWithOpenReserve(ctx, cb.OrganizationID, cb.EventID)
	if err != nil {
		return decimal.Zero, err
	}

	type claim struct {
		payout    models.Payout
		amount    decimal.Decimal
		entryType string
	}
	var claims []claim
	covered := decimal.Zero
	outstanding := cb.Amount
	for _, payout := range candidates {
		if !outstanding.IsPositive() {
			break
		}
		remaining, err := s.remainingReserve(ctx, payout)
		if err != nil {
			return decimal.Zero, err
		}
		if !remaining.IsPositive() {
			continue
		}
		amount := outstanding
		entryType := models.ReserveEntryForfeitedPartial
		if amount.GreaterThanOrEqual(remaining) {
			amount = remaining
			entryType = models.ReserveEntryForfeitedFull
		}
		claims = append(claims, claim{payout: payout, amount: amount, entryType: entryType})
		covered = covered.Add(amount)
		outstanding = outstanding.Sub(amount)
	}
	if !covered.IsPositive() {
		return decimal.Zero, nil
	}

	shortfall := cb.Amount.Sub(covered)
	cbID := cb.ID
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		for _, c := range claims {
			if err := s.Repo.InsertReserveLedgerEntryTx(ctx, tx, &models.ReserveLedgerEntry{
				PayoutID:            c.payout.ID,
				EntryType:           c.entryType,
				Amount:              c.amount,
				Reason:              "lost chargeback " + cb.GatewayDisputeID,
				RelatedChargebackID: &cbID,
				CreatedAt:           now,
			}); err != nil {
				return err
			}
		}
		return s.Repo.MarkChargebackDeductedTx(ctx, tx, cbID, shortfall)
	})
	if err != nil {
		return decimal.Zero, err
	}

	for _, c := range claims {
		s.Metrics.IncReserveForfeiture(c.entryType)
		notifyAsync(s.Notify, s.Logger, notify.EventReserveForfeited, map[string]any{
			"payout_id":       c.payout.ID,
			"organization_id": c.payout.OrganizationID,
			"chargeback_id":   cb.ID,
			"amount":          c.amount.StringFixed(2),
		})
		if c.entryType == models.ReserveEntryForfeitedFull {
			if err := s.Repo.ClosePayoutReserve(ctx, c.payout.ID, now); err != nil {
				return covered, err
			}
		}
	}
	if shortfall.IsPositive() && s.Logger != nil {
		// Recovery of the uncovered remainder is a collections concern,
		// outside this engine; the amount stays queryable on the row.
		s.Logger.Warn("chargeback exceeds available reserve",
			zap.Uint64("chargeback_id", cb.ID),
			zap.String("shortfall", shortfall.StringFixed(2)),
		)
	}
	return covered, nil
}

// remainingReserve is the original reserve minus every released and
// forfeited ledger entry. It can never go below zero because disposals are
// capped at the remainder when written.
func (s *ReserveReleaseService) remainingReserve(ctx context.Context, payout models.Payout) (decimal.Decimal, error) {
	disposed, err := s.Repo.SumReserveDisposals(ctx, payout.ID)
	if err != nil {
		return decimal.Zero, err
	}
	remaining := payout.ReserveAmount.Sub(disposed)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining, nil
}

func reserveIdempotencyKey(payoutID uint64) string {
	return "reserve-" + strconv.FormatUint(payoutID, 10)
}
