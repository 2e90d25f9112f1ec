package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"payouts/internal/config"
	"payouts/internal/fees"
	"payouts/internal/lifecycle"
	"payouts/internal/models"
	"payouts/internal/repository"
)

// PayoutFinalizerService turns ended auction events into pending payout
// records. One payout per (event, organization); the unique index plus the
// awaiting-payout scan make repeated runs safe.
type PayoutFinalizerService struct {
	Repo   repository.Repository
	Policy *PolicyResolver
	Logger *zap.Logger
	Config config.FinalizerConfig
	Flags  *SystemSettingsService
}

func (s *PayoutFinalizerService) RunOnce(ctx context.Context, trigger string) (RunResult, error) {
	var result RunResult
	if s == nil || s.Repo == nil || s.Policy == nil {
		return result, nil
	}
	// The switch pauses the scheduled job; a manual trigger still runs.
	if trigger == models.RunTriggerCron && !s.Flags.IsEnabled(ctx, FeaturePayoutFinalizer, true) {
		return result, nil
	}
	startedAt := time.Now().UTC()
	snap := s.Policy.Snapshot(ctx)

	batch := s.Config.BatchSize
	if batch <= 0 {
		batch = 100
	}
	events, err := s.Repo.ListEventsAwaitingPayout(ctx, batch)
	if err != nil {
		return result, err
	}
	for _, event := range events {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		created, err := s.finalizeEvent(ctx, snap, event)
		if err != nil {
			result.Errors++
			if s.Logger != nil {
				s.Logger.Warn("payout creation failed",
					zap.Uint64("event_id", event.ID),
					zap.Uint64("organization_id", event.OrganizationID),
					zap.Error(err),
				)
			}
			continue
		}
		if created {
			result.Processed++
		}
	}

	recordRun(ctx, s.Repo, s.Logger, models.RunJobFinalizer, trigger, result, startedAt)
	if s.Logger != nil && (result.Processed > 0 || result.Errors > 0) {
		s.Logger.Info("payout finalizer run",
			zap.String("trigger", trigger),
			zap.Int("created", result.Processed),
			zap.Int("errors", result.Errors),
		)
	}
	return result, nil
}

func (s *PayoutFinalizerService) finalizeEvent(ctx context.Context, snap fees.PolicySnapshot, event models.AuctionEvent) (bool, error) {
	org, err := s.Repo.GetOrganizationByID(ctx, event.OrganizationID)
	if err != nil {
		return false, err
	}
	if org == nil {
		return false, errors.New("organization not found")
	}
	tier, ok := snap.Tier(org.TrustLevel)
	if !ok {
		// No tier policy means no reserve treatment resolves; the event
		// stays in the awaiting scan and is retried once policy exists.
		return false, fees.ErrPolicyMissing
	}
	breakdown, err := fees.Calculate(event.TotalRaised, event.Currency, tier, snap)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	payout := &models.Payout{
		EventID:        event.ID,
		OrganizationID: event.OrganizationID,
		GrossAmount:    breakdown.Gross,
		ProcessorFees:  breakdown.ProcessorFees,
		PlatformFee:    breakdown.PlatformFee,
		ReserveAmount:  breakdown.Reserve,
		NetPayout:      breakdown.Net,
		Currency:       event.Currency,
		Status:         lifecycle.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.CreatePayoutTx(ctx, tx, payout); err != nil {
			return err
		}
		if !breakdown.Reserve.IsPositive() {
			return nil
		}
		return s.Repo.InsertReserveLedgerEntryTx(ctx, tx, &models.ReserveLedgerEntry{
			PayoutID:  payout.ID,
			EntryType: models.ReserveEntryWithheld,
			Amount:    breakdown.Reserve,
			Reason:    "reserve withheld at payout creation",
			CreatedAt: now,
		})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
