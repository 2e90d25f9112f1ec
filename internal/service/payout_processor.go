package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"payouts/internal/config"
	"payouts/internal/fees"
	"payouts/internal/gate"
	"payouts/internal/gateway"
	"payouts/internal/lifecycle"
	"payouts/internal/metrics"
	"payouts/internal/models"
	"payouts/internal/notify"
	"payouts/internal/repository"
)

// PayoutProcessorService drains eligible payouts through the payment
// gateway. Each record is claimed with a compare-and-set transition, so
// overlapping runs never double-process; the idempotency key derived from
// the payout id means a retried transfer after a crash never double-pays.
// One record's failure never aborts its siblings.
type PayoutProcessorService struct {
	Repo    repository.Repository
	Gateway TransferGateway
	Notify  Notifier
	Policy  *PolicyResolver
	Logger  *zap.Logger
	Config  config.ProcessorConfig
	Flags   *SystemSettingsService
	Metrics *metrics.Registry
}

func (s *PayoutProcessorService) ProcessEligiblePayouts(ctx context.Context, trigger string) (RunResult, error) {
	var result RunResult
	if s == nil || s.Repo == nil || s.Gateway == nil || s.Policy == nil {
		return result, nil
	}
	if trigger == models.RunTriggerCron && !s.Flags.IsEnabled(ctx, FeaturePayoutProcessor, true) {
		return result, nil
	}
	startedAt := time.Now().UTC()
	snap := s.Policy.Snapshot(ctx)

	batch := s.Config.BatchSize
	if batch <= 0 {
		batch = 100
	}

	requeued, err := s.requeueFailed(ctx, snap, batch, &result)
	if err != nil {
		return result, err
	}
	if requeued > 0 && s.Logger != nil {
		s.Logger.Info("requeued failed payouts", zap.Int("count", requeued))
	}

	eligible, err := s.Repo.ListPayoutsByStatuses(ctx, []string{lifecycle.StatusEligible}, batch)
	if err != nil {
		return result, err
	}
	s.Metrics.SetEligibleBacklog(float64(len(eligible)))

	parallelism := s.Config.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex

	now := time.Now().UTC()
	for _, payout := range eligible {
		payout := payout
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := s.processOne(ctx, snap, payout, now)
			mu.Lock()
			switch outcome {
			case outcomeCompleted:
				result.Processed++
			case outcomeHeld:
				result.Held++
			case outcomeFailed:
				result.Errors++
			case outcomeConflict:
				result.Conflicts++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Metrics.ObserveRunDuration(models.RunJobProcessor, time.Since(startedAt).Seconds())
	recordRun(ctx, s.Repo, s.Logger, models.RunJobProcessor, trigger, result, startedAt)
	if s.Logger != nil && (result.Processed > 0 || result.Held > 0 || result.Errors > 0 || result.Conflicts > 0) {
		s.Logger.Info("payout processor run",
			zap.String("trigger", trigger),
			zap.Int("processed", result.Processed),
			zap.Int("held", result.Held),
			zap.Int("errors", result.Errors),
			zap.Int("conflicts", result.Conflicts),
		)
	}
	return result, nil
}

// requeueFailed moves failed payouts back to eligible while attempts remain,
// and parks the rest in held for manual handling.
func (s *PayoutProcessorService) requeueFailed(ctx context.Context, snap fees.PolicySnapshot, batch int, result *RunResult) (int, error) {
	failed, err := s.Repo.ListPayoutsByStatuses(ctx, []string{lifecycle.StatusFailed}, batch)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, payout := range failed {
		if ctx.Err() != nil {
			return requeued, ctx.Err()
		}
		if snap.RetryLimit <= 0 || payout.AttemptCount < snap.RetryLimit {
			moved, err := s.Repo.TransitionPayout(ctx, payout.ID, lifecycle.StatusFailed, lifecycle.StatusEligible, nil)
			if err != nil {
				result.Errors++
				continue
			}
			if moved {
				requeued++
			}
			continue
		}
		moved, err := s.Repo.TransitionPayout(ctx, payout.ID, lifecycle.StatusFailed, lifecycle.StatusHeld, map[string]any{
			"requires_review": true,
			"flags":           mergeFlags(payout.Flags, []string{FlagRetryLimit}),
		})
		if err != nil {
			result.Errors++
			continue
		}
		if moved {
			result.Held++
			s.Metrics.IncHeld()
			if s.Logger != nil {
				s.Logger.Warn("payout exceeded retry limit, held for review",
					zap.Uint64("payout_id", payout.ID),
					zap.Int("attempts", payout.AttemptCount),
				)
			}
			notifyAsync(s.Notify, s.Logger, notify.EventPayoutHeld, map[string]any{
				"payout_id":       payout.ID,
				"organization_id": payout.OrganizationID,
				"flags":           []string{FlagRetryLimit},
			})
		}
	}
	return requeued, nil
}

type processOutcome int

const (
	outcomeSkipped processOutcome = iota
	outcomeCompleted
	outcomeHeld
	outcomeFailed
	outcomeConflict
)

func (s *PayoutProcessorService) processOne(ctx context.Context, snap fees.PolicySnapshot, payout models.Payout, now time.Time) processOutcome {
	event, err := s.Repo.GetAuctionEventByID(ctx, payout.EventID)
	if err != nil || event == nil || event.EndedAt == nil {
		s.logRecordWarn(payout.ID, "auction event lookup failed", err)
		return outcomeFailed
	}
	org, err := s.Repo.GetOrganizationByID(ctx, payout.OrganizationID)
	if err != nil || org == nil {
		s.logRecordWarn(payout.ID, "organization lookup failed", err)
		return outcomeFailed
	}
	tier, ok := snap.Tier(org.TrustLevel)
	if !ok {
		s.logRecordWarn(payout.ID, "no tier policy for organization", fees.ErrPolicyMissing)
		return outcomeFailed
	}

	// Last-minute gate pass: risk information that arrived since the sweep
	// (a freshly opened chargeback) demotes the payout instead of paying it.
	open, err := s.Repo.CountOpenChargebacks(ctx, org.ID)
	if err != nil {
		s.logRecordWarn(payout.ID, "open chargeback count failed", err)
		return outcomeFailed
	}
	decision := gate.Evaluate(gate.Input{
		Status:          payout.Status,
		NetPayout:       payout.NetPayout,
		EventEndedAt:    *event.EndedAt,
		Now:             now,
		Tier:            tier,
		MaturityWindow:  snap.MaturityWindow,
		ChargebackLimit: snap.ChargebackLimit,
		OpenChargebacks: int(open),
		ChargebackCount: org.ChargebackCount,
	})
	if decision.Status == lifecycle.StatusHeld {
		moved, err := s.Repo.TransitionPayout(ctx, payout.ID, lifecycle.StatusEligible, lifecycle.StatusHeld, map[string]any{
			"requires_review": true,
			"flags":           mergeFlags(payout.Flags, decision.Flags),
		})
		if err != nil {
			s.logRecordWarn(payout.ID, "demotion to held failed", err)
			return outcomeFailed
		}
		if !moved {
			s.Metrics.IncClaimConflict()
			return outcomeConflict
		}
		s.Metrics.IncHeld()
		notifyAsync(s.Notify, s.Logger, notify.EventPayoutHeld, map[string]any{
			"payout_id":       payout.ID,
			"organization_id": payout.OrganizationID,
			"flags":           decision.Flags,
		})
		return outcomeHeld
	}

	// Exclusive claim. Losing the race is not an error, just a metric.
	claimed, err := s.Repo.TransitionPayout(ctx, payout.ID, lifecycle.StatusEligible, lifecycle.StatusProcessing, map[string]any{
		"processed_at":  now,
		"attempt_count": payout.AttemptCount + 1,
	})
	if err != nil {
		s.logRecordWarn(payout.ID, "claim failed", err)
		return outcomeFailed
	}
	if !claimed {
		s.Metrics.IncClaimConflict()
		return outcomeConflict
	}

	transferTimeout := s.Config.TransferTimeout
	if transferTimeout <= 0 {
		transferTimeout = 20 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()
	transfer, err := s.Gateway.CreateTransfer(callCtx, gateway.TransferRequest{
		Amount:         payout.NetPayout,
		Currency:       payout.Currency,
		Destination:    org.DestinationAccount,
		Description:    fmt.Sprintf("auction %d proceeds", payout.EventID),
		IdempotencyKey: payoutIdempotencyKey(payout.ID),
	})
	if err != nil {
		// Includes timeouts with unknown outcome: never completed without an
		// explicit gateway success, the idempotency key makes retry safe.
		kind := "retryable"
		if gateway.IsPermanent(err) {
			kind = "permanent"
		}
		s.Metrics.IncTransferError(kind)
		if _, ferr := s.Repo.TransitionPayout(ctx, payout.ID, lifecycle.StatusProcessing, lifecycle.StatusFailed, map[string]any{
			"failure_reason": err.Error(),
		}); ferr != nil {
			s.logRecordWarn(payout.ID, "transition to failed errored", ferr)
		}
		s.logRecordWarn(payout.ID, "transfer failed", err)
		notifyAsync(s.Notify, s.Logger, notify.EventPayoutFailed, map[string]any{
			"payout_id":       payout.ID,
			"organization_id": payout.OrganizationID,
			"reason":          err.Error(),
		})
		return outcomeFailed
	}

	completedAt := time.Now().UTC()
	moved, err := s.Repo.TransitionPayout(ctx, payout.ID, lifecycle.StatusProcessing, lifecycle.StatusCompleted, map[string]any{
		"completed_at":       completedAt,
		"transfer_reference": transfer.ID,
		"failure_reason":     "",
	})
	if err != nil || !moved {
		s.logRecordWarn(payout.ID, "completion transition failed", err)
		return outcomeFailed
	}
	s.Metrics.IncProcessed()
	notifyAsync(s.Notify, s.Logger, notify.EventPayoutCompleted, map[string]any{
		"payout_id":          payout.ID,
		"organization_id":    payout.OrganizationID,
		"net_payout":         payout.NetPayout.StringFixed(2),
		"currency":           payout.Currency,
		"transfer_reference": transfer.ID,
	})
	return outcomeCompleted
}

func payoutIdempotencyKey(id uint64) string {
	return "payout-" + strconv.FormatUint(id, 10)
}

func (s *PayoutProcessorService) logRecordWarn(payoutID uint64, msg string, err error) {
	if s == nil || s.Logger == nil {
		return
	}
	if err == nil {
		err = errors.New(msg)
	}
	s.Logger.Warn(msg, zap.Uint64("payout_id", payoutID), zap.Error(err))
}
