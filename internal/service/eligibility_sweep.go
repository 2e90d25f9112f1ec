package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"payouts/internal/config"
	"payouts/internal/fees"
	"payouts/internal/gate"
	"payouts/internal/lifecycle"
	"payouts/internal/metrics"
	"payouts/internal/models"
	"payouts/internal/notify"
	"payouts/internal/repository"
)

// EligibilitySweepService periodically re-evaluates pending and eligible
// payouts against the gate. Pending payouts mature into eligible or divert
// to held; eligible payouts can be demoted to held on new risk information.
// Held payouts are never touched here, only by admin approval.
type EligibilitySweepService struct {
	Repo    repository.Repository
	Policy  *PolicyResolver
	Notify  Notifier
	Logger  *zap.Logger
	Config  config.SweepConfig
	Flags   *SystemSettingsService
	Metrics *metrics.Registry
}

func (s *EligibilitySweepService) RunOnce(ctx context.Context, trigger string) (RunResult, error) {
	var result RunResult
	if s == nil || s.Repo == nil || s.Policy == nil {
		return result, nil
	}
	if trigger == models.RunTriggerCron && !s.Flags.IsEnabled(ctx, FeatureEligibilitySweep, true) {
		return result, nil
	}
	startedAt := time.Now().UTC()
	snap := s.Policy.Snapshot(ctx)

	batch := s.Config.BatchSize
	if batch <= 0 {
		batch = 200
	}
	payouts, err := s.Repo.ListPayoutsByStatuses(ctx, []string{lifecycle.StatusPending, lifecycle.StatusEligible}, batch)
	if err != nil {
		return result, err
	}
	now := time.Now().UTC()
	for _, payout := range payouts {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		status, err := s.applyGate(ctx, snap, payout, now)
		if err != nil {
			result.Errors++
			if s.Logger != nil {
				s.Logger.Warn("eligibility evaluation failed", zap.Uint64("payout_id", payout.ID), zap.Error(err))
			}
			continue
		}
		switch status {
		case lifecycle.StatusEligible:
			result.Processed++
		case lifecycle.StatusHeld:
			result.Held++
		}
	}

	recordRun(ctx, s.Repo, s.Logger, models.RunJobSweep, trigger, result, startedAt)
	if s.Logger != nil && (result.Processed > 0 || result.Held > 0 || result.Errors > 0) {
		s.Logger.Info("eligibility sweep run",
			zap.String("trigger", trigger),
			zap.Int("promoted", result.Processed),
			zap.Int("held", result.Held),
			zap.Int("errors", result.Errors),
		)
	}
	return result, nil
}

// applyGate evaluates one payout and applies the decision through a
// compare-and-set transition. It returns the status the payout moved to, or
// "" when the gate left it alone.
func (s *EligibilitySweepService) applyGate(ctx context.Context, snap fees.PolicySnapshot, payout models.Payout, now time.Time) (string, error) {
	input, err := s.gateInput(ctx, snap, payout, now)
	if err != nil {
		return "", err
	}
	decision := gate.Evaluate(input)
	if decision.Status == "" {
		return "", nil
	}
	if err := lifecycle.CanTransition(payout.Status, decision.Status); err != nil {
		return "", err
	}

	updates := map[string]any{}
	switch decision.Status {
	case lifecycle.StatusEligible:
		updates["eligible_at"] = decision.EligibleAt
	case lifecycle.StatusHeld:
		updates["requires_review"] = true
		updates["flags"] = mergeFlags(payout.Flags, decision.Flags)
	}
	moved, err := s.Repo.TransitionPayout(ctx, payout.ID, payout.Status, decision.Status, updates)
	if err != nil {
		return "", err
	}
	if !moved {
		// Raced with the processor or an admin action; next sweep re-reads.
		return "", nil
	}
	if decision.Status == lifecycle.StatusHeld {
		s.Metrics.IncHeld()
		notifyAsync(s.Notify, s.Logger, notify.EventPayoutHeld, map[string]any{
			"payout_id":       payout.ID,
			"organization_id": payout.OrganizationID,
			"flags":           decision.Flags,
		})
	}
	return decision.Status, nil
}

func (s *EligibilitySweepService) gateInput(ctx context.Context, snap fees.PolicySnapshot, payout models.Payout, now time.Time) (gate.Input, error) {
	event, err := s.Repo.GetAuctionEventByID(ctx, payout.EventID)
	if err != nil {
		return gate.Input{}, err
	}
	if event == nil || event.EndedAt == nil {
		return gate.Input{}, errors.New("auction event missing or not ended")
	}
	org, err := s.Repo.GetOrganizationByID(ctx, payout.OrganizationID)
	if err != nil {
		return gate.Input{}, err
	}
	if org == nil {
		return gate.Input{}, errors.New("organization not found")
	}
	tier, ok := snap.Tier(org.TrustLevel)
	if !ok {
		return gate.Input{}, fees.ErrPolicyMissing
	}
	open, err := s.Repo.CountOpenChargebacks(ctx, org.ID)
	if err != nil {
		return gate.Input{}, err
	}
	return gate.Input{
		Status:          payout.Status,
		NetPayout:       payout.NetPayout,
		EventEndedAt:    *event.EndedAt,
		Now:             now,
		Tier:            tier,
		MaturityWindow:  snap.MaturityWindow,
		ChargebackLimit: snap.ChargebackLimit,
		OpenChargebacks: int(open),
		ChargebackCount: org.ChargebackCount,
	}, nil
}
