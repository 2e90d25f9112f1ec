package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"payouts/internal/config"
	"payouts/internal/fees"
)

// PolicyResolver turns static config plus the free-mode runtime switch into
// an immutable fees.PolicySnapshot. Each batch run takes one snapshot up
// front, so a mid-run config or switch change cannot split a batch between
// two policies.
type PolicyResolver struct {
	Config config.PolicyConfig
	Flags  *SystemSettingsService
}

func (r *PolicyResolver) Snapshot(ctx context.Context) fees.PolicySnapshot {
	if r == nil {
		return fees.PolicySnapshot{}
	}
	snap := fees.PolicySnapshot{
		FreeMode:        r.Config.FreeMode,
		MaturityWindow:  r.Config.MaturityWindow,
		RetryLimit:      r.Config.RetryLimit,
		ChargebackLimit: r.Config.ChargebackLimit,
		DefaultTier:     strings.ToLower(strings.TrimSpace(r.Config.DefaultTier)),
		Fees:            make(map[string]fees.FeeSchedule, len(r.Config.Fees)),
		Tiers:           make(map[string]fees.TierPolicy, len(r.Config.Tiers)),
	}
	if r.Flags != nil {
		snap.FreeMode = r.Flags.IsEnabled(ctx, SettingPlatformFreeMode, r.Config.FreeMode)
	}
	for currency, sched := range r.Config.Fees {
		key := strings.ToUpper(strings.TrimSpace(currency))
		if key == "" {
			continue
		}
		snap.Fees[key] = fees.FeeSchedule{
			ProcessorPct:   decimal.NewFromFloat(sched.ProcessorPct),
			ProcessorFixed: decimal.NewFromFloat(sched.ProcessorFixed),
			PlatformPct:    decimal.NewFromFloat(sched.PlatformPct),
		}
	}
	for name, tier := range r.Config.Tiers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		snap.Tiers[key] = fees.TierPolicy{
			Name:             key,
			ReservePct:       decimal.NewFromFloat(tier.ReservePct),
			HoldPeriod:       tier.HoldPeriod,
			LargePayoutLimit: decimal.NewFromFloat(tier.LargePayoutLimit),
		}
	}
	return snap
}
