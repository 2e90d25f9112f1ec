// Package fees computes the fee/reserve split for an auction's gross
// proceeds. Everything here is pure: callers pass a policy snapshot in, so
// the math is deterministic and testable without wall-clock or storage
// dependence.
package fees

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FeeSchedule is the gateway's published fee formula plus the platform
// commission rate for one currency.
type FeeSchedule struct {
	ProcessorPct   decimal.Decimal
	ProcessorFixed decimal.Decimal
	PlatformPct    decimal.Decimal
}

// TierPolicy is the reserve treatment for one organization trust tier.
// LargePayoutLimit zero disables the size-based review check for the tier.
type TierPolicy struct {
	Name             string
	ReservePct       decimal.Decimal
	HoldPeriod       time.Duration
	LargePayoutLimit decimal.Decimal
}

// PolicySnapshot is a point-in-time view of platform policy. Batch runs take
// one snapshot up front so a mid-run config or switch change cannot split a
// batch between two policies.
type PolicySnapshot struct {
	FreeMode        bool
	MaturityWindow  time.Duration
	RetryLimit      int
	ChargebackLimit int
	DefaultTier     string
	Fees            map[string]FeeSchedule
	Tiers           map[string]TierPolicy
}

// Schedule resolves the fee schedule for a currency (case-insensitive).
func (s PolicySnapshot) Schedule(currency string) (FeeSchedule, bool) {
	sched, ok := s.Fees[strings.ToUpper(strings.TrimSpace(currency))]
	return sched, ok
}

// Tier resolves the policy for a trust level, falling back to the snapshot's
// default tier. ok is false when neither resolves.
func (s PolicySnapshot) Tier(level string) (TierPolicy, bool) {
	key := strings.ToLower(strings.TrimSpace(level))
	if tier, ok := s.Tiers[key]; ok {
		return tier, true
	}
	tier, ok := s.Tiers[strings.ToLower(strings.TrimSpace(s.DefaultTier))]
	return tier, ok
}
