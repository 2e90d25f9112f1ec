// Package gate decides whether a payout may move toward payment or must be
// diverted to manual review. Evaluate is pure: time, policy, and chargeback
// counts are inputs, never ambient reads.
package gate

import (
	"time"

	"github.com/shopspring/decimal"

	"payouts/internal/fees"
	"payouts/internal/lifecycle"
)

const (
	FlagOpenChargeback    = "open_chargeback"
	FlagChargebackHistory = "chargeback_history"
	FlagLargePayout       = "large_payout"
)

// Input is everything the gate reads for one payout.
type Input struct {
	Status       string
	NetPayout    decimal.Decimal
	EventEndedAt time.Time
	Now          time.Time

	Tier            fees.TierPolicy
	MaturityWindow  time.Duration
	ChargebackLimit int

	OpenChargebacks int
	ChargebackCount int
}

// Decision is what the gate wants done. An empty Status means leave the
// payout exactly as it is.
type Decision struct {
	Status         string
	Flags          []string
	RequiresReview bool
	EligibleAt     *time.Time
}

// Evaluate applies the gate policy in order, first match wins:
//
//  1. pending payouts stay pending until event end + maturity window;
//  2. any open chargeback, a chargeback history over the limit, or a net
//     payout over the tier's large-payout limit diverts to held with the
//     triggering flags;
//  3. otherwise pending promotes to eligible, stamped with EligibleAt.
//
// Re-running on an eligible payout is a no-op unless new risk information
// demotes it. Held payouts are never promoted here; that takes an explicit
// admin approval.
func Evaluate(in Input) Decision {
	switch in.Status {
	case lifecycle.StatusPending:
		if in.EventEndedAt.IsZero() || in.Now.Before(in.EventEndedAt.Add(in.MaturityWindow)) {
			return Decision{}
		}
		if flags := riskFlags(in); len(flags) > 0 {
			return Decision{Status: lifecycle.StatusHeld, Flags: flags, RequiresReview: true}
		}
		now := in.Now
		return Decision{Status: lifecycle.StatusEligible, EligibleAt: &now}
	case lifecycle.StatusEligible:
		if flags := riskFlags(in); len(flags) > 0 {
			return Decision{Status: lifecycle.StatusHeld, Flags: flags, RequiresReview: true}
		}
		return Decision{}
	default:
		return Decision{}
	}
}

func riskFlags(in Input) []string {
	var flags []string
	if in.OpenChargebacks > 0 {
		flags = append(flags, FlagOpenChargeback)
	}
	if in.ChargebackLimit > 0 && in.ChargebackCount > in.ChargebackLimit {
		flags = append(flags, FlagChargebackHistory)
	}
	if in.Tier.LargePayoutLimit.IsPositive() && in.NetPayout.GreaterThan(in.Tier.LargePayoutLimit) {
		flags = append(flags, FlagLargePayout)
	}
	return flags
}
