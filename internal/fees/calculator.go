package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount rejects non-positive gross amounts, and gross amounts
	// too small to cover the fee schedule, before any state is created.
	ErrInvalidAmount = errors.New("invalid gross amount")

	// ErrPolicyMissing means no fee or tier policy resolves for the input;
	// payout creation must be retried once policy exists.
	ErrPolicyMissing = errors.New("no applicable fee policy")
)

// Breakdown is the immutable fee split recorded on a payout at creation.
// Gross == ProcessorFees + PlatformFee + Reserve + Net holds exactly; Net
// absorbs every rounding remainder.
type Breakdown struct {
	Gross         decimal.Decimal
	ProcessorFees decimal.Decimal
	PlatformFee   decimal.Decimal
	Reserve       decimal.Decimal
	Net           decimal.Decimal
}

// Conserved reports whether the split still sums to the gross amount.
func (b Breakdown) Conserved() bool {
	sum := b.ProcessorFees.Add(b.PlatformFee).Add(b.Reserve).Add(b.Net)
	return sum.Equal(b.Gross)
}

// Calculate derives the fee split for one event's proceeds.
//
// All components round down to the cent. The reserve base is the gross minus
// processor fees only, so the withheld share does not shrink when the
// platform waives its own fee. Free mode zeroes the platform fee and nothing
// else.
func Calculate(gross decimal.Decimal, currency string, tier TierPolicy, snap PolicySnapshot) (Breakdown, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return Breakdown{}, fmt.Errorf("%w: gross %s must be positive", ErrInvalidAmount, gross.String())
	}
	sched, ok := snap.Schedule(currency)
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: currency %q", ErrPolicyMissing, currency)
	}

	processor := gross.Mul(sched.ProcessorPct).RoundDown(2).Add(sched.ProcessorFixed)

	platform := decimal.Zero
	if !snap.FreeMode {
		platform = gross.Mul(sched.PlatformPct).RoundDown(2)
	}

	reserve := gross.Sub(processor).Mul(tier.ReservePct).RoundDown(2)
	if reserve.IsNegative() {
		reserve = decimal.Zero
	}

	net := gross.Sub(processor).Sub(platform).Sub(reserve)
	if net.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: gross %s does not cover fees", ErrInvalidAmount, gross.String())
	}

	return Breakdown{
		Gross:         gross,
		ProcessorFees: processor,
		PlatformFee:   platform,
		Reserve:       reserve,
		Net:           net,
	}, nil
}
