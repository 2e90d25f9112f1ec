package gate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"payouts/internal/fees"
	"payouts/internal/lifecycle"
)

var (
	testNow   = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testEnded = testNow.Add(-72 * time.Hour)
)

func baseInput() Input {
	return Input{
		Status:       lifecycle.StatusPending,
		NetPayout:    decimal.NewFromFloat(823.63),
		EventEndedAt: testEnded,
		Now:          testNow,
		Tier: fees.TierPolicy{
			Name:             "new",
			ReservePct:       decimal.NewFromFloat(0.10),
			HoldPeriod:       14 * 24 * time.Hour,
			LargePayoutLimit: decimal.NewFromInt(1000),
		},
		MaturityWindow:  48 * time.Hour,
		ChargebackLimit: 2,
	}
}

func TestEvaluate_PendingStaysBeforeMaturity(t *testing.T) {
	in := baseInput()
	in.EventEndedAt = testNow.Add(-time.Hour)
	got := Evaluate(in)
	if got.Status != "" {
		t.Fatalf("status=%q want no change before maturity window", got.Status)
	}

	// Risk signals must not pre-empt the maturity rule; rule one wins.
	in.OpenChargebacks = 1
	got = Evaluate(in)
	if got.Status != "" {
		t.Fatalf("status=%q want no change before maturity even with risk", got.Status)
	}
}

func TestEvaluate_PendingPromotesWhenClean(t *testing.T) {
	got := Evaluate(baseInput())
	if got.Status != lifecycle.StatusEligible {
		t.Fatalf("status=%q want eligible", got.Status)
	}
	if got.EligibleAt == nil || !got.EligibleAt.Equal(testNow) {
		t.Fatalf("eligibleAt=%v want %v", got.EligibleAt, testNow)
	}
	if got.RequiresReview || len(got.Flags) != 0 {
		t.Fatalf("clean promotion carried review state: %+v", got)
	}
}

func TestEvaluate_OpenChargebackHolds(t *testing.T) {
	in := baseInput()
	in.OpenChargebacks = 1
	got := Evaluate(in)
	if got.Status != lifecycle.StatusHeld {
		t.Fatalf("status=%q want held", got.Status)
	}
	if !got.RequiresReview {
		t.Fatalf("requiresReview=false want true")
	}
	if !hasFlag(got.Flags, FlagOpenChargeback) {
		t.Fatalf("flags=%v want contains %s", got.Flags, FlagOpenChargeback)
	}
}

func TestEvaluate_ChargebackHistoryHolds(t *testing.T) {
	in := baseInput()
	in.ChargebackCount = 3
	got := Evaluate(in)
	if got.Status != lifecycle.StatusHeld || !hasFlag(got.Flags, FlagChargebackHistory) {
		t.Fatalf("got=%+v want held with %s", got, FlagChargebackHistory)
	}

	// At the limit is fine, only strictly over trips the flag.
	in.ChargebackCount = 2
	if got := Evaluate(in); got.Status != lifecycle.StatusEligible {
		t.Fatalf("status=%q want eligible at the limit", got.Status)
	}
}

func TestEvaluate_LargePayoutLowTrustHolds(t *testing.T) {
	in := baseInput()
	in.NetPayout = decimal.NewFromInt(5000)
	got := Evaluate(in)
	if got.Status != lifecycle.StatusHeld || !hasFlag(got.Flags, FlagLargePayout) {
		t.Fatalf("got=%+v want held with %s", got, FlagLargePayout)
	}

	// A tier without a limit never trips the size check.
	in.Tier.LargePayoutLimit = decimal.Zero
	if got := Evaluate(in); got.Status != lifecycle.StatusEligible {
		t.Fatalf("status=%q want eligible for unlimited tier", got.Status)
	}
}

func TestEvaluate_MultipleFlagsAccumulate(t *testing.T) {
	in := baseInput()
	in.OpenChargebacks = 1
	in.NetPayout = decimal.NewFromInt(5000)
	got := Evaluate(in)
	if !hasFlag(got.Flags, FlagOpenChargeback) || !hasFlag(got.Flags, FlagLargePayout) {
		t.Fatalf("flags=%v want both triggering flags", got.Flags)
	}
}

func TestEvaluate_EligibleIsIdempotent(t *testing.T) {
	in := baseInput()
	in.Status = lifecycle.StatusEligible
	got := Evaluate(in)
	if got.Status != "" {
		t.Fatalf("status=%q want no change for clean eligible payout", got.Status)
	}
}

func TestEvaluate_EligibleDemotesOnNewRisk(t *testing.T) {
	in := baseInput()
	in.Status = lifecycle.StatusEligible
	in.OpenChargebacks = 1
	got := Evaluate(in)
	if got.Status != lifecycle.StatusHeld || !got.RequiresReview {
		t.Fatalf("got=%+v want demotion to held", got)
	}
}

func TestEvaluate_HeldNeverAutoPromotes(t *testing.T) {
	in := baseInput()
	in.Status = lifecycle.StatusHeld
	got := Evaluate(in)
	if got.Status != "" {
		t.Fatalf("status=%q want no change; held requires admin approval", got.Status)
	}
}

func TestEvaluate_TerminalStatusesUntouched(t *testing.T) {
	for _, status := range []string{lifecycle.StatusCompleted, lifecycle.StatusRejected, lifecycle.StatusProcessing, lifecycle.StatusFailed} {
		in := baseInput()
		in.Status = status
		in.OpenChargebacks = 1
		if got := Evaluate(in); got.Status != "" {
			t.Fatalf("status %s: got %+v want no change", status, got)
		}
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
