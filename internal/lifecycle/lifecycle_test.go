package lifecycle

import (
	"errors"
	"testing"
)

func TestCanTransition_LegalTable(t *testing.T) {
	legal := []struct{ from, to string }{
		{StatusPending, StatusEligible},
		{StatusPending, StatusHeld},
		{StatusEligible, StatusHeld},
		{StatusEligible, StatusProcessing},
		{StatusEligible, StatusRejected},
		{StatusHeld, StatusEligible},
		{StatusHeld, StatusRejected},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusFailed, StatusEligible},
		{StatusFailed, StatusHeld},
	}
	for _, tc := range legal {
		if err := CanTransition(tc.from, tc.to); err != nil {
			t.Fatalf("CanTransition(%s, %s) = %v, want nil", tc.from, tc.to, err)
		}
	}
}

func TestCanTransition_RejectsEverythingElse(t *testing.T) {
	legal := map[string]bool{}
	for _, tc := range []struct{ from, to string }{
		{StatusPending, StatusEligible},
		{StatusPending, StatusHeld},
		{StatusEligible, StatusHeld},
		{StatusEligible, StatusProcessing},
		{StatusEligible, StatusRejected},
		{StatusHeld, StatusEligible},
		{StatusHeld, StatusRejected},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusFailed, StatusEligible},
		{StatusFailed, StatusHeld},
	} {
		legal[tc.from+"->"+tc.to] = true
	}

	all := Statuses()
	for _, from := range all {
		for _, to := range all {
			if legal[from+"->"+to] {
				continue
			}
			err := CanTransition(from, to)
			if err == nil {
				t.Fatalf("CanTransition(%s, %s) = nil, want ErrIllegalTransition", from, to)
			}
			if !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("CanTransition(%s, %s) = %v, want ErrIllegalTransition", from, to, err)
			}
		}
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	if err := CanTransition("bogus", StatusEligible); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err=%v want ErrIllegalTransition", err)
	}
}

func TestTerminal(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{StatusCompleted, true},
		{StatusRejected, true},
		{StatusPending, false},
		{StatusEligible, false},
		{StatusProcessing, false},
		{StatusHeld, false},
		{StatusFailed, false},
		{"bogus", false},
	}
	for _, tc := range cases {
		if got := Terminal(tc.status); got != tc.want {
			t.Fatalf("Terminal(%s)=%v want %v", tc.status, got, tc.want)
		}
	}
}

func TestValid(t *testing.T) {
	for _, s := range Statuses() {
		if !Valid(s) {
			t.Fatalf("Valid(%s)=false want true", s)
		}
	}
	if Valid("bogus") {
		t.Fatalf("Valid(bogus)=true want false")
	}
}
