// Package lifecycle owns the payout status vocabulary and the legal
// transition table. Services must consult CanTransition before any status
// write; the storage layer's compare-and-set guard makes the transition
// atomic, this package makes it legal.
package lifecycle

import (
	"errors"
	"fmt"
)

const (
	StatusPending    = "pending"
	StatusEligible   = "eligible"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusHeld       = "held"
	StatusFailed     = "failed"
	StatusRejected   = "rejected"
)

// ErrIllegalTransition is returned for any edge not in the legal table.
// Callers must not mutate state once they see it.
var ErrIllegalTransition = errors.New("illegal payout transition")

var transitions = map[string]map[string]bool{
	StatusPending: {
		StatusEligible: true,
		StatusHeld:     true,
	},
	StatusEligible: {
		StatusHeld:       true, // risk demotion
		StatusProcessing: true, // batch claim
		StatusRejected:   true, // admin reject
	},
	StatusHeld: {
		StatusEligible: true, // admin approve
		StatusRejected: true, // admin reject
	},
	StatusProcessing: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusFailed: {
		StatusEligible: true, // automatic retry
		StatusHeld:     true, // retry limit exceeded
	},
	// completed and rejected are terminal; the reserve lifecycle continues
	// independently through the reserve ledger.
	StatusCompleted: {},
	StatusRejected:  {},
}

// Valid reports whether status is a known payout status.
func Valid(status string) bool {
	_, ok := transitions[status]
	return ok
}

// Terminal reports whether the transfer state machine is done with status.
func Terminal(status string) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

// CanTransition returns nil when from→to is in the legal table and
// ErrIllegalTransition otherwise.
func CanTransition(from, to string) error {
	next, ok := transitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, from)
	}
	if !next[to] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// Statuses returns every known status; order is not significant.
func Statuses() []string {
	out := make([]string, 0, len(transitions))
	for s := range transitions {
		out = append(out, s)
	}
	return out
}
