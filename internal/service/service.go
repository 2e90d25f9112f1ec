// Package service holds the payout pipeline stages: finalizer, eligibility
// sweep, batch processor, reserve release, chargeback ledger, and the admin
// review workflow. Stages share the repository boundary and are wired
// together in cmd/payoutd.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"payouts/internal/gateway"
	"payouts/internal/models"
	"payouts/internal/repository"
)

var (
	// ErrInvalidState rejects an action against a payout or chargeback whose
	// current status does not permit it. Nothing is mutated.
	ErrInvalidState = errors.New("invalid state for this action")

	// ErrNotFound is returned for lookups against missing records.
	ErrNotFound = errors.New("record not found")
)

// FlagRetryLimit marks payouts parked in held after exhausting transfer
// retries.
const FlagRetryLimit = "retry_limit_exceeded"

// TransferGateway is the slice of the payment gateway client the pipeline
// moves money through.
type TransferGateway interface {
	CreateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error)
}

// Notifier publishes lifecycle events to the notification service. Sends are
// fire-and-forget: a failed send is logged and never fails a transition.
type Notifier interface {
	Send(ctx context.Context, eventType string, data map[string]any) error
}

// RunResult is the aggregate outcome of one batch run. Counters not
// meaningful for a given job stay zero.
type RunResult struct {
	Processed int `json:"processed"`
	Held      int `json:"held"`
	Released  int `json:"released"`
	Forfeited int `json:"forfeited"`
	Errors    int `json:"errors"`
	Conflicts int `json:"conflicts"`
}

func recordRun(ctx context.Context, repo repository.Repository, logger *zap.Logger, job, trigger string, result RunResult, startedAt time.Time) {
	if repo == nil {
		return
	}
	details, _ := json.Marshal(result)
	item := &models.PayoutRun{
		RunKey:     uuid.NewString(),
		Job:        job,
		Trigger:    trigger,
		Processed:  result.Processed,
		Held:       result.Held,
		Released:   result.Released,
		Forfeited:  result.Forfeited,
		Errors:     result.Errors,
		Conflicts:  result.Conflicts,
		Details:    datatypes.JSON(details),
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if err := repo.InsertPayoutRun(ctx, item); err != nil && logger != nil {
		logger.Warn("insert payout run failed", zap.String("job", job), zap.Error(err))
	}
}

// mergeFlags appends new risk flags to a payout's existing flag set,
// deduplicated, preserving order of first appearance.
func mergeFlags(existing datatypes.JSON, add []string) datatypes.JSON {
	var flags []string
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &flags)
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(flags)+len(add))
	for _, f := range append(flags, add...) {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return existing
	}
	return datatypes.JSON(raw)
}

func notifyAsync(notifier Notifier, logger *zap.Logger, eventType string, data map[string]any) {
	if notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := notifier.Send(ctx, eventType, data); err != nil && logger != nil {
		logger.Warn("notify send failed", zap.String("event", eventType), zap.Error(err))
	}
}
