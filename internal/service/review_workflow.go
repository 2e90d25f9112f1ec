package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"payouts/internal/lifecycle"
	"payouts/internal/models"
	"payouts/internal/notify"
	"payouts/internal/repository"
)

// ReviewWorkflowService is the admin surface over held payouts. Approval
// re-enters the automated pipeline; rejection is terminal. Both actions go
// through the same compare-and-set transitions as the batch jobs, so an
// admin racing the processor loses cleanly.
type ReviewWorkflowService struct {
	Repo   repository.Repository
	Notify Notifier
	Logger *zap.Logger
}

// ApprovePayout moves a held payout back to eligible and stamps the review
// trail. Legal only from held.
func (s *ReviewWorkflowService) ApprovePayout(ctx context.Context, id uint64, adminID, notes string) (*models.Payout, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	payout, err := s.Repo.GetPayoutByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, fmt.Errorf("%w: payout %d", ErrNotFound, id)
	}
	if payout.Status != lifecycle.StatusHeld {
		return nil, fmt.Errorf("%w: payout %d is %s, approve requires held", ErrInvalidState, id, payout.Status)
	}
	now := time.Now().UTC()
	moved, err := s.Repo.TransitionPayout(ctx, id, lifecycle.StatusHeld, lifecycle.StatusEligible, map[string]any{
		"requires_review": false,
		"reviewed_by":     strings.TrimSpace(adminID),
		"reviewed_at":     now,
		"review_notes":    strings.TrimSpace(notes),
		"eligible_at":     now,
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: payout %d changed state during approval", ErrInvalidState, id)
	}
	if s.Logger != nil {
		s.Logger.Info("payout approved",
			zap.Uint64("payout_id", id),
			zap.String("reviewed_by", adminID),
		)
	}
	return s.Repo.GetPayoutByID(ctx, id)
}

// RejectPayout terminates a held or eligible payout. Completed payouts can
// never be rejected; the transfer already happened.
func (s *ReviewWorkflowService) RejectPayout(ctx context.Context, id uint64, adminID, reason string) (*models.Payout, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	payout, err := s.Repo.GetPayoutByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, fmt.Errorf("%w: payout %d", ErrNotFound, id)
	}
	switch payout.Status {
	case lifecycle.StatusHeld, lifecycle.StatusEligible:
	default:
		return nil, fmt.Errorf("%w: payout %d is %s, reject requires held or eligible", ErrInvalidState, id, payout.Status)
	}
	now := time.Now().UTC()
	moved, err := s.Repo.TransitionPayout(ctx, id, payout.Status, lifecycle.StatusRejected, map[string]any{
		"requires_review": false,
		"reviewed_by":     strings.TrimSpace(adminID),
		"reviewed_at":     now,
		"review_notes":    strings.TrimSpace(reason),
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: payout %d changed state during rejection", ErrInvalidState, id)
	}
	if s.Logger != nil {
		s.Logger.Info("payout rejected",
			zap.Uint64("payout_id", id),
			zap.String("reviewed_by", adminID),
		)
	}
	notifyAsync(s.Notify, s.Logger, notify.EventPayoutRejected, map[string]any{
		"payout_id":       id,
		"organization_id": payout.OrganizationID,
		"reason":          strings.TrimSpace(reason),
	})
	return s.Repo.GetPayoutByID(ctx, id)
}
