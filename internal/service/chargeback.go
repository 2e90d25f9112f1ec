package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payouts/internal/models"
	"payouts/internal/repository"
)

// ChargebackService records disputes reported by the payment gateway and
// resolves them. Creation is idempotent on the gateway dispute id because
// webhook deliveries repeat. A dispute that resolves to lost triggers an
// eager reserve deduction; the release scan is the safety net if the
// reserve is not claimable yet.
type ChargebackService struct {
	Repo    repository.Repository
	Reserve *ReserveReleaseService
	Logger  *zap.Logger
}

// DisputeInput is the normalized payload of a gateway dispute webhook.
type DisputeInput struct {
	OrganizationID   uint64
	EventID          *uint64
	Amount           decimal.Decimal
	Currency         string
	Reason           string
	GatewayDisputeID string
}

func (s *ChargebackService) RecordDispute(ctx context.Context, in DisputeInput) (*models.Chargeback, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	in.GatewayDisputeID = strings.TrimSpace(in.GatewayDisputeID)
	if in.GatewayDisputeID == "" {
		return nil, errors.New("gateway dispute id is required")
	}
	if in.OrganizationID == 0 {
		return nil, errors.New("organization id is required")
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("dispute amount %s must be positive", in.Amount)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	item := &models.Chargeback{
		OrganizationID:   in.OrganizationID,
		EventID:          in.EventID,
		Amount:           in.Amount,
		Currency:         currency,
		Reason:           strings.TrimSpace(in.Reason),
		Status:           models.ChargebackOpen,
		GatewayDisputeID: in.GatewayDisputeID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.CreateChargebackIfAbsent(ctx, item); err != nil {
		return nil, err
	}
	stored, err := s.Repo.GetChargebackByDisputeID(ctx, in.GatewayDisputeID)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.ID != item.ID && s.Logger != nil {
		s.Logger.Debug("duplicate dispute webhook ignored", zap.String("dispute_id", in.GatewayDisputeID))
	}
	return stored, nil
}

// ResolveDispute moves an open chargeback to won, lost or closed. Only open
// disputes resolve; anything else is ErrInvalidState with no mutation. A
// lost resolution irrevocably starts the reserve deduction attempt.
func (s *ChargebackService) ResolveDispute(ctx context.Context, id uint64, status string, resolvedAt time.Time) (*models.Chargeback, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case models.ChargebackWon, models.ChargebackLost, models.ChargebackClosed:
	default:
		return nil, fmt.Errorf("%w: unknown resolution %q", ErrInvalidState, status)
	}
	existing, err := s.Repo.GetChargebackByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: chargeback %d", ErrNotFound, id)
	}
	if resolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}
	moved, err := s.Repo.ResolveChargeback(ctx, id, status, resolvedAt)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: chargeback %d is %s, not open", ErrInvalidState, id, existing.Status)
	}

	updated, err := s.Repo.GetChargebackByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == models.ChargebackLost && updated != nil && s.Reserve != nil {
		if err := s.Reserve.ApplyLostChargeback(ctx, updated); err != nil && s.Logger != nil {
			// The release scan retries the deduction; resolution stands.
			s.Logger.Warn("eager reserve deduction failed",
				zap.Uint64("chargeback_id", id),
				zap.Error(err),
			)
		}
		updated, err = s.Repo.GetChargebackByID(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return updated, nil
}
