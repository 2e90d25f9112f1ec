package service

import (
	"time"

	"github.com/shopspring/decimal"

	"payouts/internal/config"
	"payouts/internal/lifecycle"
	"payouts/internal/models"
)

func testPolicyResolver() *PolicyResolver {
	return &PolicyResolver{
		Config: config.PolicyConfig{
			MaturityWindow:  48 * time.Hour,
			RetryLimit:      3,
			ChargebackLimit: 2,
			DefaultTier:     "new",
			Fees: map[string]config.FeeScheduleConfig{
				"usd": {ProcessorPct: 0.029, ProcessorFixed: 0.30, PlatformPct: 0.05},
			},
			Tiers: map[string]config.TrustTierConfig{
				"new":     {ReservePct: 0.10, HoldPeriod: 14 * 24 * time.Hour, LargePayoutLimit: 1000},
				"trusted": {ReservePct: 0.05, HoldPeriod: 7 * 24 * time.Hour},
			},
		},
	}
}

func seedOrgAndEvent(repo *stubRepo, trustLevel string, endedAgo time.Duration) (*models.Organization, *models.AuctionEvent) {
	org := &models.Organization{
		ID:                 1,
		Name:               "Riverside Shelter",
		TrustLevel:         trustLevel,
		DestinationAccount: "acct_riverside",
	}
	repo.orgs[org.ID] = org

	endedAt := time.Now().UTC().Add(-endedAgo)
	event := &models.AuctionEvent{
		ID:             10,
		OrganizationID: org.ID,
		Currency:       "USD",
		TotalRaised:    decimal.NewFromFloat(1000.00),
		Status:         models.EventEnded,
		EndedAt:        &endedAt,
	}
	repo.events[event.ID] = event
	return org, event
}

// seedEligiblePayout stores the reference split for a 1000.00 USD gross:
// 29.30 processor, 50.00 platform, 97.07 reserve, 823.63 net.
func seedEligiblePayout(repo *stubRepo, status string) *models.Payout {
	now := time.Now().UTC()
	return repo.addPayout(models.Payout{
		EventID:        10,
		OrganizationID: 1,
		GrossAmount:    decimal.NewFromFloat(1000.00),
		ProcessorFees:  decimal.NewFromFloat(29.30),
		PlatformFee:    decimal.NewFromFloat(50.00),
		ReserveAmount:  decimal.NewFromFloat(97.07),
		NetPayout:      decimal.NewFromFloat(823.63),
		Currency:       "USD",
		Status:         status,
		EligibleAt:     &now,
	})
}

func completedPayout(repo *stubRepo) *models.Payout {
	p := seedEligiblePayout(repo, lifecycle.StatusCompleted)
	now := time.Now().UTC()
	repo.mu.Lock()
	stored := repo.payouts[p.ID]
	stored.CompletedAt = &now
	stored.TransferReference = "tr_seed"
	repo.mu.Unlock()
	return p
}
