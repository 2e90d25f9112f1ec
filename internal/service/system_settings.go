package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"payouts/internal/models"
	"payouts/internal/repository"
)

const (
	FeaturePayoutFinalizer  = "feature.payout_finalizer"
	FeatureEligibilitySweep = "feature.eligibility_sweep"
	FeaturePayoutProcessor  = "feature.payout_processor"
	FeatureReserveRelease   = "feature.reserve_release"

	// SettingPlatformFreeMode waives the platform fee for payouts created
	// while it is on. Read once per finalizer run, at snapshot time.
	SettingPlatformFreeMode = "platform.free_mode"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeaturePayoutFinalizer:  true,
		FeatureEligibilitySweep: true,
		FeaturePayoutProcessor:  true,
		FeatureReserveRelease:   true,
	}
}

// SystemSettingsService backs the DB-stored runtime switches. Every periodic
// job checks its switch at the top of a run so operators can pause any
// pipeline stage without a redeploy.
type SystemSettingsService struct {
	Repo repository.Repository
}

func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "pipeline switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "pipeline switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}
