package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/cache"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/money"
)

// ShippingCalculator maps a subtotal to a shipping fee.
type ShippingCalculator struct {
	FlatFee       float64
	FreeThreshold float64
}

func NewShippingCalculator(s domain.ShippingSettings) ShippingCalculator {
	return ShippingCalculator{FlatFee: s.FlatFee, FreeThreshold: s.FreeThreshold}
}

func (c ShippingCalculator) Fee(subtotal float64) float64 {
	if subtotal >= c.FreeThreshold {
		return 0
	}
	return money.Round(c.FlatFee)
}

const shippingSettingsCacheKey = "settings:shipping"

// SettingsService serves admin-editable shop settings through the memory cache.
type SettingsService struct {
	repo     domain.SettingsRepository
	cache    cache.CacheService
	ttl      time.Duration
	defaults domain.ShippingSettings
}

func NewSettingsService(repo domain.SettingsRepository, c cache.CacheService, ttl time.Duration, defaults domain.ShippingSettings) *SettingsService {
	return &SettingsService{repo: repo, cache: c, ttl: ttl, defaults: defaults}
}

// Shipping returns the saved shipping settings, or the configured defaults when none were saved.
func (s *SettingsService) Shipping(ctx context.Context) (domain.ShippingSettings, error) {
	if val, found := s.cache.Get(shippingSettingsCacheKey); found {
		if settings, ok := val.(domain.ShippingSettings); ok {
			return settings, nil
		}
	}

	settings, err := s.repo.GetShipping(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.ShippingSettings{}, fmt.Errorf("load shipping settings: %w", err)
		}
		settings = &s.defaults
	}

	s.cache.Set(shippingSettingsCacheKey, *settings, s.ttl)
	return *settings, nil
}

type UpdateShippingRequest struct {
	FlatFee       float64 `json:"flat_fee" validate:"gte=0"`
	FreeThreshold float64 `json:"free_threshold" validate:"gte=0"`
}

func (s *SettingsService) UpdateShipping(ctx context.Context, req UpdateShippingRequest) (*domain.ShippingSettings, error) {
	if req.FlatFee < 0 || req.FreeThreshold < 0 {
		return nil, apperror.New(apperror.CodeValidation, i18n.Default().T(i18n.ShippingNegative))
	}
	settings := &domain.ShippingSettings{
		FlatFee:       money.Round(req.FlatFee),
		FreeThreshold: money.Round(req.FreeThreshold),
	}
	if err := s.repo.SaveShipping(ctx, settings); err != nil {
		return nil, fmt.Errorf("save shipping settings: %w", err)
	}
	s.cache.Delete(shippingSettingsCacheKey)
	return settings, nil
}
