package domain

import (
	"context"
	"time"
)

// ShippingSettings drives the shipping fee: free at or above FreeThreshold, else FlatFee.
type ShippingSettings struct {
	FlatFee       float64   `json:"flat_fee"`
	FreeThreshold float64   `json:"free_threshold"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SettingsRepository interface {
	// GetShipping returns ErrNotFound when no row has been saved yet.
	GetShipping(ctx context.Context) (*ShippingSettings, error)
	SaveShipping(ctx context.Context, s *ShippingSettings) error
}
