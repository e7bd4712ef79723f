package pgrepo

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"teahouse-backend/internal/domain"
)

const shippingSettingsKey = "shipping"

type settingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) domain.SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetShipping(ctx context.Context) (*domain.ShippingSettings, error) {
	var (
		value []byte
		s     domain.ShippingSettings
	)
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT value, updated_at FROM shop_settings WHERE key = $1`, shippingSettingsKey).Scan(&value, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, fmt.Errorf("decode shipping settings: %w", err)
	}
	return &s, nil
}

func (r *settingsRepository) SaveShipping(ctx context.Context, s *domain.ShippingSettings) error {
	value, err := json.Marshal(map[string]float64{
		"flat_fee":       s.FlatFee,
		"free_threshold": s.FreeThreshold,
	})
	if err != nil {
		return err
	}
	return conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO shop_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		RETURNING updated_at`, shippingSettingsKey, value).Scan(&s.UpdatedAt)
}
