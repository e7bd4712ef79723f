package pgrepo

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"teahouse-backend/internal/domain"
)

type profileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) domain.ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	if !isValidUUID(id) {
		return nil, domain.ErrNotFound
	}
	var (
		p       domain.Profile
		address []byte
	)
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT id::text, email, full_name, phone, role, default_address, created_at, updated_at
		FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.Role, &address, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if len(address) > 0 {
		p.DefaultAddress = &domain.ShippingAddress{}
		if err := json.Unmarshal(address, p.DefaultAddress); err != nil {
			return nil, fmt.Errorf("decode default address: %w", err)
		}
	}
	return &p, nil
}

// SaveCheckoutDetails keeps the stored email when p.Email is empty.
func (r *profileRepository) SaveCheckoutDetails(ctx context.Context, p *domain.Profile) error {
	var address []byte
	if p.DefaultAddress != nil {
		var err error
		if address, err = json.Marshal(p.DefaultAddress); err != nil {
			return err
		}
	}
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO profiles (id, email, full_name, phone, default_address)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE profiles.email END,
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			default_address = COALESCE(EXCLUDED.default_address, profiles.default_address),
			updated_at = now()`,
		p.ID, p.Email, p.FullName, p.Phone, address)
	if err != nil {
		return fmt.Errorf("save checkout details: %w", err)
	}
	return nil
}
