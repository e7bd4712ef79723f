package domain

import (
	"context"
	"time"
)

type ContextKey string

const UserContextKey ContextKey = "user"

// User is the authenticated caller, built from access token claims.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Profile mirrors the identity provider's user with storefront fields.
type Profile struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	FullName       string           `json:"full_name"`
	Phone          string           `json:"phone"`
	Role           string           `json:"role"`
	DefaultAddress *ShippingAddress `json:"default_address,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	// SaveCheckoutDetails upserts contact details and the default shipping address.
	SaveCheckoutDetails(ctx context.Context, p *Profile) error
}
