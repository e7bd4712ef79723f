package domain

import (
	"context"
	"errors"
	"time"
)

// CartEntry is the wire shape of the cart/wishlist sync endpoints.
// Quantity is ignored for wishlists.
type CartEntry struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// CartLine is a persisted cart row joined with its live product.
type CartLine struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	// TotalPrice is price × quantity, filled by the reader.
	TotalPrice float64   `json:"total_price"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type WishlistLine struct {
	ProductID string    `json:"product_id"`
	Title     string    `json:"title"`
	Price     float64   `json:"price"`
	AddedAt   time.Time `json:"added_at"`
}

// SyncRepository stores the server copy of a user's cart and wishlist.
// Each list has a version that increments on every replace.
type SyncRepository interface {
	GetCart(ctx context.Context, userID string) ([]CartLine, int64, error)
	// ReplaceCart swaps the whole cart. expectedVersion < 0 skips the version check;
	// otherwise a mismatch returns ErrVersionConflict.
	ReplaceCart(ctx context.Context, userID string, items []CartEntry, expectedVersion int64) (int64, error)
	GetWishlist(ctx context.Context, userID string) ([]WishlistLine, int64, error)
	ReplaceWishlist(ctx context.Context, userID string, productIDs []string, expectedVersion int64) (int64, error)
}

var ErrLockHeld = errors.New("lock held by another holder")

// Locker provides short per-key mutual exclusion across API replicas.
type Locker interface {
	// Acquire returns ErrLockHeld when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// IdempotencyStore remembers request keys for a TTL.
type IdempotencyStore interface {
	// Claim returns false when key was already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}
