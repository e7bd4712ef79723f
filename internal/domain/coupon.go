package domain

import (
	"context"
	"time"
)

const (
	CouponTypePercentage   = "percentage"
	CouponTypeFixedAmount  = "fixed_amount"
	CouponTypeFreeShipping = "free_shipping"
)

type Coupon struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	DiscountType   string     `json:"discount_type"`
	DiscountValue  float64    `json:"discount_value"`
	MaxDiscount    *float64   `json:"max_discount"`
	MinOrderAmount float64    `json:"min_order_amount"`
	UsageLimit     *int       `json:"usage_limit"`
	PerUserLimit   *int       `json:"per_user_limit"`
	UsedCount      int        `json:"used_count"`
	StartsAt       *time.Time `json:"starts_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	ProductIDs     []string   `json:"product_ids"`
	CategoryIDs    []string   `json:"category_ids"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type CouponUsage struct {
	ID             string    `json:"id"`
	CouponID       string    `json:"coupon_id"`
	UserID         string    `json:"user_id"`
	OrderID        string    `json:"order_id"`
	DiscountAmount float64   `json:"discount_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

type CouponRepository interface {
	Create(ctx context.Context, coupon *Coupon) error
	Update(ctx context.Context, coupon *Coupon) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Coupon, error)
	// GetByCode matches case-insensitively.
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context, limit, offset int) ([]Coupon, int64, error)
	CountUsagesByUser(ctx context.Context, couponID, userID string) (int, error)

	// LockByID selects the coupon FOR UPDATE inside the current transaction.
	LockByID(ctx context.Context, id string) (*Coupon, error)
	// IncrementUsage bumps used_count only while below usage_limit.
	// Returns ErrCouponExhausted when the guard rejects the update.
	IncrementUsage(ctx context.Context, id string) (int, error)
	// InsertUsage is idempotent per order id; reports whether a row was written.
	InsertUsage(ctx context.Context, usage *CouponUsage) (bool, error)
	// DeleteUsageByOrder removes the usage for an order and decrements used_count.
	// Reports whether a usage existed.
	DeleteUsageByOrder(ctx context.Context, orderID string) (bool, error)
}
