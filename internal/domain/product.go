package domain

import (
	"context"
	"time"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID            string    `json:"id"`
	CategoryID    *string   `json:"category_id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Price         float64   `json:"price"`
	DiscountPrice *float64  `json:"discount_price"`
	Stock         int       `json:"stock"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EffectivePrice is the price a customer pays: discount_price when set, else price.
func (p *Product) EffectivePrice() float64 {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

type ProductRepository interface {
	// GetByIDs returns the products that exist, keyed by id. Missing ids are absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
	// DecrementStock removes quantity from an active product's stock.
	// Returns ErrInsufficientStock when the guarded update matches no row.
	DecrementStock(ctx context.Context, productID string, quantity int) error
	RestoreStock(ctx context.Context, productID string, quantity int) error
}
