package domain

import (
	"context"
	"time"
)

type OrderFilter struct {
	Page          int
	PerPage       int
	UserID        string
	Status        string
	PaymentStatus string
	Search        string
}

// ShippingAddress is stored as jsonb on the order and on the profile.
type ShippingAddress struct {
	PostalCode   string `json:"postal_code,omitempty" validate:"omitempty,max=10"`
	City         string `json:"city" validate:"required,max=50"`
	District     string `json:"district" validate:"required,max=50"`
	AddressLine1 string `json:"address_line1" validate:"required,max=200"`
	AddressLine2 string `json:"address_line2,omitempty" validate:"omitempty,max=200"`
}

type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          string          `json:"user_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingMethod  string          `json:"shipping_method"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	Subtotal        float64         `json:"subtotal"`
	DiscountAmount  float64         `json:"discount_amount"`
	ShippingFee     float64         `json:"shipping_fee"`
	Total           float64         `json:"total"`
	CouponID        *string         `json:"coupon_id,omitempty"`
	CouponCode      *string         `json:"coupon_code,omitempty"`
	Note            *string         `json:"note,omitempty"`
	TrackingNumber  *string         `json:"tracking_number,omitempty"`
	Items           []OrderItem     `json:"items"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	ShippedAt       *time.Time      `json:"shipped_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is a snapshot of the product at purchase time.
type OrderItem struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"line_total"`
}

type OrderHistory struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	PreviousStatus *string   `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Note           *string   `json:"note"`
	CreatedBy      *string   `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type OrderRepository interface {
	// Create inserts the header and items. Returns ErrDuplicateOrderNo when the order number is taken.
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*Order, error)
	// GetByIDForUpdate locks the order row; only meaningful inside a transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter OrderFilter) ([]Order, int64, error)
	ApplyStatus(ctx context.Context, orderID string, change StatusChange) error
	CreateHistory(ctx context.Context, history *OrderHistory) error
	GetHistory(ctx context.Context, orderID string) ([]OrderHistory, error)
}
