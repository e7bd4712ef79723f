package domain

import (
	"context"
	"time"
)

const PaymentProviderLinePay = "line_pay"

const (
	PaymentRecordInitiated = "initiated"
	PaymentRecordReserved  = "reserved"
	PaymentRecordConfirmed = "confirmed"
	PaymentRecordFailed    = "failed"
	PaymentRecordCancelled = "cancelled"
)

// Payment is one gateway transaction attempt for an order.
type Payment struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	Provider      string    `json:"provider"`
	TransactionID *string   `json:"transaction_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	PaymentURL    *string   `json:"payment_url"`
	Raw           RawJSON   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	// GetLatestByOrder returns the most recent attempt for an order.
	GetLatestByOrder(ctx context.Context, orderID string) (*Payment, error)
}

// PaymentReservation is what the storefront asks a gateway to reserve.
// Items expose only name, quantity and price.
type PaymentReservation struct {
	OrderID     string
	OrderNumber string
	Amount      int64
	Currency    string
	Items       []ReservationItem
	ConfirmURL  string
	CancelURL   string
}

type ReservationItem struct {
	Name     string
	Quantity int
	Price    int64
}

type ReservationResult struct {
	TransactionID string
	PaymentURL    string
	Raw           RawJSON
}

type ConfirmationResult struct {
	TransactionID string
	Raw           RawJSON
}

type PaymentGateway interface {
	Reserve(ctx context.Context, req PaymentReservation) (*ReservationResult, error)
	Confirm(ctx context.Context, transactionID string, amount int64, currency string) (*ConfirmationResult, error)
}

// PaymentGatewayError is a non-success answer from the gateway.
type PaymentGatewayError struct {
	Provider string
	Code     string
	Message  string
}

func (e *PaymentGatewayError) Error() string {
	return e.Provider + " returned " + e.Code + ": " + e.Message
}
