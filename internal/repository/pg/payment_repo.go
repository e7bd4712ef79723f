package pgrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"teahouse-backend/internal/domain"
)

type paymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) domain.PaymentRepository {
	return &paymentRepository{db: db}
}

// rawOrNil keeps jsonb NULL for an empty payload.
func rawOrNil(raw domain.RawJSON) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO payments (id, order_id, provider, transaction_id, amount, currency, status, payment_url, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.OrderID, p.Provider, p.TransactionID, float64ToNumeric(p.Amount), p.Currency, p.Status,
		p.PaymentURL, rawOrNil(p.Raw),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE payments SET
			transaction_id = $2, status = $3, payment_url = $4, raw = COALESCE($5, raw), updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.TransactionID, p.Status, p.PaymentURL, rawOrNil(p.Raw),
	).Scan(&p.UpdatedAt)
	return notFound(err)
}

func (r *paymentRepository) GetLatestByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	var (
		p      domain.Payment
		amount pgtype.Numeric
		raw    []byte
	)
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT id::text, order_id::text, provider, transaction_id, amount, currency, status, payment_url, raw,
			created_at, updated_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, orderID,
	).Scan(&p.ID, &p.OrderID, &p.Provider, &p.TransactionID, &amount, &p.Currency, &p.Status, &p.PaymentURL, &raw,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.Amount = numericToFloat64(amount)
	p.Raw = raw
	return &p, nil
}
