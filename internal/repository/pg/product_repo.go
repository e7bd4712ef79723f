package pgrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"teahouse-backend/internal/domain"
)

type productRepository struct {
	db *pgxpool.Pool
}

func NewProductRepository(db *pgxpool.Pool) domain.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	result := make(map[string]*domain.Product, len(ids))
	ids = validUUIDs(ids)
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id::text, category_id::text, title, slug, price, discount_price, stock, is_active, created_at, updated_at
		FROM products
		WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p             domain.Product
			price         pgtype.Numeric
			discountPrice pgtype.Numeric
		)
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Title, &p.Slug, &price, &discountPrice,
			&p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Price = numericToFloat64(price)
		p.DiscountPrice = numericToFloat64Ptr(discountPrice)
		result[p.ID] = &p
	}
	return result, rows.Err()
}

func (r *productRepository) DecrementStock(ctx context.Context, productID string, quantity int) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND is_active AND stock >= $2`, productID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *productRepository) RestoreStock(ctx context.Context, productID string, quantity int) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, quantity)
	return err
}
