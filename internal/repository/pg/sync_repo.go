package pgrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/money"
)

// syncRepository keeps cart and wishlist rows plus their versions on the profile row.
type syncRepository struct {
	db *pgxpool.Pool
	tx *TransactionManager
}

func NewSyncRepository(db *pgxpool.Pool, tx *TransactionManager) domain.SyncRepository {
	return &syncRepository{db: db, tx: tx}
}

type syncList struct {
	versionColumn string
	table         string
}

var (
	cartList     = syncList{versionColumn: "cart_version", table: "cart_items"}
	wishlistList = syncList{versionColumn: "wishlist_version", table: "wishlist_items"}
)

func (r *syncRepository) version(ctx context.Context, db DBTX, userID string, list syncList) (int64, error) {
	var v int64
	err := db.QueryRow(ctx, `SELECT `+list.versionColumn+` FROM profiles WHERE id = $1`, userID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (r *syncRepository) GetCart(ctx context.Context, userID string) ([]domain.CartLine, int64, error) {
	db := conn(ctx, r.db)
	version, err := r.version(ctx, db, userID, cartList)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.Query(ctx, `
		SELECT c.product_id::text, p.title, COALESCE(p.discount_price, p.price), c.quantity, c.updated_at
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.updated_at, p.title`, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var (
			l     domain.CartLine
			price pgtype.Numeric
		)
		if err := rows.Scan(&l.ProductID, &l.Title, &price, &l.Quantity, &l.UpdatedAt); err != nil {
			return nil, 0, err
		}
		l.Price = numericToFloat64(price)
		l.TotalPrice = money.LineTotal(l.Price, l.Quantity)
		lines = append(lines, l)
	}
	return lines, version, rows.Err()
}

func (r *syncRepository) GetWishlist(ctx context.Context, userID string) ([]domain.WishlistLine, int64, error) {
	db := conn(ctx, r.db)
	version, err := r.version(ctx, db, userID, wishlistList)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.Query(ctx, `
		SELECT w.product_id::text, p.title, COALESCE(p.discount_price, p.price), w.created_at
		FROM wishlist_items w
		JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1
		ORDER BY w.created_at, p.title`, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("query wishlist: %w", err)
	}
	defer rows.Close()

	lines := []domain.WishlistLine{}
	for rows.Next() {
		var (
			l     domain.WishlistLine
			price pgtype.Numeric
		)
		if err := rows.Scan(&l.ProductID, &l.Title, &price, &l.AddedAt); err != nil {
			return nil, 0, err
		}
		l.Price = numericToFloat64(price)
		lines = append(lines, l)
	}
	return lines, version, rows.Err()
}

func (r *syncRepository) ReplaceCart(ctx context.Context, userID string, items []domain.CartEntry, expectedVersion int64) (int64, error) {
	return r.replace(ctx, userID, cartList, expectedVersion, func(batch *pgx.Batch) {
		for _, item := range items {
			batch.Queue(`INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)`,
				userID, item.ProductID, item.Quantity)
		}
	})
}

func (r *syncRepository) ReplaceWishlist(ctx context.Context, userID string, productIDs []string, expectedVersion int64) (int64, error) {
	return r.replace(ctx, userID, wishlistList, expectedVersion, func(batch *pgx.Batch) {
		for _, id := range productIDs {
			batch.Queue(`INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2)`, userID, id)
		}
	})
}

// replace swaps every row of list for userID and bumps its version, all in one transaction.
// The profile row is locked so concurrent replaces serialize on it.
func (r *syncRepository) replace(ctx context.Context, userID string, list syncList, expectedVersion int64, queue func(*pgx.Batch)) (int64, error) {
	var newVersion int64
	err := r.tx.Do(ctx, func(ctx context.Context) error {
		db := conn(ctx, r.db)

		if _, err := db.Exec(ctx, `INSERT INTO profiles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID); err != nil {
			return fmt.Errorf("ensure profile: %w", err)
		}

		var current int64
		if err := db.QueryRow(ctx, `SELECT `+list.versionColumn+` FROM profiles WHERE id = $1 FOR UPDATE`, userID).
			Scan(&current); err != nil {
			return fmt.Errorf("lock profile: %w", err)
		}
		if expectedVersion >= 0 && current != expectedVersion {
			return domain.ErrVersionConflict
		}

		if _, err := db.Exec(ctx, `DELETE FROM `+list.table+` WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("clear %s: %w", list.table, err)
		}

		batch := &pgx.Batch{}
		queue(batch)
		if batch.Len() > 0 {
			if err := db.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert %s: %w", list.table, err)
			}
		}

		return db.QueryRow(ctx, `
			UPDATE profiles SET `+list.versionColumn+` = `+list.versionColumn+` + 1, updated_at = now()
			WHERE id = $1
			RETURNING `+list.versionColumn, userID).Scan(&newVersion)
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}
