package pgrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"teahouse-backend/internal/domain"
)

const couponCodeIndex = "coupons_code_upper_idx"

const couponColumns = `id::text, code, discount_type, discount_value, max_discount, min_order_amount,
	usage_limit, per_user_limit, used_count, starts_at, expires_at,
	product_ids::text[], category_ids::text[], is_active, created_at, updated_at`

type couponRepository struct {
	db *pgxpool.Pool
}

func NewCouponRepository(db *pgxpool.Pool) domain.CouponRepository {
	return &couponRepository{db: db}
}

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var (
		c                            domain.Coupon
		value, maxDiscount, minOrder pgtype.Numeric
		usageLimit, perUserLimit     pgtype.Int4
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &value, &maxDiscount, &minOrder,
		&usageLimit, &perUserLimit, &c.UsedCount, &c.StartsAt, &c.ExpiresAt,
		&c.ProductIDs, &c.CategoryIDs, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.DiscountValue = numericToFloat64(value)
	c.MaxDiscount = numericToFloat64Ptr(maxDiscount)
	c.MinOrderAmount = numericToFloat64(minOrder)
	c.UsageLimit = int4ToIntPtr(usageLimit)
	c.PerUserLimit = int4ToIntPtr(perUserLimit)
	c.ProductIDs = nonNil(c.ProductIDs)
	c.CategoryIDs = nonNil(c.CategoryIDs)
	return &c, nil
}

func (r *couponRepository) Create(ctx context.Context, c *domain.Coupon) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO coupons (id, code, discount_type, discount_value, max_discount, min_order_amount,
			usage_limit, per_user_limit, starts_at, expires_at, product_ids, category_ids, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::uuid[], $12::uuid[], $13)
		RETURNING used_count, created_at, updated_at`,
		c.ID, c.Code, c.DiscountType, float64ToNumeric(c.DiscountValue), float64PtrToNumeric(c.MaxDiscount),
		float64ToNumeric(c.MinOrderAmount), intPtrToInt4(c.UsageLimit), intPtrToInt4(c.PerUserLimit),
		c.StartsAt, c.ExpiresAt, nonNil(c.ProductIDs), nonNil(c.CategoryIDs), c.IsActive,
	).Scan(&c.UsedCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, couponCodeIndex) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// Update rewrites the editable fields. used_count is owned by the usage methods.
func (r *couponRepository) Update(ctx context.Context, c *domain.Coupon) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE coupons SET
			code = $2, discount_type = $3, discount_value = $4, max_discount = $5, min_order_amount = $6,
			usage_limit = $7, per_user_limit = $8, starts_at = $9, expires_at = $10,
			product_ids = $11::uuid[], category_ids = $12::uuid[], is_active = $13, updated_at = now()
		WHERE id = $1
		RETURNING used_count, updated_at`,
		c.ID, c.Code, c.DiscountType, float64ToNumeric(c.DiscountValue), float64PtrToNumeric(c.MaxDiscount),
		float64ToNumeric(c.MinOrderAmount), intPtrToInt4(c.UsageLimit), intPtrToInt4(c.PerUserLimit),
		c.StartsAt, c.ExpiresAt, nonNil(c.ProductIDs), nonNil(c.CategoryIDs), c.IsActive,
	).Scan(&c.UsedCount, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, couponCodeIndex) {
			return domain.ErrAlreadyExists
		}
		return notFound(err)
	}
	return nil
}

func (r *couponRepository) Delete(ctx context.Context, id string) error {
	if !isValidUUID(id) {
		return domain.ErrNotFound
	}
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *couponRepository) GetByID(ctx context.Context, id string) (*domain.Coupon, error) {
	if !isValidUUID(id) {
		return nil, domain.ErrNotFound
	}
	c, err := scanCoupon(conn(ctx, r.db).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	return c, notFound(err)
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	c, err := scanCoupon(conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE upper(code) = upper($1)`, code))
	return c, notFound(err)
}

func (r *couponRepository) List(ctx context.Context, limit, offset int) ([]domain.Coupon, int64, error) {
	db := conn(ctx, r.db)

	var count int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM coupons`).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := db.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []domain.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *c)
	}
	return result, count, rows.Err()
}

func (r *couponRepository) CountUsagesByUser(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`, couponID, userID).Scan(&n)
	return n, err
}

// --- Usage accounting ---

func (r *couponRepository) LockByID(ctx context.Context, id string) (*domain.Coupon, error) {
	c, err := scanCoupon(conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, id))
	return c, notFound(err)
}

func (r *couponRepository) IncrementUsage(ctx context.Context, id string) (int, error) {
	var used int
	err := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING used_count`, id).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrCouponExhausted
	}
	return used, err
}

func (r *couponRepository) InsertUsage(ctx context.Context, u *domain.CouponUsage) (bool, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, discount_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`,
		u.ID, u.CouponID, u.UserID, u.OrderID, float64ToNumeric(u.DiscountAmount))
	if err != nil {
		return false, fmt.Errorf("insert coupon usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *couponRepository) DeleteUsageByOrder(ctx context.Context, orderID string) (bool, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		WITH removed AS (
			DELETE FROM coupon_usages WHERE order_id = $1 RETURNING coupon_id
		)
		UPDATE coupons SET used_count = GREATEST(used_count - 1, 0), updated_at = now()
		WHERE id IN (SELECT coupon_id FROM removed)`, orderID)
	if err != nil {
		return false, fmt.Errorf("release coupon usage: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
