package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
)

// CouponRecorder consumes a coupon for an order. Both methods must run inside
// the transaction that writes or cancels the order.
type CouponRecorder struct {
	coupons domain.CouponRepository
	tr      *i18n.Translator
}

func NewCouponRecorder(coupons domain.CouponRepository, tr *i18n.Translator) *CouponRecorder {
	return &CouponRecorder{coupons: coupons, tr: tr}
}

// Record claims one use of coupon for orderID. The coupon row is locked, the
// per-user limit re-checked, and used_count bumped by a guarded update, so
// concurrent checkouts cannot overshoot either limit. Recording twice for the
// same order is a no-op.
func (r *CouponRecorder) Record(ctx context.Context, couponID, userID, orderID string, discount float64) error {
	coupon, err := r.coupons.LockByID(ctx, couponID)
	if err != nil {
		return fmt.Errorf("lock coupon: %w", err)
	}

	if coupon.PerUserLimit != nil {
		used, err := r.coupons.CountUsagesByUser(ctx, coupon.ID, userID)
		if err != nil {
			return fmt.Errorf("count coupon usages: %w", err)
		}
		if used >= *coupon.PerUserLimit {
			return CouponResult{Reason: CouponReasonPerUserLimit, Message: r.tr.T(i18n.CouponPerUserLimit)}.Err()
		}
	}

	inserted, err := r.coupons.InsertUsage(ctx, &domain.CouponUsage{
		ID:             uuid.NewString(),
		CouponID:       coupon.ID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discount,
	})
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	if !inserted {
		return nil
	}

	if _, err := r.coupons.IncrementUsage(ctx, coupon.ID); err != nil {
		if errors.Is(err, domain.ErrCouponExhausted) {
			return CouponResult{Reason: CouponReasonUsageLimit, Message: r.tr.T(i18n.CouponUsageLimit)}.Err()
		}
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	return nil
}

// Release gives back the coupon use held by orderID, if any.
func (r *CouponRecorder) Release(ctx context.Context, orderID string) error {
	if _, err := r.coupons.DeleteUsageByOrder(ctx, orderID); err != nil {
		return apperror.Wrap(apperror.CodeInternal, err, "release coupon usage")
	}
	return nil
}
