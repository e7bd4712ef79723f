package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/metrics"
	"teahouse-backend/pkg/money"
	"teahouse-backend/pkg/utils"
)

type CouponReason string

const (
	CouponReasonNotFound         CouponReason = "not_found"
	CouponReasonInactive         CouponReason = "inactive"
	CouponReasonNotStarted       CouponReason = "not_started"
	CouponReasonExpired          CouponReason = "expired"
	CouponReasonMinOrder         CouponReason = "min_order"
	CouponReasonUsageLimit       CouponReason = "usage_limit"
	CouponReasonPerUserLimit     CouponReason = "per_user_limit"
	CouponReasonProductMismatch  CouponReason = "product_mismatch"
	CouponReasonCategoryMismatch CouponReason = "category_mismatch"
)

type CouponCheck struct {
	Code        string
	UserID      string
	Subtotal    float64
	ProductIDs  []string
	CategoryIDs []string
}

// CouponResult never carries a discount when Valid is false.
// FreeShipping tells the pricing step to zero the shipping fee.
type CouponResult struct {
	Valid          bool           `json:"valid"`
	Reason         CouponReason   `json:"reason,omitempty"`
	Message        string         `json:"message"`
	DiscountAmount float64        `json:"discount_amount"`
	FreeShipping   bool           `json:"free_shipping"`
	Coupon         *domain.Coupon `json:"-"`
}

// Err turns a rejected result into a VALIDATION_ERROR for the coupon_code field.
func (r CouponResult) Err() error {
	if r.Valid {
		return nil
	}
	return apperror.New(apperror.CodeValidation, r.Message).WithDetails(map[string]any{
		"field":  "coupon_code",
		"reason": r.Reason,
	})
}

type CouponValidator struct {
	coupons domain.CouponRepository
	tr      *i18n.Translator
	metrics *metrics.Storefront
	now     func() time.Time
}

func NewCouponValidator(coupons domain.CouponRepository, tr *i18n.Translator, m *metrics.Storefront) *CouponValidator {
	return &CouponValidator{coupons: coupons, tr: tr, metrics: m, now: time.Now}
}

// Validate checks the coupon predicates in a fixed order and stops at the first failure.
// The error return is reserved for repository failures.
func (v *CouponValidator) Validate(ctx context.Context, check CouponCheck) (CouponResult, error) {
	coupon, err := v.coupons.GetByCode(ctx, utils.NormalizeCode(check.Code))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return v.reject(CouponReasonNotFound, v.tr.T(i18n.CouponNotFound)), nil
		}
		return CouponResult{}, fmt.Errorf("load coupon: %w", err)
	}

	if !coupon.IsActive {
		return v.reject(CouponReasonInactive, v.tr.T(i18n.CouponInactive)), nil
	}

	now := v.now()
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return v.reject(CouponReasonNotStarted, v.tr.T(i18n.CouponNotStarted)), nil
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return v.reject(CouponReasonExpired, v.tr.T(i18n.CouponExpired)), nil
	}

	if check.Subtotal < coupon.MinOrderAmount {
		return v.reject(CouponReasonMinOrder, v.tr.T(i18n.CouponMinOrder, formatAmount(coupon.MinOrderAmount))), nil
	}

	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return v.reject(CouponReasonUsageLimit, v.tr.T(i18n.CouponUsageLimit)), nil
	}

	if coupon.PerUserLimit != nil {
		used, err := v.coupons.CountUsagesByUser(ctx, coupon.ID, check.UserID)
		if err != nil {
			return CouponResult{}, fmt.Errorf("count coupon usages: %w", err)
		}
		if used >= *coupon.PerUserLimit {
			return v.reject(CouponReasonPerUserLimit, v.tr.T(i18n.CouponPerUserLimit)), nil
		}
	}

	if len(coupon.ProductIDs) > 0 && !intersects(coupon.ProductIDs, check.ProductIDs) {
		return v.reject(CouponReasonProductMismatch, v.tr.T(i18n.CouponProductMismatch)), nil
	}
	if len(coupon.CategoryIDs) > 0 && !intersects(coupon.CategoryIDs, check.CategoryIDs) {
		return v.reject(CouponReasonCategoryMismatch, v.tr.T(i18n.CouponCategoryMismatch)), nil
	}

	return CouponResult{
		Valid:          true,
		Message:        v.tr.T(i18n.CouponApplied),
		DiscountAmount: ComputeDiscount(coupon, check.Subtotal),
		FreeShipping:   coupon.DiscountType == domain.CouponTypeFreeShipping,
		Coupon:         coupon,
	}, nil
}

func (v *CouponValidator) reject(reason CouponReason, message string) CouponResult {
	v.metrics.CouponRejected(string(reason))
	return CouponResult{Valid: false, Reason: reason, Message: message}
}

// ComputeDiscount returns the discount for subtotal, rounded to cents and never above subtotal.
// Free-shipping coupons discount nothing here.
func ComputeDiscount(c *domain.Coupon, subtotal float64) float64 {
	var discount float64
	switch c.DiscountType {
	case domain.CouponTypePercentage:
		discount = money.Percent(subtotal, c.DiscountValue)
		if c.MaxDiscount != nil {
			discount = money.Min(discount, *c.MaxDiscount)
		}
	case domain.CouponTypeFixedAmount:
		discount = money.Min(c.DiscountValue, subtotal)
	default:
		return 0
	}
	discount = money.Min(money.Round(discount), subtotal)
	if discount < 0 {
		return 0
	}
	return discount
}

func intersects(allowed, present []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	for _, id := range present {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(money.Round(v), 'f', -1, 64)
}
