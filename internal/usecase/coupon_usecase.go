package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/money"
	"teahouse-backend/pkg/utils"
)

// CouponUsecase handles admin coupon management. Checkout-time checks live in CouponValidator.
type CouponUsecase struct {
	couponRepo domain.CouponRepository
	tr         *i18n.Translator
}

func NewCouponUsecase(couponRepo domain.CouponRepository, tr *i18n.Translator) *CouponUsecase {
	return &CouponUsecase{couponRepo: couponRepo, tr: tr}
}

// CouponRequest is the body of both create and update.
type CouponRequest struct {
	Code           string   `json:"code" validate:"required,max=50"`
	DiscountType   string   `json:"discount_type" validate:"required,oneof=percentage fixed_amount free_shipping"`
	DiscountValue  float64  `json:"discount_value" validate:"gte=0"`
	MaxDiscount    *float64 `json:"max_discount" validate:"omitempty,gte=0"`
	MinOrderAmount float64  `json:"min_order_amount" validate:"gte=0"`
	UsageLimit     *int     `json:"usage_limit" validate:"omitempty,gte=1"`
	PerUserLimit   *int     `json:"per_user_limit" validate:"omitempty,gte=1"`
	StartsAt       string   `json:"starts_at"`  // ISO8601
	ExpiresAt      string   `json:"expires_at"` // ISO8601
	ProductIDs     []string `json:"product_ids" validate:"omitempty,dive,uuid"`
	CategoryIDs    []string `json:"category_ids" validate:"omitempty,dive,uuid"`
	IsActive       *bool    `json:"is_active"`
}

func (uc *CouponUsecase) CreateCoupon(ctx context.Context, req CouponRequest) (*domain.Coupon, error) {
	coupon, err := uc.couponFromRequest(req)
	if err != nil {
		return nil, err
	}
	coupon.ID = uuid.NewString()

	if err := uc.couponRepo.Create(ctx, coupon); err != nil {
		return nil, uc.writeError(coupon.Code, err)
	}
	return coupon, nil
}

// ListCoupons returns a page of coupons, newest first.
func (uc *CouponUsecase) ListCoupons(ctx context.Context, page, perPage int) ([]domain.Coupon, domain.Pagination, error) {
	coupons, total, err := uc.couponRepo.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("failed to list coupons: %w", err)
	}
	if coupons == nil {
		coupons = []domain.Coupon{}
	}
	return coupons, domain.NewPagination(page, perPage, total), nil
}

func (uc *CouponUsecase) GetCoupon(ctx context.Context, id string) (*domain.Coupon, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.New(apperror.CodeValidation, uc.tr.T(i18n.CouponInvalidID))
	}

	coupon, err := uc.couponRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, uc.tr.T(i18n.CouponNotFound))
		}
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	return coupon, nil
}

// UpdateCoupon replaces the editable fields. used_count is never touched here,
// so usage_limit may not drop below it.
func (uc *CouponUsecase) UpdateCoupon(ctx context.Context, id string, req CouponRequest) (*domain.Coupon, error) {
	existing, err := uc.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}

	coupon, err := uc.couponFromRequest(req)
	if err != nil {
		return nil, err
	}
	if coupon.UsageLimit != nil && *coupon.UsageLimit < existing.UsedCount {
		return nil, fieldError("usage_limit", uc.tr.T(i18n.CouponLimitBelowUsed, existing.UsedCount))
	}
	coupon.ID = existing.ID
	coupon.UsedCount = existing.UsedCount
	coupon.CreatedAt = existing.CreatedAt

	if err := uc.couponRepo.Update(ctx, coupon); err != nil {
		return nil, uc.writeError(coupon.Code, err)
	}
	return coupon, nil
}

func (uc *CouponUsecase) DeleteCoupon(ctx context.Context, id string) error {
	if _, err := uc.GetCoupon(ctx, id); err != nil {
		return err
	}
	if err := uc.couponRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	return nil
}

func (uc *CouponUsecase) writeError(code string, err error) error {
	if errors.Is(err, domain.ErrAlreadyExists) {
		return apperror.New(apperror.CodeConflict, uc.tr.T(i18n.CouponCodeTaken, code))
	}
	if errors.Is(err, domain.ErrNotFound) {
		return apperror.New(apperror.CodeNotFound, uc.tr.T(i18n.CouponNotFound))
	}
	return fmt.Errorf("failed to save coupon: %w", err)
}

func (uc *CouponUsecase) couponFromRequest(req CouponRequest) (*domain.Coupon, error) {
	code := utils.NormalizeCode(req.Code)
	if code == "" {
		return nil, fieldError("code", uc.tr.T(i18n.CouponCodeRequired))
	}

	switch req.DiscountType {
	case domain.CouponTypePercentage:
		if req.DiscountValue <= 0 || req.DiscountValue > 100 {
			return nil, fieldError("discount_value", uc.tr.T(i18n.CouponPercentRange))
		}
	case domain.CouponTypeFixedAmount:
		if req.DiscountValue <= 0 {
			return nil, fieldError("discount_value", uc.tr.T(i18n.CouponValueRequired))
		}
	case domain.CouponTypeFreeShipping:
	default:
		return nil, fieldError("discount_type", uc.tr.T(i18n.CouponUnknownType))
	}

	coupon := &domain.Coupon{
		Code:           code,
		DiscountType:   req.DiscountType,
		DiscountValue:  money.Round(req.DiscountValue),
		MaxDiscount:    req.MaxDiscount,
		MinOrderAmount: money.Round(req.MinOrderAmount),
		UsageLimit:     req.UsageLimit,
		PerUserLimit:   req.PerUserLimit,
		ProductIDs:     req.ProductIDs,
		CategoryIDs:    req.CategoryIDs,
		IsActive:       true,
	}
	if req.DiscountType == domain.CouponTypeFreeShipping {
		coupon.DiscountValue = 0
		coupon.MaxDiscount = nil
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}

	if req.StartsAt != "" {
		t, err := parseISO8601(req.StartsAt)
		if err != nil {
			return nil, fieldError("starts_at", uc.tr.T(i18n.CouponInvalidDate))
		}
		coupon.StartsAt = &t
	}
	if req.ExpiresAt != "" {
		t, err := parseISO8601(req.ExpiresAt)
		if err != nil {
			return nil, fieldError("expires_at", uc.tr.T(i18n.CouponInvalidDate))
		}
		coupon.ExpiresAt = &t
	}
	if coupon.StartsAt != nil && coupon.ExpiresAt != nil && !coupon.ExpiresAt.After(*coupon.StartsAt) {
		return nil, fieldError("expires_at", uc.tr.T(i18n.CouponExpiryBeforeStart))
	}
	return coupon, nil
}

func fieldError(field, message string) error {
	return apperror.New(apperror.CodeValidation, message).WithDetails(map[string]string{field: message})
}

// parseISO8601 parses an ISO8601 date string.
func parseISO8601(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format")
}
