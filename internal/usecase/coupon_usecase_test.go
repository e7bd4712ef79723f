package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
)

func TestCreateCouponNormalizesCode(t *testing.T) {
	s := newMemStore()
	uc := NewCouponUsecase(memCoupons{s}, i18n.New("en"))

	c, err := uc.CreateCoupon(context.Background(), CouponRequest{
		Code:          " summer15 ",
		DiscountType:  domain.CouponTypePercentage,
		DiscountValue: 15,
		StartsAt:      "2025-06-01",
		ExpiresAt:     "2025-08-31T23:59:59Z",
	})

	require.NoError(t, err)
	assert.Equal(t, "SUMMER15", c.Code)
	assert.True(t, c.IsActive)
	assert.NotEmpty(t, c.ID)

	_, err = uc.CreateCoupon(context.Background(), CouponRequest{Code: "Summer15", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 5})
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestCouponRequestValidation(t *testing.T) {
	uc := NewCouponUsecase(memCoupons{newMemStore()}, i18n.New("en"))
	tests := []CouponRequest{
		{Code: "BAD", DiscountType: domain.CouponTypePercentage, DiscountValue: 120},
		{Code: "BAD", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 0},
		{Code: "   ", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 5},
		{Code: "BAD", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 5, StartsAt: "2025-06-02", ExpiresAt: "2025-06-01"},
		{Code: "BAD", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 5, StartsAt: "June"},
	}
	for _, req := range tests {
		_, err := uc.CreateCoupon(context.Background(), req)
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "%+v", req)
	}
}

func TestUpdateCouponKeepsUsedCount(t *testing.T) {
	s := newMemStore()
	uc := NewCouponUsecase(memCoupons{s}, i18n.New("en"))
	s.addCoupon(domain.Coupon{ID: "5b0c3f4e-2f7a-4d8e-9a55-1a2b3c4d5e6f", Code: "OLD", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 10, UsedCount: 7, IsActive: true})

	active := false
	c, err := uc.UpdateCoupon(context.Background(), "5b0c3f4e-2f7a-4d8e-9a55-1a2b3c4d5e6f", CouponRequest{
		Code: "NEW", DiscountType: domain.CouponTypeFreeShipping, DiscountValue: 30, IsActive: &active,
	})

	require.NoError(t, err)
	assert.Equal(t, 7, c.UsedCount)
	assert.Equal(t, 0.0, c.DiscountValue)
	assert.False(t, s.coupon(c.ID).IsActive)
}

func TestUpdateCouponRejectsLimitBelowUsedCount(t *testing.T) {
	s := newMemStore()
	uc := NewCouponUsecase(memCoupons{s}, i18n.New("en"))
	id := "5b0c3f4e-2f7a-4d8e-9a55-1a2b3c4d5e6f"
	s.addCoupon(domain.Coupon{ID: id, Code: "TEA10", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 10, UsageLimit: intPtr(20), UsedCount: 7, IsActive: true})
	req := CouponRequest{Code: "TEA10", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 10}

	req.UsageLimit = intPtr(6)
	_, err := uc.UpdateCoupon(context.Background(), id, req)
	typed := apperror.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperror.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{"usage_limit": "Usage limit cannot be lower than the 7 uses already recorded"}, typed.Details())
	assert.Equal(t, 20, *s.coupon(id).UsageLimit)

	req.UsageLimit = intPtr(7)
	c, err := uc.UpdateCoupon(context.Background(), id, req)
	require.NoError(t, err)
	assert.Equal(t, 7, *c.UsageLimit)
}

func TestGetCouponErrors(t *testing.T) {
	uc := NewCouponUsecase(memCoupons{newMemStore()}, i18n.New("en"))

	_, err := uc.GetCoupon(context.Background(), "not-a-uuid")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = uc.GetCoupon(context.Background(), "5b0c3f4e-2f7a-4d8e-9a55-1a2b3c4d5e6f")
	assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))
}
