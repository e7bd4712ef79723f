package usecase

import "teahouse-backend/pkg/money"

// PriceBreakdown is the monetary summary shared by checkout and the coupon preview.
type PriceBreakdown struct {
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	ShippingFee    float64 `json:"shipping_fee"`
	Total          float64 `json:"total"`
	FreeShipping   bool    `json:"free_shipping"`
}

// NewPriceBreakdown is the only place a coupon's effect on totals is applied,
// including the zero shipping fee of free-shipping coupons.
func NewPriceBreakdown(subtotal, shippingFee float64, coupon *CouponResult) PriceBreakdown {
	b := PriceBreakdown{
		Subtotal:    money.Round(subtotal),
		ShippingFee: money.Round(shippingFee),
	}
	if coupon != nil && coupon.Valid {
		b.DiscountAmount = money.Min(money.Round(coupon.DiscountAmount), b.Subtotal)
		if coupon.FreeShipping {
			b.FreeShipping = true
			b.ShippingFee = 0
		}
	}
	b.Total = money.Total(b.Subtotal, b.DiscountAmount, b.ShippingFee)
	return b
}
