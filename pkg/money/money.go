// Package money does storefront arithmetic on decimals and hands back float64
// values rounded to cents.
package money

import "github.com/shopspring/decimal"

// Round rounds to 2 decimal places, half away from zero.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// LineTotal returns price × quantity rounded to cents.
func LineTotal(price float64, quantity int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(2).InexactFloat64()
}

// Sum adds values without accumulating float error.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// Percent returns base × pct / 100 rounded to cents.
func Percent(base, pct float64) float64 {
	return decimal.NewFromFloat(base).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}

// Total computes subtotal - discount + shipping.
func Total(subtotal, discount, shipping float64) float64 {
	return decimal.NewFromFloat(subtotal).
		Sub(decimal.NewFromFloat(discount)).
		Add(decimal.NewFromFloat(shipping)).
		Round(2).
		InexactFloat64()
}

// Min returns the smaller of a and b.
func Min(a, b float64) float64 {
	if decimal.NewFromFloat(a).LessThan(decimal.NewFromFloat(b)) {
		return a
	}
	return b
}

// WholeUnits rounds to an integer amount for gateways that reject fractional currency units.
func WholeUnits(v float64) int64 {
	return decimal.NewFromFloat(v).Round(0).IntPart()
}
