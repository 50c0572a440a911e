package domain

import "github.com/shopspring/decimal"

// ExtractVAT splits a VAT-inclusive total at rate r into subtotal and
// tax: subtotal = total/(1+r) with banker's rounding to minor units,
// tax the exact remainder so the three always add up.
func ExtractVAT(total decimal.Decimal, rate float64) (subtotal, tax decimal.Decimal) {
	r := decimal.NewFromFloat(rate)
	subtotal = total.Div(decimal.NewFromInt(1).Add(r)).RoundBank(2)
	tax = total.Sub(subtotal)
	return subtotal, tax
}
