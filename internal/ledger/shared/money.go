package shared

import "github.com/shopspring/decimal"

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

var hundred = decimal.NewFromInt(100)

// ClampPercent limits p to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// Percent returns round2(amount × p / 100).
func Percent(amount, p decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(p).Div(hundred))
}
