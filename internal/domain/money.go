package domain

import "github.com/shopspring/decimal"

// DefaultScale is the number of subunits per currency unit (cents per dollar).
const DefaultScale = 100

// ToCurrency converts an amount in subunits to currency units.
// The division is done in decimal so 10 subunits is exactly the float
// nearest to 0.10, not 10 * 0.01.
func ToCurrency(subunits, scale int64) float64 {
	if scale <= 0 {
		scale = DefaultScale
	}
	return decimal.NewFromInt(subunits).Div(decimal.NewFromInt(scale)).InexactFloat64()
}

// FormatCurrency renders subunits as a fixed two-decimal currency string.
func FormatCurrency(subunits, scale int64) string {
	if scale <= 0 {
		scale = DefaultScale
	}
	return decimal.NewFromInt(subunits).Div(decimal.NewFromInt(scale)).StringFixed(2)
}
