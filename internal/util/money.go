package util

import "github.com/shopspring/decimal"

// CurrencyPlaces is the number of decimal places every stored amount is rounded to
const CurrencyPlaces = 2

// RoundCents rounds an amount to whole cents (half away from zero)
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// AddCents adds b to a and rounds the sum to cents, so drift never accumulates
// across long chains of months
func AddCents(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b).Round(CurrencyPlaces)
}

// SumCents adds all values, rounding after every step
func SumCents(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = AddCents(total, v)
	}
	return total
}
