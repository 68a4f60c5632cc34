// Package slippage discounts quoted rates to model execution cost before the
// rates reach the graph builder.
package slippage

import (
	"math"

	"arbfinder/internal/rates"
)

// MaxPercent is the largest slippage accepted from user-facing inputs.
const MaxPercent = 5.0

// Apply adjusts a rate for slippage: rate * (1 - fraction).
// The fraction must lie in [0, 1); anything else, or an invalid rate, makes
// the edge unusable and false is returned.
func Apply(rate, fraction float64) (float64, bool) {
	if !ValidFraction(fraction) || !rates.IsValidRate(rate) {
		return 0, false
	}

	adjusted := rate * (1 - fraction)
	if !rates.IsValidRate(adjusted) {
		return 0, false
	}
	return adjusted, true
}

// ValidFraction reports whether fraction is a usable slippage fraction.
func ValidFraction(fraction float64) bool {
	return fraction >= 0 && fraction < 1 && !math.IsNaN(fraction)
}

// FromPercent converts a percentage such as 1.5 into the fraction 0.015.
func FromPercent(pct float64) float64 {
	return pct / 100.0
}

// ApplyTable returns a new table with every rate discounted by fraction.
// Edges that cannot be adjusted are left out; the input is not modified.
// The second return value is the number of dropped edges.
func ApplyTable(table rates.RateTable, fraction float64) (rates.RateTable, int) {
	out := make(rates.RateTable, len(table))
	dropped := 0

	for base, inner := range table {
		for quote, rate := range inner {
			adjusted, ok := Apply(rate, fraction)
			if !ok {
				dropped++
				continue
			}
			out.Set(base, quote, adjusted)
		}
	}

	return out, dropped
}

// ApplyQuotes is ApplyTable for ordered quotes; order is preserved.
func ApplyQuotes(quotes []rates.Quote, fraction float64) ([]rates.Quote, int) {
	out := make([]rates.Quote, 0, len(quotes))
	dropped := 0

	for _, q := range quotes {
		adjusted, ok := Apply(q.Rate, fraction)
		if !ok {
			dropped++
			continue
		}
		out = append(out, rates.Quote{Base: q.Base, Quote: q.Quote, Rate: adjusted})
	}

	return out, dropped
}
