package graph

import (
	"math"

	"arbfinder/internal/rates"
)

// Weight computes the edge weight for Bellman-Ford.
// Weight = -log(rate)
//
// For arbitrage detection:
// - A negative cycle (sum of weights < 0) means product of rates > 1 (profit)
// - We use -log so that multiplying rates becomes addition of weights
//
// Returns false for rates that cannot form an edge (<= 0, NaN, Inf).
func Weight(rate float64) (float64, bool) {
	if !rates.IsValidRate(rate) {
		return 0, false
	}
	return -math.Log(rate), true
}

// WeightToRate converts a weight back to an exchange rate.
func WeightToRate(weight float64) float64 {
	return math.Exp(-weight)
}

// CycleProfit calculates the profit factor from a cycle's total weight.
// If the sum of weights in a cycle is negative, the profit factor > 1.
func CycleProfit(totalWeight float64) float64 {
	return math.Exp(-totalWeight)
}
