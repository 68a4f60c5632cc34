package graph

import (
	"arbfinder/internal/rates"
)

// BuildGraph converts a rate table into an exchange graph.
// Map iteration order is random in Go, so quotes are applied sorted by base
// then quote; node order is therefore deterministic for identical input.
func BuildGraph(table rates.RateTable) *Graph {
	return BuildGraphFromQuotes(table.Quotes())
}

// BuildGraphFromQuotes builds a graph applying quotes in the given order.
// Nodes are created on first appearance of a valid quote, invalid rates are
// skipped, and a repeated pair overwrites the earlier edge.
func BuildGraphFromQuotes(quotes []rates.Quote) *Graph {
	g := NewGraph()
	for _, q := range quotes {
		g.SetRate(q.Base, q.Quote, q.Rate)
	}
	return g
}
