package detector

import (
	"fmt"
	"strings"

	"arbfinder/internal/graph"
)

// Cycle represents an arbitrage cycle (negative cycle in the graph).
type Cycle struct {
	// Path is the ordered list of assets; first and last are the same asset
	Path []string

	// Source is the asset whose Bellman-Ford run exposed the cycle
	Source string

	// Total weight (sum of edge weights)
	// Negative weight means product of rates > 1 (profitable)
	TotalWeight float64

	// Profit factor: exp(-totalWeight)
	// > 1 means profitable
	ProfitFactor float64
}

// NewCycle creates a cycle from node indices, summing the weights of its hops.
// Returns nil if the path is shorter than two nodes or a hop has no edge.
func NewCycle(g *graph.Graph, indices []int, sourceIdx int) *Cycle {
	if len(indices) < 2 {
		return nil
	}

	c := &Cycle{Path: make([]string, len(indices))}
	for i, idx := range indices {
		asset, ok := g.Node(idx)
		if !ok {
			return nil
		}
		c.Path[i] = asset
	}
	c.Source, _ = g.Node(sourceIdx)

	for i := 0; i < len(c.Path)-1; i++ {
		edge, ok := g.Edge(c.Path[i], c.Path[i+1])
		if !ok {
			return nil
		}
		c.TotalWeight += edge.Weight
	}

	c.ProfitFactor = graph.CycleProfit(c.TotalWeight)
	return c
}

// Length returns the number of hops in the cycle.
func (c *Cycle) Length() int {
	return len(c.Path) - 1
}

// UniqueKey returns a key that is equal for rotations of the same cycle.
// Normalizes the cycle to start with the lexicographically smallest asset.
func (c *Cycle) UniqueKey() string {
	if len(c.Path) < 2 {
		return ""
	}

	// Remove the last element (duplicate of first)
	assets := c.Path[:len(c.Path)-1]

	minIdx := 0
	for i := 1; i < len(assets); i++ {
		if assets[i] < assets[minIdx] {
			minIdx = i
		}
	}

	rotated := make([]string, len(assets))
	for i := range assets {
		rotated[i] = assets[(minIdx+i)%len(assets)]
	}

	return strings.Join(rotated, "->")
}

// String returns a human-readable representation, e.g. "USD -> EUR -> GBP -> USD".
func (c *Cycle) String() string {
	if len(c.Path) == 0 {
		return "empty cycle"
	}
	return strings.Join(c.Path, " -> ")
}

// Summary returns the path together with its profit percentage.
func (c *Cycle) Summary() string {
	return fmt.Sprintf("[%s] profit=%.4f%%", c.String(), (c.ProfitFactor-1)*100)
}
