package graph

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// ValidationResult holds the results of a graph consistency check.
type ValidationResult struct {
	Valid          bool
	Errors         []string
	OrphanNodes    []string // Assets with zero edges
	NonFiniteEdges []string // Edges whose weight is NaN or infinite
	OneWayPairs    []string // A->B present without B->A
	SelfLoops      []string // A->A edges
}

// Validate performs a consistency check on the graph.
// Only non-finite weights make a graph invalid; the rest are warnings, since
// rate tables are not required to be symmetric or complete.
func (g *Graph) Validate() *ValidationResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := &ValidationResult{
		Valid:          true,
		Errors:         make([]string, 0),
		OrphanNodes:    make([]string, 0),
		NonFiniteEdges: make([]string, 0),
		OneWayPairs:    make([]string, 0),
		SelfLoops:      make([]string, 0),
	}

	hasIncoming := make([]bool, len(g.nodes))
	reverse := make(map[[2]int]bool)

	for _, edges := range g.adjacency {
		for _, edge := range edges {
			hasIncoming[edge.To] = true
			reverse[[2]int{edge.To, edge.From}] = true
		}
	}

	for fromIdx, edges := range g.adjacency {
		for _, edge := range edges {
			pair := g.nodes[fromIdx] + "->" + g.nodes[edge.To]

			if math.IsNaN(edge.Weight) || math.IsInf(edge.Weight, 0) {
				result.Valid = false
				result.NonFiniteEdges = append(result.NonFiniteEdges, pair)
				result.Errors = append(result.Errors,
					fmt.Sprintf("edge %s has non-finite weight %v", pair, edge.Weight))
			}

			if edge.From == edge.To {
				result.SelfLoops = append(result.SelfLoops, pair)
				continue
			}

			// reverse holds (to, from) keys, so a reciprocal edge shows up as (from, to)
			if !reverse[[2]int{edge.From, edge.To}] {
				result.OneWayPairs = append(result.OneWayPairs, pair)
			}
		}
	}

	for idx, asset := range g.nodes {
		if len(g.adjacency[idx]) == 0 && !hasIncoming[idx] {
			result.OrphanNodes = append(result.OrphanNodes, asset)
		}
	}

	return result
}

// ValidateAndLog performs validation and logs the results.
// Returns true if the graph is valid, false otherwise.
func (g *Graph) ValidateAndLog() bool {
	result := g.Validate()

	if len(result.OrphanNodes) > 0 {
		log.Warn().
			Int("count", len(result.OrphanNodes)).
			Strs("assets", truncateSlice(result.OrphanNodes, 5)).
			Msg("Graph has orphan assets (no edges)")
	}

	if len(result.OneWayPairs) > 0 {
		log.Debug().
			Int("count", len(result.OneWayPairs)).
			Strs("pairs", truncateSlice(result.OneWayPairs, 5)).
			Msg("Graph has one-way pairs")
	}

	if result.Valid {
		log.Debug().
			Int("assets", g.NumNodes()).
			Int("edges", g.NumEdges()).
			Msg("Graph validation passed")
		return true
	}

	for _, err := range result.Errors {
		log.Error().Msg("Graph validation error: " + err)
	}

	log.Error().
		Int("error_count", len(result.Errors)).
		Int("non_finite_edges", len(result.NonFiniteEdges)).
		Msg("Graph validation FAILED")

	return false
}

// truncateSlice returns at most n elements from the slice for logging.
func truncateSlice(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
