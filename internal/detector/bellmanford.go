package detector

import (
	"math"

	"arbfinder/internal/graph"
)

// Result is the outcome of a single-source Bellman-Ford run.
type Result struct {
	Source int
	Dist   []float64
	Pred   []int // Predecessor node index, -1 for none

	// Violating is the first edge, in edge order, that could still be relaxed
	// after |V|-1 passes. Nil when no negative cycle is reachable from Source.
	Violating *graph.Edge
}

// HasNegativeCycle reports whether the extra scan found a relaxable edge.
func (r Result) HasNegativeCycle() bool {
	return r.Violating != nil
}

// BellmanFord runs the classic relaxation from sourceIdx over every edge of g.
func BellmanFord(g *graph.Graph, sourceIdx int) Result {
	return bellmanFord(g.NumNodes(), g.Edges(), sourceIdx)
}

// bellmanFord relaxes all edges |V|-1 times, updating distances in place so a
// pass can build on values set earlier in the same pass, then scans once more.
// Comparisons are strict: a zero-weight cycle is never reported.
func bellmanFord(n int, edges []graph.Edge, sourceIdx int) Result {
	if n == 0 || sourceIdx < 0 || sourceIdx >= n {
		return Result{Source: sourceIdx}
	}

	dist := make([]float64, n)
	pred := make([]int, n)
	for i := 0; i < n; i++ {
		dist[i] = math.Inf(1)
		pred[i] = -1
	}
	dist[sourceIdx] = 0

	for i := 0; i < n-1; i++ {
		for _, edge := range edges {
			if dist[edge.From]+edge.Weight < dist[edge.To] {
				dist[edge.To] = dist[edge.From] + edge.Weight
				pred[edge.To] = edge.From
			}
		}
	}

	result := Result{Source: sourceIdx, Dist: dist, Pred: pred}
	for i := range edges {
		edge := edges[i]
		if dist[edge.From]+edge.Weight < dist[edge.To] {
			result.Violating = &edge
			break
		}
	}

	return result
}

// walkCycle follows predecessors back from start until a node repeats and
// returns the loop in traversal order, closed by repeating its first node.
// Returns false if a node without a predecessor is reached first.
//
// Only the repeating part of the walk is kept. When start itself lies on the
// loop this is the whole walk; otherwise the leading nodes are a tail into the
// loop and not part of any cycle.
func walkCycle(pred []int, start int) ([]int, bool) {
	walk := []int{start}
	position := map[int]int{start: 0}

	current := start
	for {
		current = pred[current]
		if current < 0 {
			return nil, false
		}
		if at, seen := position[current]; seen {
			walk = walk[at:]
			break
		}
		position[current] = len(walk)
		walk = append(walk, current)
	}

	// Reverse to get correct order (from -> to)
	cycle := make([]int, len(walk), len(walk)+1)
	for i, idx := range walk {
		cycle[len(walk)-1-i] = idx
	}

	return append(cycle, cycle[0]), true
}

// findFromSource runs Bellman-Ford from one source and rebuilds the cycle
// behind the first violating edge, if any.
//
// Rounding in accumulated distances can let a zero-weight loop relax, so the
// rebuilt loop is re-summed from its edge weights and only kept when its rate
// product exceeds one. Otherwise the source yields nothing, as on a walk-off.
func findFromSource(n int, edges []graph.Edge, sourceIdx int) ([]int, bool) {
	result := bellmanFord(n, edges, sourceIdx)
	if !result.HasNegativeCycle() {
		return nil, false
	}

	cycle, ok := walkCycle(result.Pred, result.Violating.To)
	if !ok {
		return nil, false
	}
	if weight, ok := loopWeight(edges, cycle); !ok || !(graph.CycleProfit(weight) > 1) {
		return nil, false
	}
	return cycle, true
}

// loopWeight sums the edge weights along a closed index path.
func loopWeight(edges []graph.Edge, cycle []int) (float64, bool) {
	weights := make(map[[2]int]float64, len(edges))
	for _, e := range edges {
		weights[[2]int{e.From, e.To}] = e.Weight
	}

	total := 0.0
	for i := 0; i < len(cycle)-1; i++ {
		w, ok := weights[[2]int{cycle[i], cycle[i+1]}]
		if !ok {
			return 0, false
		}
		total += w
	}
	return total, true
}
