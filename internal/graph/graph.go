package graph

import (
	"fmt"
	"strings"
	"sync"
)

// Edge represents a directed conversion from one asset to another.
type Edge struct {
	From   int     // Index of source asset
	To     int     // Index of target asset
	Weight float64 // -log(rate) for Bellman-Ford
	Rate   float64 // Units of target per unit of source
}

// Graph represents the exchange graph.
// Assets are nodes (indexed 0 to N-1 in insertion order), rates are directed edges.
type Graph struct {
	mu sync.RWMutex

	// Asset storage
	nodes     []string       // Indexed asset list
	nodeIndex map[string]int // Asset -> index mapping

	// Adjacency list: adjacency[fromIdx] = list of edges from that node
	adjacency [][]Edge
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:     make([]string, 0),
		nodeIndex: make(map[string]int),
		adjacency: make([][]Edge, 0),
	}
}

// AddNode adds an asset to the graph if it doesn't exist.
// Returns the index of the asset.
func (g *Graph) AddNode(asset string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.addNodeLocked(asset)
}

// addNodeLocked adds an asset without acquiring the lock.
func (g *Graph) addNodeLocked(asset string) int {
	if idx, exists := g.nodeIndex[asset]; exists {
		return idx
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, asset)
	g.nodeIndex[asset] = idx
	g.adjacency = append(g.adjacency, make([]Edge, 0))

	return idx
}

// SetRate adds or replaces the edge from->to for an exchange rate.
// Invalid rates are skipped and leave the graph untouched; returns false in that case.
func (g *Graph) SetRate(from, to string, rate float64) bool {
	weight, ok := Weight(rate)
	if !ok {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fromIdx := g.addNodeLocked(from)
	toIdx := g.addNodeLocked(to)
	g.updateEdge(Edge{From: fromIdx, To: toIdx, Weight: weight, Rate: rate})
	return true
}

// SetEdge adds or replaces the edge from->to with an explicit weight.
func (g *Graph) SetEdge(from, to string, weight float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fromIdx := g.addNodeLocked(from)
	toIdx := g.addNodeLocked(to)
	g.updateEdge(Edge{From: fromIdx, To: toIdx, Weight: weight, Rate: WeightToRate(weight)})
}

// updateEdge replaces an existing edge for the same ordered pair or appends a new one.
// The replaced edge keeps its position so edge iteration order stays stable.
func (g *Graph) updateEdge(edge Edge) {
	for i, e := range g.adjacency[edge.From] {
		if e.To == edge.To {
			g.adjacency[edge.From][i] = edge
			return
		}
	}

	g.adjacency[edge.From] = append(g.adjacency[edge.From], edge)
}

// Nodes returns all assets in insertion order.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]string, len(g.nodes))
	copy(nodes, g.nodes)
	return nodes
}

// Node returns the asset at the given index.
func (g *Graph) Node(idx int) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if idx < 0 || idx >= len(g.nodes) {
		return "", false
	}
	return g.nodes[idx], true
}

// NodeIndex returns the index for an asset.
func (g *Graph) NodeIndex(asset string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, exists := g.nodeIndex[asset]
	return idx, exists
}

// Edge returns the edge from->to by asset name.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fromIdx, ok := g.nodeIndex[from]
	if !ok {
		return Edge{}, false
	}
	toIdx, ok := g.nodeIndex[to]
	if !ok {
		return Edge{}, false
	}

	for _, e := range g.adjacency[fromIdx] {
		if e.To == toIdx {
			return e, true
		}
	}
	return Edge{}, false
}

// HasEdge checks if a directed edge exists between two assets.
func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.Edge(from, to)
	return ok
}

// NumNodes returns the number of assets (nodes) in the graph.
func (g *Graph) NumNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// NumEdges returns the total number of directed edges.
func (g *Graph) NumEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, edges := range g.adjacency {
		count += len(edges)
	}
	return count
}

// EdgesFrom returns all edges from a given node index.
func (g *Graph) EdgesFrom(nodeIdx int) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if nodeIdx < 0 || nodeIdx >= len(g.adjacency) {
		return nil
	}

	// Return a copy to avoid race conditions
	edges := make([]Edge, len(g.adjacency[nodeIdx]))
	copy(edges, g.adjacency[nodeIdx])
	return edges
}

// Edges returns every edge as a flat slice, grouped by source node in node order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	all := make([]Edge, 0, len(g.nodes))
	for _, edges := range g.adjacency {
		all = append(all, edges...)
	}
	return all
}

// String returns a string representation of the graph.
func (g *Graph) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph: %d assets\n", len(g.nodes))
	for _, edges := range g.adjacency {
		for _, e := range edges {
			fmt.Fprintf(&sb, "  %s -> %s (rate=%g, weight=%.6f)\n",
				g.nodes[e.From], g.nodes[e.To], e.Rate, e.Weight)
		}
	}
	return sb.String()
}
