package graph

import (
	"math"
	"testing"

	"arbfinder/internal/rates"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(b))
}

func TestAddNode(t *testing.T) {
	g := NewGraph()

	idx := g.AddNode("BTC")
	if idx != 0 {
		t.Errorf("Expected index 0, got %d", idx)
	}

	// Adding the same asset should return the same index
	idx2 := g.AddNode("BTC")
	if idx2 != 0 {
		t.Errorf("Expected same index 0 for duplicate, got %d", idx2)
	}

	// Identifiers are case-sensitive
	if g.AddNode("btc") != 1 {
		t.Error("Expected btc to be a distinct node")
	}

	if g.NumNodes() != 2 {
		t.Errorf("Expected 2 nodes, got %d", g.NumNodes())
	}
}

func TestBuildGraph(t *testing.T) {
	table := rates.RateTable{
		"BTC": {"ETH": 15.0, "USDT": 30000.0},
		"ETH": {"BTC": 0.066},
	}

	g := BuildGraph(table)

	// Check nodes
	nodes := g.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %v", nodes)
	}
	for _, asset := range []string{"BTC", "ETH", "USDT"} {
		if _, ok := g.NodeIndex(asset); !ok {
			t.Errorf("Expected node %s", asset)
		}
	}

	// Check edge weights
	tests := []struct {
		from, to string
		rate     float64
	}{
		{"BTC", "ETH", 15.0},
		{"BTC", "USDT", 30000.0},
		{"ETH", "BTC", 0.066},
	}
	for _, tt := range tests {
		edge, ok := g.Edge(tt.from, tt.to)
		if !ok {
			t.Errorf("Expected edge %s -> %s", tt.from, tt.to)
			continue
		}
		if !almostEqual(edge.Weight, -math.Log(tt.rate)) {
			t.Errorf("Edge %s -> %s: expected weight %f, got %f", tt.from, tt.to, -math.Log(tt.rate), edge.Weight)
		}
		if edge.Rate != tt.rate {
			t.Errorf("Edge %s -> %s: expected rate %f, got %f", tt.from, tt.to, tt.rate, edge.Rate)
		}
	}

	// Check no edge for missing ETH -> USDT
	if g.HasEdge("ETH", "USDT") {
		t.Error("Expected no edge ETH -> USDT")
	}
	if g.HasEdge("USDT", "BTC") {
		t.Error("Expected no edge USDT -> BTC")
	}

	if g.NumEdges() != 3 {
		t.Errorf("Expected 3 edges, got %d", g.NumEdges())
	}
}

func TestBuildGraphNodeOrderIsDeterministic(t *testing.T) {
	table := rates.RateTable{
		"USD": {"EUR": 0.9},
		"EUR": {"GBP": 0.8},
		"GBP": {"USD": 1.45},
	}

	first := BuildGraph(table).Nodes()
	for i := 0; i < 20; i++ {
		nodes := BuildGraph(table).Nodes()
		for j := range first {
			if nodes[j] != first[j] {
				t.Fatalf("Node order changed between builds: %v vs %v", first, nodes)
			}
		}
	}

	// Sorted by base then quote: EUR->GBP adds EUR, GBP; GBP->USD adds USD
	expected := []string{"EUR", "GBP", "USD"}
	for i, asset := range expected {
		if first[i] != asset {
			t.Errorf("Expected node %d to be %s, got %s", i, asset, first[i])
		}
	}
}

func TestBuildGraphSkipsInvalidRates(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"zero", 0},
		{"negative", -1.2},
		{"NaN", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := BuildGraph(rates.RateTable{"ETH": {"BTC": tt.rate}})
			if g.NumEdges() != 0 {
				t.Errorf("Expected no edges, got %d", g.NumEdges())
			}
			if g.NumNodes() != 0 {
				t.Errorf("Expected no nodes for a skipped rate, got %v", g.Nodes())
			}
		})
	}
}

func TestBuildGraphEmptyInner(t *testing.T) {
	g := BuildGraph(rates.RateTable{"ETH": {}})
	if g.NumEdges() != 0 {
		t.Errorf("Expected no edges, got %d", g.NumEdges())
	}
}

func TestBuildGraphFromQuotesLastWriteWins(t *testing.T) {
	quotes := []rates.Quote{
		{Base: "USD", Quote: "EUR", Rate: 0.9},
		{Base: "EUR", Quote: "USD", Rate: 1.1},
		{Base: "USD", Quote: "EUR", Rate: 0.95},
	}

	g := BuildGraphFromQuotes(quotes)

	if g.NumEdges() != 2 {
		t.Fatalf("Expected 2 edges, got %d", g.NumEdges())
	}

	edge, _ := g.Edge("USD", "EUR")
	if edge.Rate != 0.95 {
		t.Errorf("Expected last rate 0.95 to win, got %f", edge.Rate)
	}

	// The overwritten edge keeps its slot
	edges := g.Edges()
	if from, _ := g.Node(edges[0].From); from != "USD" {
		t.Errorf("Expected first edge to stay USD -> EUR, got from %s", from)
	}
}

func TestBuildGraphFromQuotesInvalidDoesNotOverwrite(t *testing.T) {
	quotes := []rates.Quote{
		{Base: "USD", Quote: "EUR", Rate: 0.9},
		{Base: "USD", Quote: "EUR", Rate: 0},
	}

	g := BuildGraphFromQuotes(quotes)

	edge, ok := g.Edge("USD", "EUR")
	if !ok || edge.Rate != 0.9 {
		t.Errorf("Expected skipped rate to leave 0.9 in place, got %+v", edge)
	}
}

func TestEdgesFrom(t *testing.T) {
	g := NewGraph()
	g.SetRate("A", "B", 2)
	g.SetRate("A", "C", 3)

	edges := g.EdgesFrom(0)
	if len(edges) != 2 {
		t.Fatalf("Expected 2 outgoing edges, got %d", len(edges))
	}

	// Mutating the copy must not affect the graph
	edges[0].Weight = 42
	if g.EdgesFrom(0)[0].Weight == 42 {
		t.Error("EdgesFrom returned shared storage")
	}

	if g.EdgesFrom(5) != nil {
		t.Error("Expected nil for out-of-range index")
	}
}

func TestSetEdgeWeight(t *testing.T) {
	g := NewGraph()
	g.SetEdge("USD", "EUR", -0.25)

	edge, ok := g.Edge("USD", "EUR")
	if !ok {
		t.Fatal("Expected edge")
	}
	if edge.Weight != -0.25 {
		t.Errorf("Expected weight -0.25, got %f", edge.Weight)
	}
	if !almostEqual(edge.Rate, math.Exp(0.25)) {
		t.Errorf("Expected rate exp(0.25), got %f", edge.Rate)
	}
}

func TestWeightCalculation(t *testing.T) {
	tests := []struct {
		name      string
		rate      float64
		expectNeg bool
	}{
		{"favorable rate", 2.0, true},
		{"unfavorable rate", 0.5, false},
		{"parity", 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weight, ok := Weight(tt.rate)
			if !ok {
				t.Fatal("Expected valid weight")
			}
			if tt.expectNeg && weight >= 0 {
				t.Errorf("Expected negative weight, got %f", weight)
			}
			if !tt.expectNeg && weight < 0 {
				t.Errorf("Expected non-negative weight, got %f", weight)
			}
			if !almostEqual(WeightToRate(weight), tt.rate) {
				t.Errorf("Round trip mismatch: %f -> %f", tt.rate, WeightToRate(weight))
			}
		})
	}
}

func TestCycleProfit(t *testing.T) {
	// 0.9 * 0.8 * 1.45 = 1.044
	total := -math.Log(0.9) - math.Log(0.8) - math.Log(1.45)
	if !almostEqual(CycleProfit(total), 1.044) {
		t.Errorf("Expected profit factor 1.044, got %f", CycleProfit(total))
	}
}

func TestGraphValidation(t *testing.T) {
	g := NewGraph()
	g.SetRate("BTC", "ETH", 15)
	g.SetRate("ETH", "BTC", 0.066)

	result := g.Validate()
	if !result.Valid {
		t.Errorf("Expected valid graph, got errors: %v", result.Errors)
	}
	if len(result.OneWayPairs) != 0 {
		t.Errorf("Expected no one-way pairs, got %v", result.OneWayPairs)
	}

	g.SetRate("BTC", "USDT", 30000)
	g.AddNode("DOGE")
	g.SetEdge("ETH", "USDT", math.Inf(1))
	g.SetRate("USDT", "USDT", 1)

	result = g.Validate()
	if result.Valid {
		t.Error("Expected invalid graph with infinite weight")
	}
	if len(result.NonFiniteEdges) != 1 || result.NonFiniteEdges[0] != "ETH->USDT" {
		t.Errorf("Expected ETH->USDT non-finite, got %v", result.NonFiniteEdges)
	}
	if len(result.OrphanNodes) != 1 || result.OrphanNodes[0] != "DOGE" {
		t.Errorf("Expected DOGE orphan, got %v", result.OrphanNodes)
	}
	if len(result.OneWayPairs) != 2 {
		t.Errorf("Expected 2 one-way pairs, got %v", result.OneWayPairs)
	}
	if len(result.SelfLoops) != 1 {
		t.Errorf("Expected 1 self loop, got %v", result.SelfLoops)
	}
	if g.ValidateAndLog() {
		t.Error("Expected ValidateAndLog to report failure")
	}
}

func BenchmarkBuildGraph(b *testing.B) {
	assets := []string{"BTC", "ETH", "USDT", "BNB", "SOL", "XRP", "ADA", "DOGE", "DOT", "LTC"}
	table := make(rates.RateTable)
	for i, base := range assets {
		for j, quote := range assets {
			if i != j {
				table.Set(base, quote, float64(i+1)/float64(j+1))
			}
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildGraph(table)
	}
}
