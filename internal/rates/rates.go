// Package rates defines the exchange rate table consumed by the graph builder
// and its JSON wire shape: {"BASE": {"QUOTE": rate, ...}, ...}.
package rates

import (
	"math"
	"sort"
)

// RateTable maps a base asset to quote assets and the number of quote units
// received per unit of base. A rate for A->B says nothing about B->A.
type RateTable map[string]map[string]float64

// Quote is a single directed rate.
type Quote struct {
	Base  string  `json:"base"`
	Quote string  `json:"quote"`
	Rate  float64 `json:"rate"`
}

// IsValidRate reports whether a rate can become a graph edge.
// Zero, negative, NaN and infinite rates are meaningless quotes.
func IsValidRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}

// Set stores rate for base->quote, overwriting any previous value.
func (t RateTable) Set(base, quote string, rate float64) {
	inner, ok := t[base]
	if !ok {
		inner = make(map[string]float64)
		t[base] = inner
	}
	inner[quote] = rate
}

// Get returns the rate for base->quote.
func (t RateTable) Get(base, quote string) (float64, bool) {
	inner, ok := t[base]
	if !ok {
		return 0, false
	}
	rate, ok := inner[quote]
	return rate, ok
}

// Len returns the number of directed rates in the table.
func (t RateTable) Len() int {
	n := 0
	for _, inner := range t {
		n += len(inner)
	}
	return n
}

// Quotes flattens the table into quotes ordered by base, then quote.
func (t RateTable) Quotes() []Quote {
	bases := make([]string, 0, len(t))
	for base := range t {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	quotes := make([]Quote, 0, t.Len())
	for _, base := range bases {
		inner := t[base]
		keys := make([]string, 0, len(inner))
		for quote := range inner {
			keys = append(keys, quote)
		}
		sort.Strings(keys)
		for _, quote := range keys {
			quotes = append(quotes, Quote{Base: base, Quote: quote, Rate: inner[quote]})
		}
	}
	return quotes
}

// Assets returns every asset that appears as a base or a quote, sorted.
func (t RateTable) Assets() []string {
	seen := make(map[string]bool)
	for base, inner := range t {
		seen[base] = true
		for quote := range inner {
			seen[quote] = true
		}
	}
	assets := make([]string, 0, len(seen))
	for a := range seen {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

// Clone returns a deep copy of the table.
func (t RateTable) Clone() RateTable {
	out := make(RateTable, len(t))
	for base, inner := range t {
		cp := make(map[string]float64, len(inner))
		for quote, rate := range inner {
			cp[quote] = rate
		}
		out[base] = cp
	}
	return out
}

// FromQuotes builds a table from quotes. Later quotes overwrite earlier ones
// for the same pair.
func FromQuotes(quotes []Quote) RateTable {
	t := make(RateTable)
	for _, q := range quotes {
		t.Set(q.Base, q.Quote, q.Rate)
	}
	return t
}
