package internal

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"arbfinder/internal/finder"
	"arbfinder/internal/metrics"
	"arbfinder/internal/persistence"
	"arbfinder/internal/pricefeed"
	"arbfinder/internal/server"
)

// ETH is overpriced in USDT: BTC -> ETH -> USDT -> BTC doubles the stake.
// Reciprocal pairs form zero-weight loops; rounding may let them relax, but
// only the doubling triangle is a real opportunity.
const mispricedTickers = `[
	{"symbol":"ETHBTC","price":"0.0625"},
	{"symbol":"BTCUSDT","price":"65536"},
	{"symbol":"ETHUSDT","price":"8192"},
	{"symbol":"SOLUSDT","price":"150"}
]`

func newExchange(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(mispricedTickers))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestLiveFlowIntegration runs the complete flow:
// feed -> slippage -> graph -> detection -> snapshot -> replay
func TestLiveFlowIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exchange := newExchange(t)
	m := metrics.New()

	store, err := persistence.NewStore(filepath.Join(t.TempDir(), "arb.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	feed := pricefeed.NewClient(pricefeed.Config{BaseURL: exchange.URL, Timeout: time.Second}, m)
	table, err := feed.FetchRates(ctx, nil)
	if err != nil {
		t.Fatalf("FetchRates: %v", err)
	}
	if table.Len() != 6 {
		t.Fatalf("Expected 6 directed rates between BTC, ETH and USDT, got %d", table.Len())
	}

	f := finder.New(finder.Config{NumWorkers: 3}, store, m)
	res, err := f.Run(ctx, finder.Request{
		Quotes: table.Quotes(),
		Source: finder.SourceLive,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Found {
		t.Fatal("Expected the mispriced ETH/USDT pair to produce a cycle")
	}
	if math.Abs(res.Cycle.ProfitFactor-2) > 1e-9 {
		t.Errorf("Expected profit factor 2, got %f", res.Cycle.ProfitFactor)
	}
	for _, asset := range []string{"BTC", "ETH", "USDT"} {
		if !slices.Contains(res.Cycle.Path, asset) {
			t.Errorf("Expected cycle %s to contain %s", res.Cycle, asset)
		}
	}
	t.Logf("Found %s", res.Cycle.Summary())

	// 2 * 0.75^3 is below one
	replayed, err := f.Replay(ctx, finder.LatestSnapshot, 0.25)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed.SnapshotID != res.SnapshotID {
		t.Errorf("Expected replay of %s, got %s", res.SnapshotID, replayed.SnapshotID)
	}
	if replayed.Found {
		t.Errorf("Expected no cycle after slippage, got %s", replayed.Cycle)
	}

	records, err := store.ListDetections(ctx, res.SnapshotID)
	if err != nil {
		t.Fatalf("ListDetections: %v", err)
	}
	if len(records) != 2 || !records[0].Found || records[1].Found {
		t.Errorf("Unexpected detection records: %+v", records)
	}
}

// TestServerLiveEndpoint serves live detection over HTTP backed by the feed.
func TestServerLiveEndpoint(t *testing.T) {
	exchange := newExchange(t)
	m := metrics.New()

	feed := pricefeed.NewClient(pricefeed.Config{BaseURL: exchange.URL}, m)
	srv := server.New(server.Config{
		Assets:      []string{"BTC", "ETH", "USDT"},
		MetricsPath: "/metrics",
	}, finder.New(finder.Config{NumWorkers: 2}, nil, m), feed, m)

	api := httptest.NewServer(srv.Handler())
	defer api.Close()

	resp, err := http.Get(api.URL + "/api/live")
	if err != nil {
		t.Fatalf("GET /api/live: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var out server.DetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !out.Found {
		t.Fatal("Expected an opportunity from live rates")
	}
	if !strings.HasPrefix(out.Message, "Arbitrage opportunity found: ") {
		t.Errorf("Unexpected message %q", out.Message)
	}
	if _, ok := out.Rates.Get("SOL", "USDT"); ok {
		t.Error("Expected assets outside the configured set to be ignored")
	}
}
