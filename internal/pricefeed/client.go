// Package pricefeed fetches live spot prices and turns them into a rate table.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbfinder/internal/metrics"
	"arbfinder/internal/rates"

	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public Binance REST endpoint.
const DefaultBaseURL = "https://api.binance.com"

const tickerPath = "/api/v3/ticker/price"

// DefaultAssets is used when the caller names no assets.
var DefaultAssets = []string{"BTC", "ETH", "USDT"}

// Config configures the feed client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Ticker is one entry of the ticker price response.
type Ticker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Client fetches ticker prices over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// NewClient creates a feed client. m may be nil.
func NewClient(cfg Config, m *metrics.Metrics) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: m,
	}
}

// FetchTickers returns every ticker the exchange publishes.
func (c *Client) FetchTickers(ctx context.Context) ([]Ticker, error) {
	var tickers []Ticker
	if err := c.get(ctx, c.baseURL+tickerPath, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

// FetchRates fetches tickers and keeps the pairs between the given assets.
// An empty asset list means DefaultAssets.
func (c *Client) FetchRates(ctx context.Context, assets []string) (rates.RateTable, error) {
	start := time.Now()

	tickers, err := c.FetchTickers(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordFeedError()
		}
		return nil, fmt.Errorf("fetching tickers: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordFeedLatency(time.Since(start))
	}

	table := RatesFromTickers(tickers, assets)

	log.Debug().
		Int("tickers", len(tickers)).
		Int("rates", table.Len()).
		Dur("duration", time.Since(start)).
		Msg("Fetched live rates")

	return table, nil
}

// RatesFromTickers maps symbol BASEQUOTE at price p to rates[BASE][QUOTE] = p
// and rates[QUOTE][BASE] = 1/p. Tickers with an unparsable or non-positive
// price are skipped.
func RatesFromTickers(tickers []Ticker, assets []string) rates.RateTable {
	if len(assets) == 0 {
		assets = DefaultAssets
	}

	pairs := make(map[string][2]string, len(assets)*len(assets))
	for _, base := range assets {
		for _, quote := range assets {
			if base == quote {
				continue
			}
			pairs[strings.ToUpper(base+quote)] = [2]string{base, quote}
		}
	}

	table := make(rates.RateTable)
	for _, t := range tickers {
		pair, ok := pairs[strings.ToUpper(t.Symbol)]
		if !ok {
			continue
		}

		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil || !rates.IsValidRate(price) {
			log.Debug().Str("symbol", t.Symbol).Str("price", t.Price).Msg("Skipping ticker with invalid price")
			continue
		}

		table.Set(pair[0], pair[1], price)
		if inverse := 1 / price; rates.IsValidRate(inverse) {
			table.Set(pair[1], pair[0], inverse)
		}
	}

	return table
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}

	return nil
}
