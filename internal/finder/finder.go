// Package finder ties the pipeline together: slippage adjustment, graph
// construction, cycle detection and optional snapshot recording.
package finder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arbfinder/internal/detector"
	"arbfinder/internal/graph"
	"arbfinder/internal/metrics"
	"arbfinder/internal/persistence"
	"arbfinder/internal/rates"
	"arbfinder/internal/slippage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Snapshot sources.
const (
	SourceManual = "manual"
	SourceLive   = "binance"
)

// LatestSnapshot selects the most recent snapshot in Replay.
const LatestSnapshot = "latest"

var (
	ErrInvalidSlippage  = errors.New("slippage fraction must be in [0, 1)")
	ErrNoStore          = errors.New("snapshot store not configured")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// FindArbitrage builds the graph for table and returns the first arbitrage
// cycle, or nil, false if there is none.
func FindArbitrage(table rates.RateTable) ([]string, bool) {
	return detector.DetectCycle(graph.BuildGraph(table))
}

// Request is one detection run.
type Request struct {
	Quotes           []rates.Quote
	SlippageFraction float64
	// Source labels the stored snapshot. Empty means SourceManual.
	Source string
}

// Result is the outcome of a detection run.
type Result struct {
	RunID      string
	SnapshotID string

	Found bool
	Cycle *detector.Cycle

	// Rates holds the slippage-adjusted rates the graph was built from
	Rates rates.RateTable

	Nodes            int
	Edges            int
	InvalidRates     int
	SlippageDrops    int
	SlippageFraction float64
	Duration         time.Duration
}

// Path returns the cycle path, or nil if no cycle was found.
func (r *Result) Path() []string {
	if r.Cycle == nil {
		return nil
	}
	return r.Cycle.Path
}

// Message formats the outcome for display.
func (r *Result) Message() string {
	if r.Cycle == nil {
		return "No arbitrage opportunity detected."
	}
	return "Arbitrage opportunity found: " + r.Cycle.String()
}

// Config holds finder configuration.
type Config struct {
	NumWorkers int
}

// Finder runs detection requests. The store and metrics are optional.
type Finder struct {
	detector *detector.Detector
	store    *persistence.Store
	metrics  *metrics.Metrics
}

// New creates a finder. store and m may be nil.
func New(cfg Config, store *persistence.Store, m *metrics.Metrics) *Finder {
	return &Finder{
		detector: detector.NewDetector(detector.Config{NumWorkers: cfg.NumWorkers}, m),
		store:    store,
		metrics:  m,
	}
}

// Find runs detection over table with the given slippage fraction.
func (f *Finder) Find(ctx context.Context, table rates.RateTable, slippageFraction float64) (*Result, error) {
	return f.Run(ctx, Request{
		Quotes:           table.Quotes(),
		SlippageFraction: slippageFraction,
		Source:           SourceManual,
	})
}

// Run executes a request. When a store is configured the raw quotes are saved
// as a snapshot and the outcome is recorded against it.
func (f *Finder) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Source == "" {
		req.Source = SourceManual
	}
	if !slippage.ValidFraction(req.SlippageFraction) {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidSlippage, req.SlippageFraction)
	}

	snapshotID := ""
	if f.store != nil {
		id, err := f.store.SaveSnapshot(ctx, req.Source, req.Quotes)
		if err != nil {
			return nil, fmt.Errorf("saving snapshot: %w", err)
		}
		snapshotID = id
	}

	return f.run(ctx, snapshotID, req.Quotes, req.SlippageFraction)
}

// Replay re-runs detection over a stored snapshot. id may be LatestSnapshot.
func (f *Finder) Replay(ctx context.Context, id string, slippageFraction float64) (*Result, error) {
	if f.store == nil {
		return nil, ErrNoStore
	}

	var (
		snap *persistence.Snapshot
		err  error
	)
	if id == LatestSnapshot {
		snap, err = f.store.LatestSnapshot(ctx)
	} else {
		snap, err = f.store.GetSnapshot(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}

	return f.run(ctx, snap.ID, snap.Quotes, slippageFraction)
}

func (f *Finder) run(ctx context.Context, snapshotID string, quotes []rates.Quote, fraction float64) (*Result, error) {
	if !slippage.ValidFraction(fraction) {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidSlippage, fraction)
	}

	start := time.Now()
	res := &Result{
		RunID:            uuid.New().String(),
		SnapshotID:       snapshotID,
		SlippageFraction: fraction,
	}
	logger := log.With().Str("run_id", res.RunID).Logger()

	for _, q := range quotes {
		if !rates.IsValidRate(q.Rate) {
			res.InvalidRates++
		}
	}

	adjusted, dropped := slippage.ApplyQuotes(quotes, fraction)
	res.SlippageDrops = dropped - res.InvalidRates
	res.Rates = rates.FromQuotes(adjusted)

	if f.metrics != nil {
		f.metrics.RecordRatesFiltered("invalid", res.InvalidRates)
		f.metrics.RecordRatesFiltered("slippage", res.SlippageDrops)
	}

	g := graph.BuildGraphFromQuotes(adjusted)
	res.Nodes = g.NumNodes()
	res.Edges = g.NumEdges()
	g.ValidateAndLog()

	cycle, err := f.detector.Detect(ctx, g)
	if err != nil {
		return nil, err
	}
	res.Cycle = cycle
	res.Found = cycle != nil
	res.Duration = time.Since(start)

	if f.store != nil && snapshotID != "" {
		rec := persistence.DetectionRecord{
			SnapshotID:  snapshotID,
			Found:       res.Found,
			SlippagePct: fraction * 100,
		}
		if cycle != nil {
			rec.Path = cycle.Path
			rec.CycleKey = cycle.UniqueKey()
			rec.ProfitFactor = cycle.ProfitFactor
		}
		if _, err := f.store.RecordDetection(ctx, rec); err != nil {
			return nil, fmt.Errorf("recording detection: %w", err)
		}
	}

	logger.Info().
		Str("snapshot_id", snapshotID).
		Int("quotes", len(quotes)).
		Int("nodes", res.Nodes).
		Int("edges", res.Edges).
		Int("invalid_rates", res.InvalidRates).
		Float64("slippage", fraction).
		Bool("found", res.Found).
		Dur("duration", res.Duration).
		Msg("Detection run complete")

	return res, nil
}
