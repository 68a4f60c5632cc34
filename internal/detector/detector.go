package detector

import (
	"context"
	"sync/atomic"
	"time"

	"arbfinder/internal/graph"
	"arbfinder/internal/metrics"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DetectCycle runs Bellman-Ford from every node in node order and returns the
// first arbitrage cycle found as a closed list of assets.
// Returns nil, false when no source exposes a negative cycle.
func DetectCycle(g *graph.Graph) ([]string, bool) {
	c, _ := detect(context.Background(), g)
	if c == nil {
		return nil, false
	}
	return c.Path, true
}

// detect is the sequential form: sources are tried in order and the search
// stops at the first one that yields a cycle.
func detect(ctx context.Context, g *graph.Graph) (*Cycle, error) {
	n := g.NumNodes()
	edges := g.Edges()

	for sourceIdx := 0; sourceIdx < n; sourceIdx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if indices, ok := findFromSource(n, edges, sourceIdx); ok {
			return NewCycle(g, indices, sourceIdx), nil
		}
	}
	return nil, nil
}

// Config holds detector configuration.
type Config struct {
	// NumWorkers bounds how many sources are analysed concurrently.
	// Values <= 1 run sources one after another.
	NumWorkers int
}

// Detector runs arbitrage detection on exchange graphs.
type Detector struct {
	config  Config
	metrics *metrics.Metrics
}

// NewDetector creates a new arbitrage detector. m may be nil.
func NewDetector(cfg Config, m *metrics.Metrics) *Detector {
	return &Detector{
		config:  cfg,
		metrics: m,
	}
}

// Detect returns the first arbitrage cycle in g, or nil if there is none.
// With several workers the sources are analysed in parallel, but the cycle
// from the lowest-index source still wins, so the answer matches DetectCycle.
// The only error is ctx cancellation.
func (d *Detector) Detect(ctx context.Context, g *graph.Graph) (*Cycle, error) {
	startTime := time.Now()

	var (
		cycle *Cycle
		err   error
	)
	if d.config.NumWorkers <= 1 || g.NumNodes() < 2 {
		cycle, err = detect(ctx, g)
	} else {
		cycle, err = d.detectParallel(ctx, g)
	}
	if err != nil {
		return nil, err
	}

	detectionDuration := time.Since(startTime)

	if d.metrics != nil {
		d.metrics.RecordDetectionLatency(detectionDuration)
		d.metrics.RecordGraphStats(g.NumNodes(), g.NumEdges())
		d.metrics.RecordDetection(cycle != nil)
	}

	if cycle != nil {
		log.Info().
			Str("cycle", cycle.Summary()).
			Str("source", cycle.Source).
			Float64("profit_factor", cycle.ProfitFactor).
			Float64("profit_percent", (cycle.ProfitFactor-1)*100).
			Int("path_length", cycle.Length()).
			Dur("detection_time", detectionDuration).
			Msg("Arbitrage cycle detected")
	} else {
		log.Debug().
			Int("nodes", g.NumNodes()).
			Int("edges", g.NumEdges()).
			Dur("detection_time", detectionDuration).
			Msg("Detection complete - no arbitrage found")
	}

	return cycle, nil
}

// detectParallel analyses sources on a bounded worker pool. Sources above the
// best index found so far are skipped since they could never be reported.
func (d *Detector) detectParallel(ctx context.Context, g *graph.Graph) (*Cycle, error) {
	n := g.NumNodes()
	edges := g.Edges()

	found := make([][]int, n)
	var best atomic.Int64
	best.Store(int64(n))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.config.NumWorkers)

	for sourceIdx := 0; sourceIdx < n; sourceIdx++ {
		if int64(sourceIdx) > best.Load() {
			break
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			if int64(sourceIdx) > best.Load() {
				return nil
			}

			indices, ok := findFromSource(n, edges, sourceIdx)
			if !ok {
				return nil
			}
			found[sourceIdx] = indices

			for {
				cur := best.Load()
				if int64(sourceIdx) >= cur || best.CompareAndSwap(cur, int64(sourceIdx)) {
					return nil
				}
			}
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := best.Load()
	if idx >= int64(n) {
		return nil, nil
	}
	return NewCycle(g, found[idx], int(idx)), nil
}
