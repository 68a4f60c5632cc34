package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus metrics for the arbitrage finder.
// Each instance owns its registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Graph metrics
	GraphNodes prometheus.Gauge
	GraphEdges prometheus.Gauge

	// Input metrics
	RatesFiltered *prometheus.CounterVec

	// Detection metrics
	DetectionLatency prometheus.Histogram
	DetectionRuns    *prometheus.CounterVec
	CyclesFound      prometheus.Counter

	// Feed metrics
	FeedLatency prometheus.Histogram
	FeedErrors  prometheus.Counter

	// Server metrics
	Requests *prometheus.CounterVec

	server *http.Server
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GraphNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_graph_nodes",
				Help: "Number of nodes (assets) in the last analysed graph",
			},
		),
		GraphEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_graph_edges",
				Help: "Number of edges (directed rates) in the last analysed graph",
			},
		),
		RatesFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_rates_filtered_total",
				Help: "Rates excluded before graph construction by reason",
			},
			[]string{"reason"},
		),
		DetectionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_detection_latency_seconds",
				Help:    "Time to run cycle detection on a graph",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10us to ~330ms
			},
		),
		DetectionRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_detection_runs_total",
				Help: "Total detection runs by outcome",
			},
			[]string{"result"},
		),
		CyclesFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_cycles_found_total",
				Help: "Total number of arbitrage cycles found",
			},
		),
		FeedLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_feed_latency_seconds",
				Help:    "Time to fetch live rates",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
			},
		),
		FeedErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_feed_errors_total",
				Help: "Total number of failed live rate fetches",
			},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_http_requests_total",
				Help: "HTTP requests by endpoint and status code",
			},
			[]string{"endpoint", "code"},
		),
	}

	// Register all metrics
	m.registry.MustRegister(
		m.GraphNodes,
		m.GraphEdges,
		m.RatesFiltered,
		m.DetectionLatency,
		m.DetectionRuns,
		m.CyclesFound,
		m.FeedLatency,
		m.FeedErrors,
		m.Requests,
	)

	return m
}

// Handler returns the HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the HTTP server for Prometheus metrics.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Info().Int("port", port).Str("path", path).Msg("Starting metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Shutdown gracefully stops the metrics server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}

// RecordGraphStats updates the graph node and edge counts.
func (m *Metrics) RecordGraphStats(nodes, edges int) {
	m.GraphNodes.Set(float64(nodes))
	m.GraphEdges.Set(float64(edges))
}

// RecordRatesFiltered adds count rates excluded for reason.
func (m *Metrics) RecordRatesFiltered(reason string, count int) {
	if count > 0 {
		m.RatesFiltered.WithLabelValues(reason).Add(float64(count))
	}
}

// RecordDetectionLatency records the time to run detection.
func (m *Metrics) RecordDetectionLatency(d time.Duration) {
	m.DetectionLatency.Observe(d.Seconds())
}

// RecordDetection counts a detection run by outcome.
func (m *Metrics) RecordDetection(found bool) {
	if found {
		m.DetectionRuns.WithLabelValues("found").Inc()
		m.CyclesFound.Inc()
		return
	}
	m.DetectionRuns.WithLabelValues("none").Inc()
}

// RecordFeedLatency records the time to fetch live rates.
func (m *Metrics) RecordFeedLatency(d time.Duration) {
	m.FeedLatency.Observe(d.Seconds())
}

// RecordFeedError increments the feed error counter.
func (m *Metrics) RecordFeedError() {
	m.FeedErrors.Inc()
}

// RecordRequest counts an HTTP request.
func (m *Metrics) RecordRequest(endpoint string, code int) {
	m.Requests.WithLabelValues(endpoint, fmt.Sprintf("%d", code)).Inc()
}
