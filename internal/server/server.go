// Package server exposes detection over HTTP and WebSocket.
package server

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"arbfinder/internal/finder"
	"arbfinder/internal/metrics"
	"arbfinder/internal/rates"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

//go:embed static/index.html
var indexHTML []byte

// maxBodySize bounds request bodies and websocket messages.
const maxBodySize = 1 << 20

// RateSource supplies live rates for the given assets.
type RateSource interface {
	FetchRates(ctx context.Context, assets []string) (rates.RateTable, error)
}

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Assets are requested from the live feed
	Assets []string

	// MetricsPath mounts the metrics handler when set
	MetricsPath string
}

// Server serves the detection UI and API.
type Server struct {
	cfg      Config
	finder   *finder.Finder
	feed     RateSource
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// New creates a server. feed and m may be nil; without a feed the live
// endpoints answer 503.
func New(cfg Config, f *finder.Finder, feed RateSource, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		finder:  f,
		feed:    feed,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler for all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /{$}", "/", s.handleIndex)
	s.handle(mux, "GET /health", "/health", s.handleHealth)
	s.handle(mux, "POST /api/detect", "/api/detect", s.handleDetect)
	s.handle(mux, "GET /api/live", "/api/live", s.handleLive)
	s.handle(mux, "GET /ws", "/ws", s.handleWebSocket)

	if s.metrics != nil && s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics.Handler())
	}

	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(endpoint, h))
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
