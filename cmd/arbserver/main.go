package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbfinder/internal/config"
	"arbfinder/internal/finder"
	"arbfinder/internal/metrics"
	"arbfinder/internal/persistence"
	"arbfinder/internal/pricefeed"
	"arbfinder/internal/server"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		// .env file is optional
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Logging)
	log.Info().Msg("Starting arbitrage finder server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Application error")
	}

	log.Info().Msg("Server shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	// Metrics share the API listener unless given their own port
	metricsPath := ""
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == cfg.Server.Port {
			metricsPath = cfg.Metrics.Path
		} else {
			if err := m.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				m.Shutdown(shutdownCtx)
			}()
		}
	}

	var store *persistence.Store
	if cfg.Persistence.Enabled {
		s, err := persistence.NewStore(cfg.Persistence.SQLitePath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
		log.Info().Str("path", cfg.Persistence.SQLitePath).Msg("Recording rate snapshots")
	}

	feed := pricefeed.NewClient(pricefeed.Config{
		BaseURL: cfg.Feed.BaseURL,
		Timeout: cfg.Feed.Timeout,
	}, m)

	f := finder.New(finder.Config{NumWorkers: cfg.Detector.NumWorkers}, store, m)

	srv := server.New(server.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Assets:       cfg.Feed.Assets,
		MetricsPath:  metricsPath,
	}, f, feed, m)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(srv.ListenAndServe)

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}
