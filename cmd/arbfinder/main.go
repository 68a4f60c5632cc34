package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"arbfinder/internal/config"
	"arbfinder/internal/finder"
	"arbfinder/internal/persistence"
	"arbfinder/internal/pricefeed"
	"arbfinder/internal/rates"
	"arbfinder/internal/slippage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	input       string
	live        bool
	replay      string
	list        int
	detections  string
	slippagePct float64
	jsonOutput  bool
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	opts := options{}
	flag.StringVar(&opts.input, "input", "", "Rate table JSON file, or - for stdin")
	flag.BoolVar(&opts.live, "live", false, "Fetch live rates from the price feed")
	flag.StringVar(&opts.replay, "replay", "", "Re-run a stored snapshot by id, or \"latest\"")
	flag.IntVar(&opts.list, "list", 0, "List the N most recent stored snapshots and exit")
	flag.StringVar(&opts.detections, "detections", "", "List the detection runs recorded for a snapshot id, or \"latest\", and exit")
	flag.Float64Var(&opts.slippagePct, "slippage", -1, "Slippage percent, 0 to 5 (default from config)")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
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

	if opts.slippagePct >= 0 {
		if opts.slippagePct > slippage.MaxPercent {
			log.Fatal().Float64("slippage", opts.slippagePct).Msgf("Slippage must be between 0 and %g", slippage.MaxPercent)
		}
		cfg.Detector.SlippagePct = opts.slippagePct
	}

	sources := 0
	for _, set := range []bool{opts.input != "", opts.live, opts.replay != "", opts.list > 0, opts.detections != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -input, -live, -replay, -list or -detections is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg, opts); err != nil {
		log.Fatal().Err(err).Msg("Detection failed")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	var store *persistence.Store
	if cfg.Persistence.Enabled || opts.replay != "" || opts.list > 0 || opts.detections != "" {
		s, err := persistence.NewStore(cfg.Persistence.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer s.Close()
		store = s
	}

	if opts.list > 0 {
		return listSnapshots(ctx, os.Stdout, store, opts.list)
	}
	if opts.detections != "" {
		return listDetections(ctx, os.Stdout, store, opts.detections)
	}

	f := finder.New(finder.Config{NumWorkers: cfg.Detector.NumWorkers}, store, nil)
	fraction := cfg.SlippageFraction()

	var (
		res *finder.Result
		err error
	)
	switch {
	case opts.replay != "":
		res, err = f.Replay(ctx, opts.replay, fraction)
	case opts.live:
		client := pricefeed.NewClient(pricefeed.Config{
			BaseURL: cfg.Feed.BaseURL,
			Timeout: cfg.Feed.Timeout,
		}, nil)
		table, ferr := client.FetchRates(ctx, cfg.Feed.Assets)
		if ferr != nil {
			return ferr
		}
		res, err = f.Run(ctx, finder.Request{
			Quotes:           table.Quotes(),
			SlippageFraction: fraction,
			Source:           finder.SourceLive,
		})
	default:
		quotes, rerr := readQuotes(opts.input)
		if rerr != nil {
			return rerr
		}
		res, err = f.Run(ctx, finder.Request{
			Quotes:           quotes,
			SlippageFraction: fraction,
			Source:           finder.SourceManual,
		})
	}
	if err != nil {
		return err
	}

	return printResult(os.Stdout, res, opts.jsonOutput)
}

func readQuotes(path string) ([]rates.Quote, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer file.Close()
		r = file
	}

	quotes, err := rates.DecodeJSON(r)
	if err != nil {
		return nil, fmt.Errorf("reading rates from %s: %w", path, err)
	}
	return quotes, nil
}

func printResult(w io.Writer, res *finder.Result, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, res.Message())
		return err
	}

	out := struct {
		Found        bool     `json:"found"`
		Cycle        []string `json:"cycle"`
		ProfitFactor float64  `json:"profit_factor,omitempty"`
		Message      string   `json:"message"`
		SnapshotID   string   `json:"snapshot_id,omitempty"`
	}{
		Found:      res.Found,
		Cycle:      res.Path(),
		Message:    res.Message(),
		SnapshotID: res.SnapshotID,
	}
	if res.Cycle != nil {
		out.ProfitFactor = res.Cycle.ProfitFactor
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func listSnapshots(ctx context.Context, w io.Writer, store *persistence.Store, limit int) error {
	infos, err := store.ListSnapshots(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tRATES\tCREATED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", info.ID, info.Source, info.RateCount, info.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// listDetections prints the detection runs of one snapshot, oldest first.
func listDetections(ctx context.Context, w io.Writer, store *persistence.Store, id string) error {
	if id == finder.LatestSnapshot {
		snap, err := store.LatestSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("loading snapshot: %w", err)
		}
		if snap == nil {
			return fmt.Errorf("%w: %s", finder.ErrSnapshotNotFound, id)
		}
		id = snap.ID
	}

	records, err := store.ListDetections(ctx, id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFOUND\tPROFIT\tSLIPPAGE\tCYCLE\tCREATED")
	for _, rec := range records {
		cycle := "-"
		if rec.Found {
			cycle = strings.Join(rec.Path, " -> ")
		}
		fmt.Fprintf(tw, "%d\t%t\t%.6f\t%g%%\t%s\t%s\n",
			rec.ID, rec.Found, rec.ProfitFactor, rec.SlippagePct, cycle, rec.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// setupLogging writes logs to stderr so stdout carries only the result.
func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}
