package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shanehull/tdnetwatch/internal/ai"
	"github.com/shanehull/tdnetwatch/internal/api"
	"github.com/shanehull/tdnetwatch/internal/config"
	"github.com/shanehull/tdnetwatch/internal/logger"
	"github.com/shanehull/tdnetwatch/internal/notify"
	"github.com/shanehull/tdnetwatch/internal/pipeline"
	"github.com/shanehull/tdnetwatch/internal/store"
	"github.com/shanehull/tdnetwatch/internal/tdnet"
)

var (
	configPath = flag.String("config", "", "Path to the YAML config file (optional)")
	dbPath     = flag.String("db", "", "Override the SQLite database path")
	apiAddr    = flag.String("api-addr", "", "Override the API listen address")
	runOnce    = flag.Bool("once", false, "Run a single ingestion pass and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error loading config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *apiAddr != "" {
		cfg.API.Addr = *apiAddr
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	analyzer, err := ai.NewAnalyzer(ctx, cfg.AI.APIKey, cfg.AI.Model, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up analyzer (set GEMINI_API_KEY)")
	}

	scraper := tdnet.NewScraper(cfg.Scrape.IndexURL, cfg.Scrape.BaseURL, log)

	var notifier pipeline.Notifier
	if cfg.EmailEnabled() {
		notifier = notify.NewMailer(notify.EmailConfig{
			SMTPServer: cfg.Email.SMTPServer,
			SMTPPort:   cfg.Email.SMTPPort,
			SMTPUser:   cfg.Email.SMTPUser,
			SMTPPass:   cfg.Email.SMTPPass,
			FromEmail:  cfg.Email.FromEmail,
			ToEmail:    cfg.Email.ToEmail,
			Enabled:    true,
		}, log)
	}

	runner := pipeline.New(scraper, analyzer, st, notifier, pipeline.Options{
		BatchWidth: cfg.Scrape.BatchWidth,
		DedupDepth: cfg.Scrape.DedupDepth,
	}, log)

	if *runOnce {
		if err := runner.Run(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	var srv *http.Server
	if cfg.API.Enabled {
		handler := api.NewHandler(st, runner.Status, log)
		srv = &http.Server{
			Addr:    cfg.API.Addr,
			Handler: handler.Router(),
		}
		go func() {
			log.Info().Str("addr", cfg.API.Addr).Msg("query API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("API server stopped")
			}
		}()
	}

	log.Info().Dur("interval", cfg.Scrape.Interval()).Msg("starting scheduler")
	runLoop(ctx, runner, cfg.Scrape.Interval(), log)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("API shutdown failed")
		}
	}
	log.Info().Msg("shutdown complete")
}

// runLoop executes one run immediately, then one per tick. Runs are
// sequential by construction, so a long run simply delays the next tick
// rather than overlapping it.
func runLoop(ctx context.Context, runner *pipeline.Runner, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runner.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("run aborted; will retry on next tick")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
