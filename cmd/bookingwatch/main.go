package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holdgrid/bookingwatch/internal/config"
	"github.com/holdgrid/bookingwatch/internal/extract/gemini"
	"github.com/holdgrid/bookingwatch/internal/googleauth"
	"github.com/holdgrid/bookingwatch/internal/logging"
	gmailsrc "github.com/holdgrid/bookingwatch/internal/mail/gmail"
	"github.com/holdgrid/bookingwatch/internal/pipeline"
	"github.com/holdgrid/bookingwatch/internal/sink/sheets"
	"github.com/holdgrid/bookingwatch/internal/state"
	"github.com/holdgrid/bookingwatch/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "run":
		os.Exit(run(ctx, os.Args[2:], false))
	case "once":
		os.Exit(run(ctx, os.Args[2:], true))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func run(ctx context.Context, args []string, once bool) int {
	name := "run"
	if once {
		name = "once"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "bookingwatch.yaml", "Path to the YAML config file (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logging error: %s\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	p, store, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Errorw("startup failed", "error", util.RedactSecrets(err.Error()))
		return 1
	}
	defer func() { _ = store.Close() }()

	if once {
		stats, err := p.Cycle(ctx)
		if err != nil {
			logger.Errorw("cycle failed", "error", util.RedactSecrets(err.Error()))
			return 1
		}
		logger.Infow("cycle complete",
			"fetched", stats.Fetched,
			"skipped", stats.Skipped,
			"inapplicable", stats.Inapplicable,
			"appended", stats.Appended,
			"marked", stats.Marked,
			"failed", stats.Failed,
		)
		return 0
	}

	logger.Infow("starting poll loop",
		"pollInterval", cfg.PollInterval.Std().String(),
		"label", cfg.Gmail.Label,
		"spreadsheet", cfg.Sheets.SpreadsheetID,
	)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("loop stopped", "error", util.RedactSecrets(err.Error()))
		return 1
	}
	logger.Infow("shut down cleanly")
	return 0
}

func build(ctx context.Context, cfg config.Config, logger *logging.Logger) (*pipeline.Pipeline, *state.Store, error) {
	client, err := googleauth.Client(ctx, cfg.Google.CredentialsPath, cfg.Google.TokenPath)
	if err != nil {
		return nil, nil, err
	}

	source, err := gmailsrc.New(ctx, client, gmailsrc.Config{
		Label:      cfg.Gmail.Label,
		ExtraQuery: cfg.Gmail.ExtraQuery,
	})
	if err != nil {
		return nil, nil, err
	}

	snk, err := sheets.New(ctx, client, sheets.Config{
		SpreadsheetID: cfg.Sheets.SpreadsheetID,
		Range:         cfg.Sheets.Range,
	})
	if err != nil {
		return nil, nil, err
	}

	extractor, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := state.Open(cfg.StateDBPath)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(source, extractor, snk, store, logger, pipeline.Options{
		PollInterval: cfg.PollInterval.Std(),
		RateLimitRPS: cfg.RateLimitRPS,
		Retry: pipeline.RetryPolicy{
			MaxAttempts:       cfg.MaxRetryAttempts,
			BackoffInitial:    cfg.BackoffInitial.Std(),
			BackoffMax:        cfg.BackoffMax.Std(),
			BackoffJitterFrac: cfg.BackoffJitterFrac,
		},
		Now: func() time.Time { return time.Now().UTC() },
	})
	return p, store, nil
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `bookingwatch: watch sent mail for venue bookings and append them to a hold grid

Usage:
  bookingwatch <command> [flags]

Commands:
  run   Poll the mailbox on an interval until stopped
  once  Run a single poll cycle and exit (cron-friendly)

Flags:
  --config  Path to a YAML config file (default bookingwatch.yaml; optional)

Environment overrides:
  POLL_INTERVAL       Sleep between cycles (e.g. 60s)
  MAX_RETRIES         Max attempts per step for transient failures
  BACKOFF_INITIAL     Initial retry backoff (e.g. 500ms)
  BACKOFF_MAX         Backoff cap (e.g. 10s)
  RATE_LIMIT_RPS      Model-call rate limit, 0 disables
  STATE_DB_PATH       SQLite file for processed state and the poll watermark
  GMAIL_LABEL         Mailbox label to poll (default SENT)
  GMAIL_QUERY         Extra Gmail search terms
  SPREADSHEET_ID      Target spreadsheet (required)
  SHEET_RANGE         Append range (default "Hold Grid!A:G")
  GEMINI_API_KEY      Gemini API key (required)
  GEMINI_MODEL        Gemini model name
  GEMINI_BASE_URL     Optional base URL override (proxies/testing)
  GOOGLE_CREDENTIALS  OAuth client secret JSON (default credentials.json)
  GOOGLE_TOKEN        Cached OAuth token JSON (default token.json)
  LOG_LEVEL           debug, info, warn, error

`)
}
