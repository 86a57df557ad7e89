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

	"github.com/rs/zerolog"

	"github.com/freeeve/gamestats/internal/checkpoint"
	"github.com/freeeve/gamestats/internal/config"
	"github.com/freeeve/gamestats/internal/ingest"
	"github.com/freeeve/gamestats/internal/logx"
	"github.com/freeeve/gamestats/internal/metrics"
	"github.com/freeeve/gamestats/internal/pipeline"
	"github.com/freeeve/gamestats/internal/replay"
	"github.com/freeeve/gamestats/internal/rules"
	"github.com/freeeve/gamestats/internal/store/backends"
	"github.com/freeeve/gamestats/internal/transcript"
)

func main() {
	cfg, err := config.LoadIngest()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Usage: ingest (-pgn <file.pgn[.zst]> | -watch-dir <dir>) [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger(cfg.LogLevel)
	logger.Info().
		Str("pgn", cfg.Input).
		Str("watch_dir", cfg.WatchDir).
		Str("backend", string(detectKind(cfg.DSN))).
		Int("flush_every", cfg.FlushEvery).
		Int("workers", cfg.Workers).
		Int("rating_min", cfg.RatingMin).
		Msg("starting ingest")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().Msg("interrupted")
			os.Exit(130)
		}
		logger.Error().Err(err).Msg("ingest failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Ingest, logger zerolog.Logger) error {
	st, err := backends.Open(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// Acquire lock to signal other processes we're ingesting
	ckpt := checkpoint.New(cfg.ScratchDir)
	if err := ckpt.AcquireLock(); err != nil {
		return fmt.Errorf("acquire ingest lock (is another ingest running?): %w", err)
	}
	defer func() {
		if err := ckpt.ReleaseLock(); err != nil {
			logger.Error().Err(err).Msg("release ingest lock")
		}
	}()
	if ckpt != nil {
		logger.Info().Str("lock", ckpt.LockFilePath()).Msg("acquired ingest lock")
	}

	var m *metrics.Pipeline
	if cfg.MetricsAddr != "" {
		m = metrics.NewPipeline()
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	driver := pipeline.NewDriver(pipeline.Config{
		FlushEvery: cfg.FlushEvery,
		Workers:    cfg.Workers,
		RatingMin:  cfg.RatingMin,
		MaxGames:   cfg.MaxGames,
		Logger:     logger,
		Metrics:    m,
		Checkpoint: ckpt,
	}, replay.New[rules.Position](rules.NewPGN()), st)

	if cfg.WatchDir != "" {
		worker, err := ingest.NewWorker(ingest.Config{WatchDir: cfg.WatchDir, Logger: logger}, driver)
		if err != nil {
			return fmt.Errorf("create ingest worker: %w", err)
		}
		return worker.Run(ctx)
	}

	if found, err := driver.Recover(ctx); err != nil {
		return err
	} else if found {
		logger.Info().Msg("recovered pending interval from checkpoint")
	}

	input, err := transcript.InputName(cfg.Input)
	if err != nil {
		return err
	}
	if resume := driver.Resuming(); resume != "" && resume != input {
		logger.Warn().Str("checkpoint_input", resume).Str("input", input).Msg("checkpoint was taken on another input")
	}
	f, err := transcript.Open(cfg.Input)
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := driver.Run(ctx, input, f)
	logger.Info().
		Str("input", input).
		Int("games", stats.Games).
		Int("skipped", stats.Skipped).
		Int("resumed", stats.Resumed).
		Int("flushes", stats.Flushes).
		Msg("ingest finished")
	if err != nil {
		return fmt.Errorf("ingest %s (rerun the same file to resume): %w", cfg.Input, err)
	}
	return nil
}

func detectKind(dsn string) backends.Kind {
	kind, _ := backends.Detect(dsn)
	return kind
}
