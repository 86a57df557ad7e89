// Package ingest watches a directory for transcript files and feeds each one
// through the aggregation pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/gamestats/internal/pipeline"
	"github.com/freeeve/gamestats/internal/store"
	"github.com/freeeve/gamestats/internal/transcript"
)

// Runner aggregates one transcript stream. *pipeline.Driver implements it.
type Runner interface {
	Recover(ctx context.Context) (bool, error)
	Run(ctx context.Context, input string, r io.Reader) (pipeline.Stats, error)
	// Resuming names the input a failed run stopped partway through.
	Resuming() string
}

// Config configures the ingest worker.
type Config struct {
	WatchDir     string        // Directory to watch for PGN files
	ProcessedDir string        // Files that ingested cleanly, default <watch>/processed
	FailedDir    string        // Files that failed, default <watch>/failed
	PollInterval time.Duration // How often to check for new files
	Logger       zerolog.Logger
}

// Worker watches a folder and ingests PGN files one at a time. Files are
// never ingested concurrently since every run merges into the same rows.
type Worker struct {
	cfg    Config
	runner Runner
	log    zerolog.Logger
}

// NewWorker creates a new ingest worker. It returns nil when WatchDir is
// empty.
func NewWorker(cfg Config, runner Runner) (*Worker, error) {
	if cfg.WatchDir == "" {
		return nil, nil // Disabled
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
	}
	if cfg.FailedDir == "" {
		cfg.FailedDir = filepath.Join(cfg.WatchDir, "failed")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	for _, dir := range []string{cfg.WatchDir, cfg.ProcessedDir, cfg.FailedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	return &Worker{
		cfg:    cfg,
		runner: runner,
		log:    cfg.Logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// Run recovers any pending interval, then polls the watch directory until
// ctx is done or a run fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Dur("poll", w.cfg.PollInterval).
		Msg("ingest worker started")

	if _, err := w.runner.Recover(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessNewFiles(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessNewFiles ingests the PGN files currently in the watch directory in
// name order and returns how many succeeded. A file an earlier run stopped
// partway through goes first, so it resumes where that run left off.
//
// A file that cannot be opened is moved to the failed directory and skipped.
// Any other failure stops the worker. After a flush failure the file stays
// in place to be resumed on restart; otherwise it moves to the failed
// directory.
func (w *Worker) ProcessNewFiles(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		return 0, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && transcript.IsPGNFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return 0, nil
	}
	sort.Strings(files)
	files = w.resumeFirst(files)
	w.log.Info().Int("files", len(files)).Msg("found PGN files to process")

	var processed int
	for _, name := range files {
		err := w.processFile(ctx, name)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return processed, err
		}
		var openErr *openError
		switch {
		case err == nil:
			w.move(name, w.cfg.ProcessedDir)
			processed++
		case errors.As(err, &openErr):
			w.log.Error().Err(err).Str("file", name).Msg("ingest failed")
			w.move(name, w.cfg.FailedDir)
		case errors.Is(err, store.ErrFetch) || errors.Is(err, store.ErrUpsert):
			w.log.Error().Err(err).Str("file", name).Msg("flush failed, file left for resume")
			return processed, fmt.Errorf("ingest %s: %w", name, err)
		default:
			w.move(name, w.cfg.FailedDir)
			return processed, fmt.Errorf("ingest %s: %w", name, err)
		}
	}
	return processed, nil
}

type openError struct{ err error }

func (e *openError) Error() string { return e.err.Error() }
func (e *openError) Unwrap() error { return e.err }

func (w *Worker) processFile(ctx context.Context, name string) error {
	path := filepath.Join(w.cfg.WatchDir, name)
	w.log.Info().Str("path", path).Msg("starting file ingest")

	input, err := transcript.InputName(path)
	if err != nil {
		return &openError{err: err}
	}
	f, err := transcript.Open(path)
	if err != nil {
		return &openError{err: err}
	}
	defer f.Close()

	stats, err := w.runner.Run(ctx, input, f)
	if err != nil {
		return err
	}
	w.log.Info().
		Str("file", name).
		Int("resumed", stats.Resumed).
		Int("games", stats.Games).
		Int("skipped", stats.Skipped).
		Dur("elapsed", stats.Elapsed).
		Float64("games_per_sec", float64(stats.Games)/stats.Elapsed.Seconds()).
		Msg("file ingest complete")
	return nil
}

// resumeFirst moves the file the runner is resuming, if present, to the
// front of files.
func (w *Worker) resumeFirst(files []string) []string {
	want := w.runner.Resuming()
	if want == "" {
		return files
	}
	for i, name := range files {
		input, err := transcript.InputName(filepath.Join(w.cfg.WatchDir, name))
		if err != nil || input != want {
			continue
		}
		if i > 0 {
			w.log.Info().Str("file", name).Msg("resuming interrupted file first")
		}
		out := make([]string, 0, len(files))
		out = append(out, name)
		out = append(out, files[:i]...)
		return append(out, files[i+1:]...)
	}
	w.log.Warn().Str("input", want).Msg("interrupted input not in watch dir")
	return files
}

func (w *Worker) move(name, dir string) {
	src := filepath.Join(w.cfg.WatchDir, name)
	dst := filepath.Join(dir, name)
	if err := os.Rename(src, dst); err != nil {
		w.log.Warn().Err(err).Str("file", name).Msg("move failed")
		return
	}
	w.log.Debug().Str("file", name).Str("to", dir).Msg("moved")
}
