package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/gamestats/internal/checkpoint"
	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/pipeline"
	"github.com/freeeve/gamestats/internal/replay"
	"github.com/freeeve/gamestats/internal/rules"
	"github.com/freeeve/gamestats/internal/store"
	"github.com/freeeve/gamestats/internal/store/memstore"
)

const startID = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"

// recordingRunner remembers the contents it was asked to run.
type recordingRunner struct {
	seen     []string
	failOn   string
	failWith error
	resuming string
	recover  int
}

func (r *recordingRunner) Recover(ctx context.Context) (bool, error) {
	r.recover++
	return false, nil
}

func (r *recordingRunner) Run(ctx context.Context, input string, in io.Reader) (pipeline.Stats, error) {
	b, err := io.ReadAll(in)
	if err != nil {
		return pipeline.Stats{}, err
	}
	r.seen = append(r.seen, string(b))
	if string(b) == r.failOn {
		if r.failWith != nil {
			return pipeline.Stats{}, r.failWith
		}
		return pipeline.Stats{}, errors.New("store down")
	}
	return pipeline.Stats{Games: 1}, nil
}

func (r *recordingRunner) Resuming() string { return r.resuming }

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestNewWorker_Disabled(t *testing.T) {
	w, err := NewWorker(Config{}, &recordingRunner{})
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestProcessNewFiles_Order(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pgn", "second")
	writeFile(t, dir, "a.pgn", "first")
	writeFile(t, dir, "notes.txt", "ignored")

	runner := &recordingRunner{}
	w, err := NewWorker(Config{WatchDir: dir, Logger: zerolog.Nop()}, runner)
	require.NoError(t, err)

	n, err := w.ProcessNewFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, runner.seen)

	assert.FileExists(t, filepath.Join(dir, "processed", "a.pgn"))
	assert.FileExists(t, filepath.Join(dir, "processed", "b.pgn"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	n, err = w.ProcessNewFiles(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessNewFiles_RunFailureStops(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pgn", "bad")
	writeFile(t, dir, "b.pgn", "good")

	runner := &recordingRunner{failOn: "bad"}
	w, err := NewWorker(Config{WatchDir: dir, Logger: zerolog.Nop()}, runner)
	require.NoError(t, err)

	n, err := w.ProcessNewFiles(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"bad"}, runner.seen)
	assert.FileExists(t, filepath.Join(dir, "failed", "a.pgn"))
	assert.FileExists(t, filepath.Join(dir, "b.pgn"))
}

func TestProcessNewFiles_CorruptZstd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pgn.zst", "not zstd at all")
	writeFile(t, dir, "b.pgn", "good")

	runner := &recordingRunner{}
	w, err := NewWorker(Config{WatchDir: dir, Logger: zerolog.Nop()}, runner)
	require.NoError(t, err)

	// A corrupt frame surfaces when the runner reads, which stops the worker.
	_, err = w.ProcessNewFiles(context.Background())
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "failed", "a.pgn.zst"))
}

func TestWorker_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "games.pgn", "[Event \"x\"]\n\n1. e4 e5 1-0\n\n[Event \"y\"]\n\n1. e4 c5 0-1\n")

	gw := memstore.New()
	driver := pipeline.NewDriver(pipeline.Config{Workers: 2, Logger: zerolog.Nop()},
		replay.New[rules.Position](rules.NewPGN()), gw)
	w, err := NewWorker(Config{WatchDir: dir, Logger: zerolog.Nop()}, driver)
	require.NoError(t, err)

	n, err := w.ProcessNewFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sum, err := gw.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.Positions)
	assert.Equal(t, int64(3), sum.Transitions)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &recordingRunner{}
	w, err := NewWorker(Config{WatchDir: t.TempDir(), Logger: zerolog.Nop()}, runner)
	require.NoError(t, err)

	err = w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runner.recover)
}

func TestProcessNewFiles_FlushFailureLeavesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pgn", "bad")

	runner := &recordingRunner{failOn: "bad", failWith: fmt.Errorf("%w: positions: timeout", store.ErrFetch)}
	w, err := NewWorker(Config{WatchDir: dir, Logger: zerolog.Nop()}, runner)
	require.NoError(t, err)

	_, err = w.ProcessNewFiles(context.Background())
	require.ErrorIs(t, err, store.ErrFetch)
	assert.FileExists(t, filepath.Join(dir, "a.pgn"))
	assert.NoFileExists(t, filepath.Join(dir, "failed", "a.pgn"))
}

func TestProcessNewFiles_ResumedFileFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pgn", "first")
	writeFile(t, dir, "b.pgn", "interrupted")

	runner := &recordingRunner{resuming: "b.pgn:11"}
	w, err := NewWorker(Config{WatchDir: dir, Logger: zerolog.Nop()}, runner)
	require.NoError(t, err)

	n, err := w.ProcessNewFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"interrupted", "first"}, runner.seen)
}

// secondFetchFails fails the second position fetch.
type secondFetchFails struct {
	*memstore.Store
	fetches int
}

func (g *secondFetchFails) FetchPositions(ctx context.Context, ids []string) ([]graph.PositionRecord, error) {
	g.fetches++
	if g.fetches == 2 {
		return nil, errors.New("connection reset")
	}
	return g.Store.FetchPositions(ctx, ids)
}

func TestWorker_ResumesAfterRestart(t *testing.T) {
	dir := t.TempDir()
	var games strings.Builder
	for i := 0; i < 8; i++ {
		games.WriteString("[Event \"x\"]\n\n1. e4 e5 1-0\n\n")
	}
	writeFile(t, dir, "games.pgn", games.String())

	mem := memstore.New()
	ckpt := checkpoint.New(t.TempDir())
	cfg := pipeline.Config{FlushEvery: 2, Workers: 1, Logger: zerolog.Nop(), Checkpoint: ckpt}
	rep := replay.New[rules.Position](rules.NewPGN())

	w, err := NewWorker(Config{WatchDir: dir, Logger: zerolog.Nop()},
		pipeline.NewDriver(cfg, rep, &secondFetchFails{Store: mem}))
	require.NoError(t, err)
	_, err = w.ProcessNewFiles(context.Background())
	require.ErrorIs(t, err, store.ErrFetch)

	// A file that sorts first arrives while the worker is down.
	writeFile(t, dir, "a.pgn", "[Event \"y\"]\n\n1. d4 d5 0-1\n")

	driver := pipeline.NewDriver(cfg, rep, mem)
	found, err := driver.Recover(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	w, err = NewWorker(Config{WatchDir: dir, Logger: zerolog.Nop()}, driver)
	require.NoError(t, err)
	n, err := w.ProcessNewFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	start, err := mem.GetPosition(context.Background(), startID)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), start.Wins)
	assert.Equal(t, uint64(1), start.Losses)
}
