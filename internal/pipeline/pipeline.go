// Package pipeline drives a transcript stream through replay, aggregation and
// periodic flushes to the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/gamestats/internal/aggregate"
	"github.com/freeeve/gamestats/internal/checkpoint"
	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/metrics"
	"github.com/freeeve/gamestats/internal/reconcile"
	"github.com/freeeve/gamestats/internal/replay"
	"github.com/freeeve/gamestats/internal/store"
	"github.com/freeeve/gamestats/internal/transcript"
)

// Skip reasons, used as Stats keys and metric labels.
const (
	ReasonOutcome        = "outcome"
	ReasonIllegalMove    = "illegal_move"
	ReasonNonProgressing = "non_progressing"
	ReasonEmpty          = "empty"
	ReasonRating         = "rating"
	// ReasonMaxGames marks valid games still in flight once MaxGames was
	// reached. They are left unaccounted so a later run can pick them up.
	ReasonMaxGames = "max_games"
)

const (
	DefaultFlushEvery    = 1000
	DefaultProgressEvery = 10 * time.Second
)

var errRatingFloor = errors.New("below rating floor")

// Replayer turns move tokens into a position sequence.
type Replayer interface {
	Replay(tokens []string) (replay.Game, error)
}

// Config tunes a Driver. Zero values pick defaults.
type Config struct {
	FlushEvery    int // games per flush
	Workers       int // replay goroutines, default runtime.NumCPU()
	RatingMin     int // 0 disables the rating filter
	MaxGames      int // 0 means unlimited
	ProgressEvery time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Pipeline
	Checkpoint    *checkpoint.Store
}

// Stats summarizes one Run. Blocks == Games + Skipped; blocks passed over
// because an earlier run already accounted for them are counted in Resumed.
type Stats struct {
	RunID              string         `json:"run_id"`
	Input              string         `json:"input,omitempty"`
	Blocks             int            `json:"blocks"`
	Resumed            int            `json:"resumed"`
	Games              int            `json:"games"`
	Skipped            int            `json:"skipped"`
	SkippedByReason    map[string]int `json:"skipped_by_reason"`
	Flushes            int            `json:"flushes"`
	PositionsWritten   int            `json:"positions_written"`
	TransitionsWritten int            `json:"transitions_written"`
	Elapsed            time.Duration  `json:"elapsed"`
}

func (s *Stats) skip(reason string) {
	s.Skipped++
	if s.SkippedByReason == nil {
		s.SkippedByReason = make(map[string]int)
	}
	s.SkippedByReason[reason]++
}

// Driver owns the pending accumulator. Run and Recover must not be called
// concurrently.
type Driver struct {
	cfg Config
	rep Replayer
	rec *reconcile.Reconciler
	log zerolog.Logger
	acc *aggregate.Accumulator

	// progress covers the committed intervals and acc for the current
	// named input. It is checkpointed with every flush.
	progress *aggregate.Progress
}

// NewDriver returns a Driver replaying with rep and flushing through gw.
func NewDriver(cfg Config, rep Replayer, gw store.Gateway) *Driver {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = DefaultFlushEvery
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	log := cfg.Logger.With().Str("component", "pipeline").Logger()
	return &Driver{
		cfg: cfg,
		rep: rep,
		rec: reconcile.New(gw, cfg.Logger),
		log: log,
		acc: aggregate.New(),
	}
}

// Pending returns a copy of the accumulator not yet committed.
func (d *Driver) Pending() aggregate.Snapshot {
	return d.acc.Snapshot()
}

// Resuming returns the input an earlier run stopped partway through, or ""
// when there is none. Running that input again skips the blocks already
// accounted for.
func (d *Driver) Resuming() string {
	if d.progress == nil {
		return ""
	}
	return d.progress.Input
}

// Recover flushes an accumulator checkpointed by an earlier run and adopts
// its resume point. It reports whether a checkpoint was found.
func (d *Driver) Recover(ctx context.Context) (bool, error) {
	snap, ok, err := d.cfg.Checkpoint.Load()
	if err != nil || !ok {
		return false, err
	}
	acc, err := aggregate.Restore(snap)
	if err != nil {
		return true, fmt.Errorf("recover: %w", err)
	}
	ev := d.log.Info().
		Str("checkpoint", d.cfg.Checkpoint.Path()).
		Int("games", acc.Games()).
		Int("positions", acc.PositionCount()).
		Int("transitions", acc.TransitionCount())
	if p := snap.Progress; p != nil {
		ev = ev.Str("input", p.Input).Int("resume_from", p.Through)
	}
	ev.Msg("recovering pending interval")

	d.acc = acc
	d.progress = snap.Progress.Clone()
	if acc.Empty() {
		return true, nil
	}
	if _, err := d.flush(ctx); err != nil {
		return true, fmt.Errorf("recover: %w", err)
	}
	return true, nil
}

type result struct {
	index   int
	game    replay.Game
	outcome graph.Outcome
	reason  string
	err     error
}

// Run aggregates every game in r, flushing every FlushEvery games and once
// at the end. Unparseable games are counted and skipped. A flush error stops
// the run and is returned; a cancelled ctx stops it with ctx.Err(). Either
// way the pending interval is left in the checkpoint.
//
// input names r for resuming. When it matches the input of a checkpointed
// run, blocks that run already accounted for are skipped. An empty input
// is never resumed.
func (d *Driver) Run(ctx context.Context, input string, r io.Reader) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString(), Input: input, SkippedByReason: make(map[string]int)}
	log := d.log.With().Str("run_id", stats.RunID).Logger()

	// The producer reads a frozen copy; the consumer goroutine owns d.progress.
	done := d.startProgress(input, log).Clone()
	log.Info().
		Str("input", input).
		Int("resume_from", resumeFrom(done)).
		Int("workers", d.cfg.Workers).
		Int("flush_every", d.cfg.FlushEvery).
		Msg("run started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	blocks := make(chan transcript.Block, d.cfg.Workers*4)
	results := make(chan result, d.cfg.Workers*4)
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopReading := func() { stopOnce.Do(func() { close(stop) }) }
	limited := false

	// Producer
	var resumed int
	g.Go(func() error {
		defer close(blocks)
		sp := transcript.NewSplitter(r)
		for b := range sp.Blocks() {
			if done.Done(b.Index) {
				resumed++
				continue
			}
			select {
			case blocks <- b:
			case <-stop:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		if err := sp.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		return nil
	})

	// Workers
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for b := range blocks {
				select {
				case results <- d.process(b):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(results)
		return nil
	})

	lastLog := time.Now()
	var flushErr error
	for res := range results {
		stats.Blocks++
		if res.err != nil {
			stats.skip(res.reason)
			d.cfg.Metrics.GameSkipped(res.reason)
			d.mark(res.index)
			log.Debug().Err(res.err).Int("block", res.index).Str("reason", res.reason).Msg("game skipped")
			continue
		}
		if d.cfg.MaxGames > 0 && stats.Games >= d.cfg.MaxGames {
			stats.skip(ReasonMaxGames)
			d.cfg.Metrics.GameSkipped(ReasonMaxGames)
			continue
		}
		if err := d.acc.AddGame(res.game.Positions, res.game.Moves, res.outcome); err != nil {
			stats.skip(ReasonEmpty)
			d.cfg.Metrics.GameSkipped(ReasonEmpty)
			d.mark(res.index)
			continue
		}
		d.mark(res.index)
		stats.Games++
		d.cfg.Metrics.GameProcessed()
		d.cfg.Metrics.Accumulator(d.acc.PositionCount(), d.acc.TransitionCount())

		if d.cfg.MaxGames > 0 && stats.Games >= d.cfg.MaxGames {
			log.Info().Int("games", stats.Games).Msg("reached max games limit")
			limited = true
			stopReading()
		}

		if d.acc.Games() >= d.cfg.FlushEvery {
			fr, err := d.flush(runCtx)
			if err != nil {
				flushErr = err
				cancel()
				break
			}
			stats.Flushes++
			stats.PositionsWritten += fr.Positions
			stats.TransitionsWritten += fr.Transitions
		}

		if time.Since(lastLog) > d.cfg.ProgressEvery {
			elapsed := time.Since(start)
			log.Info().
				Int("games", stats.Games).
				Int("skipped", stats.Skipped).
				Int("pending_positions", d.acc.PositionCount()).
				Float64("games_per_sec", float64(stats.Games)/elapsed.Seconds()).
				Msg("ingest progress")
			lastLog = time.Now()
		}
	}
	waitErr := g.Wait()
	stats.Resumed = resumed
	stats.Elapsed = time.Since(start)

	if flushErr != nil {
		log.Error().
			Err(flushErr).
			Str("checkpoint", d.cfg.Checkpoint.Path()).
			Str("input", input).
			Int("resume_from", resumeFrom(d.progress)).
			Msg("flush failed, run stopped")
		return stats, flushErr
	}
	if err := ctx.Err(); err != nil {
		d.checkpointPending(log)
		log.Warn().Int("games", stats.Games).Msg("run cancelled")
		return stats, err
	}
	if waitErr != nil {
		d.checkpointPending(log)
		return stats, waitErr
	}

	if !d.acc.Empty() {
		fr, err := d.flush(ctx)
		if err != nil {
			return stats, err
		}
		stats.Flushes++
		stats.PositionsWritten += fr.Positions
		stats.TransitionsWritten += fr.Transitions
	}
	switch {
	case limited && d.progress != nil:
		// The rest of the input was never read; keep the resume point.
		if err := d.cfg.Checkpoint.Save(aggregate.Snapshot{Progress: d.progress.Clone()}); err != nil {
			log.Warn().Err(err).Msg("save resume point")
		}
		log.Info().Str("input", input).Int("resume_from", d.progress.Through).Msg("stopped at max games, resume point kept")
	default:
		d.progress = nil
		if err := d.cfg.Checkpoint.Clear(); err != nil {
			log.Warn().Err(err).Msg("clear checkpoint")
		}
	}

	log.Info().
		Int("games", stats.Games).
		Int("resumed", stats.Resumed).
		Int("skipped", stats.Skipped).
		Int("flushes", stats.Flushes).
		Int("positions_written", stats.PositionsWritten).
		Int("transitions_written", stats.TransitionsWritten).
		Dur("elapsed", stats.Elapsed).
		Msg("run complete")
	return stats, nil
}

// process turns one block into a replayed game or a skip.
func (d *Driver) process(b transcript.Block) result {
	res := result{index: b.Index}
	if d.cfg.RatingMin > 0 {
		white := parseRating(b.Tags["WhiteElo"])
		black := parseRating(b.Tags["BlackElo"])
		if white < d.cfg.RatingMin || black < d.cfg.RatingMin {
			res.reason, res.err = ReasonRating, errRatingFloor
			return res
		}
	}

	moves, token := transcript.SplitResult(b.Movetext)
	outcome, err := transcript.ParseOutcome(token)
	if err != nil {
		res.reason, res.err = ReasonOutcome, err
		return res
	}
	game, err := d.rep.Replay(transcript.MoveTokens(moves))
	if err != nil {
		res.reason, res.err = reasonFor(err), err
		return res
	}
	res.game, res.outcome = game, outcome
	return res
}

// startProgress picks the progress record for a run of input: the
// checkpointed one when it names the same input, a fresh one otherwise.
func (d *Driver) startProgress(input string, log zerolog.Logger) *aggregate.Progress {
	prev := d.progress
	switch {
	case input == "":
		d.progress = nil
	case prev != nil && prev.Input == input:
		log.Info().Str("input", input).Int("resume_from", prev.Through).Msg("resuming input")
		return prev
	default:
		d.progress = aggregate.NewProgress(input)
	}
	if prev != nil {
		log.Warn().
			Str("input", prev.Input).
			Int("resume_from", prev.Through).
			Msg("discarding resume point of another input")
	}
	return d.progress
}

func (d *Driver) mark(index int) {
	if d.progress != nil {
		d.progress.Mark(index)
	}
}

func resumeFrom(p *aggregate.Progress) int {
	if p == nil {
		return 0
	}
	return p.Through
}

// flush checkpoints the accumulator, reconciles it and starts a fresh
// interval on success. The checkpoint then keeps only the resume point.
func (d *Driver) flush(ctx context.Context) (reconcile.Result, error) {
	snap := d.acc.Snapshot()
	snap.Progress = d.progress.Clone()
	if err := d.cfg.Checkpoint.Save(snap); err != nil {
		return reconcile.Result{}, err
	}

	res, err := d.rec.Flush(ctx, d.acc)
	d.cfg.Metrics.Flush(err == nil, res.Duration.Seconds())
	if err != nil {
		var fe *reconcile.FlushError
		if errors.As(err, &fe) && fe.State == reconcile.StateUpsertingTransitions {
			// Position rows are committed; keep only the transitions pending.
			trimmed := snap.WithoutPositions()
			if acc, rerr := aggregate.Restore(trimmed); rerr == nil {
				d.acc = acc
			}
			if cerr := d.cfg.Checkpoint.Save(trimmed); cerr != nil {
				d.log.Error().Err(cerr).Msg("rewrite checkpoint")
			}
		}
		return res, err
	}

	if d.progress != nil {
		if err := d.cfg.Checkpoint.Save(aggregate.Snapshot{Progress: d.progress.Clone()}); err != nil {
			d.log.Warn().Err(err).Msg("save resume point")
		}
	} else if err := d.cfg.Checkpoint.Clear(); err != nil {
		d.log.Warn().Err(err).Msg("clear checkpoint")
	}
	d.acc = aggregate.New()
	d.cfg.Metrics.Accumulator(0, 0)
	return res, nil
}

func (d *Driver) checkpointPending(log zerolog.Logger) {
	if d.acc.Empty() && d.progress == nil {
		return
	}
	snap := d.acc.Snapshot()
	snap.Progress = d.progress.Clone()
	if err := d.cfg.Checkpoint.Save(snap); err != nil {
		log.Error().Err(err).Msg("checkpoint pending interval")
		return
	}
	log.Info().
		Str("checkpoint", d.cfg.Checkpoint.Path()).
		Int("games", d.acc.Games()).
		Int("resume_from", resumeFrom(d.progress)).
		Msg("pending interval checkpointed")
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, transcript.ErrUnknownOutcome):
		return ReasonOutcome
	case errors.Is(err, replay.ErrIllegalMove):
		return ReasonIllegalMove
	case errors.Is(err, replay.ErrNonProgressing):
		return ReasonNonProgressing
	case errors.Is(err, replay.ErrEmptyGame):
		return ReasonEmpty
	case errors.Is(err, errRatingFloor):
		return ReasonRating
	}
	return ReasonIllegalMove
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}
