// Package reconcile merges an interval's deltas into the persisted
// statistics: fetch what exists, add, write back.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/gamestats/internal/aggregate"
	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/store"
)

// State is a step of a flush.
type State int

const (
	StatePending State = iota
	StateFetching
	StateMerging
	StateUpsertingPositions
	StateUpsertingTransitions
	StateCommitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StateUpsertingPositions:
		return "upserting_positions"
	case StateUpsertingTransitions:
		return "upserting_transitions"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FlushError reports the step a flush failed in. Err wraps store.ErrFetch or
// store.ErrUpsert.
type FlushError struct {
	State State
	Err   error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush failed while %s: %v", e.State, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// Result describes a finished flush.
type Result struct {
	State       State
	Positions   int
	Transitions int
	// Steps holds how long each step took.
	Steps    map[State]time.Duration
	Duration time.Duration
}

// Reconciler flushes accumulators through a gateway. Flushes must not run
// concurrently against the same gateway.
type Reconciler struct {
	gw  store.Gateway
	log zerolog.Logger
}

// New returns a Reconciler writing through gw.
func New(gw store.Gateway, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		gw:  gw,
		log: log.With().Str("component", "reconcile").Logger(),
	}
}

// Flush merges acc into the store. acc is only read; on success the caller
// discards it, on failure it still holds the full interval.
//
// Position rows are committed before transition rows. A failure in
// StateUpsertingTransitions therefore leaves the position increments
// persisted.
func (r *Reconciler) Flush(ctx context.Context, acc *aggregate.Accumulator) (Result, error) {
	start := time.Now()
	res := Result{State: StatePending, Steps: make(map[State]time.Duration, 4)}
	if acc == nil || acc.Empty() {
		res.State = StateCommitted
		return res, nil
	}

	stepStart := start
	enter := func(s State) {
		now := time.Now()
		res.Steps[res.State] = now.Sub(stepStart)
		stepStart = now
		r.log.Debug().Stringer("from", res.State).Stringer("to", s).Msg("flush step")
		res.State = s
	}
	fail := func(err error) (Result, error) {
		failed := res.State
		enter(StateFailed)
		res.Duration = time.Since(start)
		return res, &FlushError{State: failed, Err: err}
	}

	ids := acc.PositionIDs()
	keys := acc.TransitionKeys()

	enter(StateFetching)
	storedPos, err := r.gw.FetchPositions(ctx, ids)
	if err != nil {
		return fail(fmt.Errorf("%w: positions: %w", store.ErrFetch, err))
	}
	storedTr, err := r.gw.FetchTransitions(ctx, keys)
	if err != nil {
		return fail(fmt.Errorf("%w: transitions: %w", store.ErrFetch, err))
	}

	enter(StateMerging)
	positions := mergePositions(acc, ids, storedPos)
	transitions := mergeTransitions(acc, keys, storedTr)

	enter(StateUpsertingPositions)
	if err := r.gw.UpsertPositions(ctx, positions); err != nil {
		return fail(fmt.Errorf("%w: positions: %w", store.ErrUpsert, err))
	}

	enter(StateUpsertingTransitions)
	if err := r.gw.UpsertTransitions(ctx, transitions); err != nil {
		return fail(fmt.Errorf("%w: transitions: %w", store.ErrUpsert, err))
	}

	enter(StateCommitted)
	res.Positions = len(positions)
	res.Transitions = len(transitions)
	res.Duration = time.Since(start)

	r.log.Info().
		Int("games", acc.Games()).
		Int("positions", res.Positions).
		Int("transitions", res.Transitions).
		Dur("took", res.Duration).
		Msg("flush committed")
	return res, nil
}

// mergePositions adds each delta to its stored row, or takes the delta as is
// when nothing is stored yet. Rates come from the merged counts.
func mergePositions(acc *aggregate.Accumulator, ids []string, stored []graph.PositionRecord) []graph.PositionRecord {
	byID := make(map[string]graph.PositionRecord, len(stored))
	for _, rec := range stored {
		byID[rec.ID] = rec
	}
	out := make([]graph.PositionRecord, 0, len(ids))
	for _, id := range ids {
		delta, _ := acc.Position(id)
		base := byID[id]
		base.ID = id
		out = append(out, base.Merge(delta))
	}
	return out
}

func mergeTransitions(acc *aggregate.Accumulator, keys []graph.TransitionKey, stored []graph.TransitionRecord) []graph.TransitionRecord {
	byKey := make(map[graph.TransitionKey]graph.TransitionRecord, len(stored))
	for _, rec := range stored {
		byKey[rec.Key] = rec
	}
	out := make([]graph.TransitionRecord, 0, len(keys))
	for _, k := range keys {
		delta, _ := acc.Transition(k)
		base := byKey[k]
		base.Key = k
		out = append(out, base.Merge(delta))
	}
	return out
}
