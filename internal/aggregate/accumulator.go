// Package aggregate folds replayed games into per-interval position and
// transition deltas.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/freeeve/gamestats/internal/graph"
)

// ErrEmptySequence is returned when a game has no positions.
var ErrEmptySequence = errors.New("empty position sequence")

// Accumulator holds the increments observed since the last flush. Rates on
// its records are interval-local; merged rates are computed at flush time.
//
// An Accumulator is not safe for concurrent use. The pipeline feeds it from a
// single goroutine.
type Accumulator struct {
	positions   map[string]*graph.PositionRecord
	transitions map[graph.TransitionKey]*graph.TransitionRecord
	games       int
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{
		positions:   make(map[string]*graph.PositionRecord),
		transitions: make(map[graph.TransitionKey]*graph.TransitionRecord),
	}
}

// AddGame folds one game into the accumulator. positions is the replayed
// sequence (initial position first); moves, when given, has one entry per
// consecutive pair and labels the transitions.
func (a *Accumulator) AddGame(positions []string, moves []graph.Move, outcome graph.Outcome) error {
	if len(positions) == 0 {
		return ErrEmptySequence
	}
	if !outcome.Valid() {
		return fmt.Errorf("add game: invalid outcome %s", outcome)
	}
	if moves != nil && len(moves) != len(positions)-1 {
		return fmt.Errorf("add game: %d moves for %d positions", len(moves), len(positions))
	}

	for _, id := range positions {
		rec, ok := a.positions[id]
		if !ok {
			rec = &graph.PositionRecord{ID: id}
			a.positions[id] = rec
		}
		rec.Add(outcome)
	}

	for i := 0; i+1 < len(positions); i++ {
		key := graph.TransitionKey{From: positions[i], To: positions[i+1]}
		rec, ok := a.transitions[key]
		if !ok {
			rec = &graph.TransitionRecord{Key: key}
			a.transitions[key] = rec
		}
		rec.Plays++
		if moves != nil && !moves[i].IsZero() {
			rec.MoveUCI = moves[i].UCI()
		}
	}

	a.games++
	return nil
}

// Games returns the number of games folded in since creation.
func (a *Accumulator) Games() int { return a.games }

// Len returns the number of distinct positions plus transitions held.
func (a *Accumulator) Len() int { return len(a.positions) + len(a.transitions) }

// Empty reports whether nothing has been accumulated.
func (a *Accumulator) Empty() bool { return a.Len() == 0 }

// PositionCount returns the number of distinct positions held.
func (a *Accumulator) PositionCount() int { return len(a.positions) }

// TransitionCount returns the number of distinct transitions held.
func (a *Accumulator) TransitionCount() int { return len(a.transitions) }

// Position returns a copy of the delta for id.
func (a *Accumulator) Position(id string) (graph.PositionRecord, bool) {
	rec, ok := a.positions[id]
	if !ok {
		return graph.PositionRecord{}, false
	}
	return *rec, true
}

// Transition returns a copy of the delta for key.
func (a *Accumulator) Transition(key graph.TransitionKey) (graph.TransitionRecord, bool) {
	rec, ok := a.transitions[key]
	if !ok {
		return graph.TransitionRecord{}, false
	}
	return *rec, true
}

// PositionIDs returns the distinct position ids, sorted.
func (a *Accumulator) PositionIDs() []string {
	ids := make([]string, 0, len(a.positions))
	for id := range a.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TransitionKeys returns the distinct transition keys sorted by their string
// form.
func (a *Accumulator) TransitionKeys() []graph.TransitionKey {
	keys := make([]graph.TransitionKey, 0, len(a.transitions))
	for k := range a.transitions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Positions returns copies of all position deltas sorted by id.
func (a *Accumulator) Positions() []graph.PositionRecord {
	ids := a.PositionIDs()
	out := make([]graph.PositionRecord, len(ids))
	for i, id := range ids {
		out[i] = *a.positions[id]
	}
	return out
}

// Transitions returns copies of all transition deltas sorted by key.
func (a *Accumulator) Transitions() []graph.TransitionRecord {
	keys := a.TransitionKeys()
	out := make([]graph.TransitionRecord, len(keys))
	for i, k := range keys {
		out[i] = *a.transitions[k]
	}
	return out
}
