package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/freeeve/gamestats/internal/graph"
)

// ErrNotFound is returned when a key is not found in the store.
var ErrNotFound = errors.New("not found")

// ErrCorrupt is returned when a stored row contradicts itself.
var ErrCorrupt = errors.New("corrupt row")

// Flush failure classes. Reconciler errors wrap exactly one of these.
var (
	ErrFetch  = errors.New("gateway fetch failed")
	ErrUpsert = errors.New("gateway upsert failed")
)

// Gateway is the persistence surface the aggregation pipeline writes
// through. Fetches return rows only for keys that exist; upserts replace all
// non-key columns of existing rows with the submitted values.
type Gateway interface {
	FetchPositions(ctx context.Context, ids []string) ([]graph.PositionRecord, error)
	FetchTransitions(ctx context.Context, keys []graph.TransitionKey) ([]graph.TransitionRecord, error)
	UpsertPositions(ctx context.Context, rows []graph.PositionRecord) error
	UpsertTransitions(ctx context.Context, rows []graph.TransitionRecord) error
	Close() error
}

// Summary holds table row counts.
type Summary struct {
	Positions   int64 `json:"positions"`
	Transitions int64 `json:"transitions"`
}

// Reader is the read side used by the stats API and exports.
type Reader interface {
	GetPosition(ctx context.Context, id string) (graph.PositionRecord, error)
	// TransitionsFrom returns the transitions leaving id, most played first.
	// limit <= 0 means no limit.
	TransitionsFrom(ctx context.Context, id string, limit int) ([]graph.TransitionRecord, error)
	// EachPosition calls fn for every position in id order until fn returns
	// false.
	EachPosition(ctx context.Context, fn func(graph.PositionRecord) bool) error
	Summary(ctx context.Context) (Summary, error)
}

// Store is a Gateway with a read side.
type Store interface {
	Gateway
	Reader
}

// Schema is the portable table layout shared by the SQL backends.
const Schema = `
CREATE TABLE IF NOT EXISTS position_records (
    position_id TEXT PRIMARY KEY,
    win_count   BIGINT NOT NULL DEFAULT 0,
    loss_count  BIGINT NOT NULL DEFAULT 0,
    draw_count  BIGINT NOT NULL DEFAULT 0,
    win_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
    loss_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
    draw_rate   DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transition_records (
    transition_key   TEXT PRIMARY KEY,
    from_position_id TEXT NOT NULL,
    to_position_id   TEXT NOT NULL,
    play_count       BIGINT NOT NULL DEFAULT 0,
    move_uci         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transition_from ON transition_records(from_position_id, play_count DESC);
`

// Chunk splits keys into slices of at most n elements.
func Chunk[T any](keys []T, n int) [][]T {
	if n <= 0 {
		n = len(keys)
	}
	var out [][]T
	for len(keys) > n {
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

// TransitionKeyStrings renders keys in their persisted string form.
func TransitionKeyStrings(keys []graph.TransitionKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// DecodeTransitionKey parses a persisted transition key and checks it against
// the row's from and to columns.
func DecodeTransitionKey(raw, from, to string) (graph.TransitionKey, error) {
	key, err := graph.ParseTransitionKey(raw)
	if err != nil {
		return graph.TransitionKey{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if key.From != from || key.To != to {
		return graph.TransitionKey{}, fmt.Errorf("%w: transition key %q does not match %q -> %q", ErrCorrupt, raw, from, to)
	}
	return key, nil
}
