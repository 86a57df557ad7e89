// Package storetest holds the behavioral checks every store backend must
// pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/store"
)

// Run exercises a backend. open must return an empty store; Run closes it.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("FetchMissing", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		pos, err := s.FetchPositions(ctx, []string{"nope"})
		require.NoError(t, err)
		assert.Empty(t, pos)

		tr, err := s.FetchTransitions(ctx, []graph.TransitionKey{{From: "a", To: "b"}})
		require.NoError(t, err)
		assert.Empty(t, tr)

		pos, err = s.FetchPositions(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, pos)
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		first := graph.PositionRecord{ID: "p1", Wins: 1}
		first.RecomputeRates()
		require.NoError(t, s.UpsertPositions(ctx, []graph.PositionRecord{first}))

		second := graph.PositionRecord{ID: "p1", Wins: 2, Draws: 2}
		second.RecomputeRates()
		require.NoError(t, s.UpsertPositions(ctx, []graph.PositionRecord{second}))

		got, err := s.FetchPositions(ctx, []string{"p1", "p2"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, second, got[0])

		one, err := s.GetPosition(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, second, one)

		_, err = s.GetPosition(ctx, "p2")
		assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("Transitions", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		rows := []graph.TransitionRecord{
			{Key: graph.TransitionKey{From: "a", To: "b"}, Plays: 3, MoveUCI: "e2e4"},
			{Key: graph.TransitionKey{From: "a", To: "c"}, Plays: 7, MoveUCI: "d2d4"},
			{Key: graph.TransitionKey{From: "b", To: "c"}, Plays: 1},
		}
		require.NoError(t, s.UpsertTransitions(ctx, rows))

		rows[0].Plays = 5
		require.NoError(t, s.UpsertTransitions(ctx, rows[:1]))

		got, err := s.FetchTransitions(ctx, []graph.TransitionKey{rows[0].Key, {From: "z", To: "z"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, rows[0], got[0])

		from, err := s.TransitionsFrom(ctx, "a", 0)
		require.NoError(t, err)
		require.Len(t, from, 2)
		assert.Equal(t, "d2d4", from[0].MoveUCI)
		assert.Equal(t, uint64(5), from[1].Plays)

		limited, err := s.TransitionsFrom(ctx, "a", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("ManyKeys", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		var rows []graph.PositionRecord
		var ids []string
		for i := 0; i < 1200; i++ {
			id := fmt.Sprintf("pos-%04d", i)
			rows = append(rows, graph.PositionRecord{ID: id, Losses: 1, LossRate: 1})
			ids = append(ids, id)
		}
		require.NoError(t, s.UpsertPositions(ctx, rows))

		got, err := s.FetchPositions(ctx, ids)
		require.NoError(t, err)
		assert.Len(t, got, len(rows))

		sum, err := s.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(len(rows)), sum.Positions)
		assert.Equal(t, int64(0), sum.Transitions)

		var seen int
		var prev string
		require.NoError(t, s.EachPosition(ctx, func(r graph.PositionRecord) bool {
			assert.Less(t, prev, r.ID)
			prev = r.ID
			seen++
			return seen < 10
		}))
		assert.Equal(t, 10, seen)
	})
}
