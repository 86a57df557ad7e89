// Package memstore is an in-process store backend. It backs tests and the
// "memory:" DSN.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/store"
)

// Store keeps rows in maps guarded by a mutex.
type Store struct {
	mu          sync.RWMutex
	positions   map[string]graph.PositionRecord
	transitions map[graph.TransitionKey]graph.TransitionRecord
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		positions:   make(map[string]graph.PositionRecord),
		transitions: make(map[graph.TransitionKey]graph.TransitionRecord),
	}
}

func (s *Store) FetchPositions(ctx context.Context, ids []string) ([]graph.PositionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.PositionRecord
	for _, id := range ids {
		if rec, ok := s.positions[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) FetchTransitions(ctx context.Context, keys []graph.TransitionKey) ([]graph.TransitionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.TransitionRecord
	for _, k := range keys {
		if rec, ok := s.transitions[k]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) UpsertPositions(ctx context.Context, rows []graph.PositionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.positions[r.ID] = r
	}
	return nil
}

func (s *Store) UpsertTransitions(ctx context.Context, rows []graph.TransitionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.transitions[r.Key] = r
	}
	return nil
}

func (s *Store) GetPosition(ctx context.Context, id string) (graph.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.positions[id]
	if !ok {
		return graph.PositionRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) TransitionsFrom(ctx context.Context, id string, limit int) ([]graph.TransitionRecord, error) {
	s.mu.RLock()
	var out []graph.TransitionRecord
	for k, rec := range s.transitions {
		if k.From == id {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) EachPosition(ctx context.Context, fn func(graph.PositionRecord) bool) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.positions))
	for id := range s.positions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.RLock()
		rec, ok := s.positions[id]
		s.mu.RUnlock()
		if ok && !fn(rec) {
			return nil
		}
	}
	return nil
}

func (s *Store) Summary(ctx context.Context) (store.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Summary{
		Positions:   int64(len(s.positions)),
		Transitions: int64(len(s.transitions)),
	}, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
