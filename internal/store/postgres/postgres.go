// Package postgres is the server store backend, built on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/store"
)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

const upsertPosition = `
INSERT INTO position_records
	(position_id, win_count, loss_count, draw_count, win_rate, loss_rate, draw_rate)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (position_id) DO UPDATE SET
	win_count  = EXCLUDED.win_count,
	loss_count = EXCLUDED.loss_count,
	draw_count = EXCLUDED.draw_count,
	win_rate   = EXCLUDED.win_rate,
	loss_rate  = EXCLUDED.loss_rate,
	draw_rate  = EXCLUDED.draw_rate`

const upsertTransition = `
INSERT INTO transition_records
	(transition_key, from_position_id, to_position_id, play_count, move_uci)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (transition_key) DO UPDATE SET
	from_position_id = EXCLUDED.from_position_id,
	to_position_id   = EXCLUDED.to_position_id,
	play_count       = EXCLUDED.play_count,
	move_uci         = EXCLUDED.move_uci`

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.Open: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, store.Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.Open: apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) FetchPositions(ctx context.Context, ids []string) ([]graph.PositionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT position_id, win_count, loss_count, draw_count, win_rate, loss_rate, draw_rate
		FROM position_records WHERE position_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres.FetchPositions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanPosition)
	if err != nil {
		return nil, fmt.Errorf("postgres.FetchPositions: %w", err)
	}
	return out, nil
}

func (s *Store) FetchTransitions(ctx context.Context, keys []graph.TransitionKey) ([]graph.TransitionRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT transition_key, from_position_id, to_position_id, play_count, move_uci
		FROM transition_records WHERE transition_key = ANY($1)`, store.TransitionKeyStrings(keys))
	if err != nil {
		return nil, fmt.Errorf("postgres.FetchTransitions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTransition)
	if err != nil {
		return nil, fmt.Errorf("postgres.FetchTransitions: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertPositions(ctx context.Context, rows []graph.PositionRecord) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertPosition, r.ID, int64(r.Wins), int64(r.Losses), int64(r.Draws),
			r.WinRate, r.LossRate, r.DrawRate)
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("postgres.UpsertPositions: %w", err)
	}
	return nil
}

func (s *Store) UpsertTransitions(ctx context.Context, rows []graph.TransitionRecord) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertTransition, r.Key.String(), r.Key.From, r.Key.To, int64(r.Plays), r.MoveUCI)
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("postgres.UpsertTransitions: %w", err)
	}
	return nil
}

// sendBatch runs batch inside a transaction so a batch lands whole or not at
// all.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) GetPosition(ctx context.Context, id string) (graph.PositionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT position_id, win_count, loss_count, draw_count, win_rate, loss_rate, draw_rate
		FROM position_records WHERE position_id = $1`, id)
	if err != nil {
		return graph.PositionRecord{}, fmt.Errorf("postgres.GetPosition: %w", err)
	}
	rec, err := pgx.CollectOneRow(rows, scanPosition)
	if errors.Is(err, pgx.ErrNoRows) {
		return graph.PositionRecord{}, store.ErrNotFound
	}
	if err != nil {
		return graph.PositionRecord{}, fmt.Errorf("postgres.GetPosition: %w", err)
	}
	return rec, nil
}

func (s *Store) TransitionsFrom(ctx context.Context, id string, limit int) ([]graph.TransitionRecord, error) {
	var lim any // NULL means no limit
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT transition_key, from_position_id, to_position_id, play_count, move_uci
		FROM transition_records WHERE from_position_id = $1
		ORDER BY play_count DESC, transition_key
		LIMIT $2`, id, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres.TransitionsFrom: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTransition)
	if err != nil {
		return nil, fmt.Errorf("postgres.TransitionsFrom: %w", err)
	}
	return out, nil
}

func (s *Store) EachPosition(ctx context.Context, fn func(graph.PositionRecord) bool) error {
	rows, err := s.pool.Query(ctx, `
		SELECT position_id, win_count, loss_count, draw_count, win_rate, loss_rate, draw_rate
		FROM position_records ORDER BY position_id`)
	if err != nil {
		return fmt.Errorf("postgres.EachPosition: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return fmt.Errorf("postgres.EachPosition: scan: %w", err)
		}
		if !fn(rec) {
			return nil
		}
	}
	return rows.Err()
}

func (s *Store) Summary(ctx context.Context) (store.Summary, error) {
	var sum store.Summary
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM position_records),
		       (SELECT COUNT(*) FROM transition_records)`).Scan(&sum.Positions, &sum.Transitions)
	if err != nil {
		return store.Summary{}, fmt.Errorf("postgres.Summary: %w", err)
	}
	return sum, nil
}

func scanPosition(row pgx.CollectableRow) (graph.PositionRecord, error) {
	var (
		rec                 graph.PositionRecord
		wins, losses, draws int64
	)
	if err := row.Scan(&rec.ID, &wins, &losses, &draws, &rec.WinRate, &rec.LossRate, &rec.DrawRate); err != nil {
		return graph.PositionRecord{}, err
	}
	rec.Wins, rec.Losses, rec.Draws = uint64(wins), uint64(losses), uint64(draws)
	return rec, nil
}

func scanTransition(row pgx.CollectableRow) (graph.TransitionRecord, error) {
	var (
		rec           graph.TransitionRecord
		raw, from, to string
		plays         int64
	)
	if err := row.Scan(&raw, &from, &to, &plays, &rec.MoveUCI); err != nil {
		return graph.TransitionRecord{}, err
	}
	key, err := store.DecodeTransitionKey(raw, from, to)
	if err != nil {
		return graph.TransitionRecord{}, err
	}
	rec.Key = key
	rec.Plays = uint64(plays)
	return rec, nil
}
