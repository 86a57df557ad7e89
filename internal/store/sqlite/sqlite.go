// Package sqlite is the embedded store backend, built on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/store"
	_ "modernc.org/sqlite"
)

// fetchChunk bounds the number of bind parameters per IN clause.
const fetchChunk = 500

// Store implements store.Store on a single SQLite file.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite.Open: path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(store.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FetchPositions returns the stored rows for ids that exist.
func (s *Store) FetchPositions(ctx context.Context, ids []string) ([]graph.PositionRecord, error) {
	var out []graph.PositionRecord
	for _, chunk := range store.Chunk(ids, fetchChunk) {
		q := `SELECT position_id, win_count, loss_count, draw_count, win_rate, loss_rate, draw_rate
			FROM position_records WHERE position_id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, q, anySlice(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("sqlite.FetchPositions: %w", err)
		}
		for rows.Next() {
			rec, err := scanPosition(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite.FetchPositions: scan: %w", err)
			}
			out = append(out, rec)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("sqlite.FetchPositions: %w", err)
		}
	}
	return out, nil
}

// FetchTransitions returns the stored rows for keys that exist.
func (s *Store) FetchTransitions(ctx context.Context, keys []graph.TransitionKey) ([]graph.TransitionRecord, error) {
	var out []graph.TransitionRecord
	for _, chunk := range store.Chunk(store.TransitionKeyStrings(keys), fetchChunk) {
		q := `SELECT transition_key, from_position_id, to_position_id, play_count, move_uci
			FROM transition_records WHERE transition_key IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, q, anySlice(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("sqlite.FetchTransitions: %w", err)
		}
		for rows.Next() {
			rec, err := scanTransition(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite.FetchTransitions: scan: %w", err)
			}
			out = append(out, rec)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("sqlite.FetchTransitions: %w", err)
		}
	}
	return out, nil
}

// UpsertPositions writes rows in one transaction.
func (s *Store) UpsertPositions(ctx context.Context, rows []graph.PositionRecord) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.UpsertPositions: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO position_records
			(position_id, win_count, loss_count, draw_count, win_rate, loss_rate, draw_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id) DO UPDATE SET
			win_count  = excluded.win_count,
			loss_count = excluded.loss_count,
			draw_count = excluded.draw_count,
			win_rate   = excluded.win_rate,
			loss_rate  = excluded.loss_rate,
			draw_rate  = excluded.draw_rate
	`)
	if err != nil {
		return fmt.Errorf("sqlite.UpsertPositions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.ID, int64(r.Wins), int64(r.Losses), int64(r.Draws),
			r.WinRate, r.LossRate, r.DrawRate,
		); err != nil {
			return fmt.Errorf("sqlite.UpsertPositions: upsert %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.UpsertPositions: commit: %w", err)
	}
	return nil
}

// UpsertTransitions writes rows in one transaction.
func (s *Store) UpsertTransitions(ctx context.Context, rows []graph.TransitionRecord) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.UpsertTransitions: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transition_records
			(transition_key, from_position_id, to_position_id, play_count, move_uci)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(transition_key) DO UPDATE SET
			from_position_id = excluded.from_position_id,
			to_position_id   = excluded.to_position_id,
			play_count       = excluded.play_count,
			move_uci         = excluded.move_uci
	`)
	if err != nil {
		return fmt.Errorf("sqlite.UpsertTransitions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Key.String(), r.Key.From, r.Key.To, int64(r.Plays), r.MoveUCI,
		); err != nil {
			return fmt.Errorf("sqlite.UpsertTransitions: upsert %s: %w", r.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.UpsertTransitions: commit: %w", err)
	}
	return nil
}

// GetPosition returns the row for id or store.ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, id string) (graph.PositionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT position_id, win_count, loss_count, draw_count, win_rate, loss_rate, draw_rate
		FROM position_records WHERE position_id = ?`, id)
	rec, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.PositionRecord{}, store.ErrNotFound
	}
	if err != nil {
		return graph.PositionRecord{}, fmt.Errorf("sqlite.GetPosition: %w", err)
	}
	return rec, nil
}

// TransitionsFrom returns transitions leaving id, most played first.
func (s *Store) TransitionsFrom(ctx context.Context, id string, limit int) ([]graph.TransitionRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT transition_key, from_position_id, to_position_id, play_count, move_uci
		FROM transition_records WHERE from_position_id = ?
		ORDER BY play_count DESC, transition_key
		LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.TransitionsFrom: %w", err)
	}
	defer rows.Close()

	var out []graph.TransitionRecord
	for rows.Next() {
		rec, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite.TransitionsFrom: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EachPosition streams every position in id order.
func (s *Store) EachPosition(ctx context.Context, fn func(graph.PositionRecord) bool) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, win_count, loss_count, draw_count, win_rate, loss_rate, draw_rate
		FROM position_records ORDER BY position_id`)
	if err != nil {
		return fmt.Errorf("sqlite.EachPosition: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return fmt.Errorf("sqlite.EachPosition: scan: %w", err)
		}
		if !fn(rec) {
			return nil
		}
	}
	return rows.Err()
}

// Summary counts rows in both tables.
func (s *Store) Summary(ctx context.Context) (store.Summary, error) {
	var sum store.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM position_records),
		       (SELECT COUNT(*) FROM transition_records)`).Scan(&sum.Positions, &sum.Transitions)
	if err != nil {
		return store.Summary{}, fmt.Errorf("sqlite.Summary: %w", err)
	}
	return sum, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(sc scanner) (graph.PositionRecord, error) {
	var (
		rec                 graph.PositionRecord
		wins, losses, draws int64
	)
	if err := sc.Scan(&rec.ID, &wins, &losses, &draws, &rec.WinRate, &rec.LossRate, &rec.DrawRate); err != nil {
		return graph.PositionRecord{}, err
	}
	rec.Wins, rec.Losses, rec.Draws = uint64(wins), uint64(losses), uint64(draws)
	return rec, nil
}

func scanTransition(sc scanner) (graph.TransitionRecord, error) {
	var (
		rec           graph.TransitionRecord
		raw, from, to string
		plays         int64
	)
	if err := sc.Scan(&raw, &from, &to, &plays, &rec.MoveUCI); err != nil {
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

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func anySlice(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
