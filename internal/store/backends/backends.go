// Package backends picks a store implementation from a DSN.
package backends

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/freeeve/gamestats/internal/store"
	"github.com/freeeve/gamestats/internal/store/memstore"
	"github.com/freeeve/gamestats/internal/store/postgres"
	"github.com/freeeve/gamestats/internal/store/sqlite"
)

// Kind names a backend.
type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
	KindMemory   Kind = "memory"
)

// Detect returns the backend a DSN selects: postgres:// and postgresql://
// URLs go to Postgres, "memory:" to the in-process store, anything else is a
// SQLite file path (an optional sqlite:// or file: prefix is stripped).
func Detect(dsn string) (Kind, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return KindPostgres, dsn
	case dsn == "memory:" || strings.HasPrefix(dsn, "memory:"):
		return KindMemory, ""
	case strings.HasPrefix(dsn, "sqlite://"):
		return KindSQLite, strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "file:"):
		return KindSQLite, strings.TrimPrefix(dsn, "file:")
	}
	return KindSQLite, dsn
}

// Open opens the store dsn names. SQLite parent directories are created.
func Open(ctx context.Context, dsn string) (store.Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("backends.Open: empty dsn")
	}
	kind, target := Detect(dsn)
	switch kind {
	case KindPostgres:
		s, err := postgres.Open(ctx, target)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindMemory:
		return memstore.New(), nil
	default:
		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("backends.Open: create %s: %w", dir, err)
			}
		}
		s, err := sqlite.Open(target)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
