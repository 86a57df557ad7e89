package backends

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/gamestats/internal/store/memstore"
	"github.com/freeeve/gamestats/internal/store/sqlite"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		dsn        string
		wantKind   Kind
		wantTarget string
	}{
		{"postgres://u:p@localhost/db", KindPostgres, "postgres://u:p@localhost/db"},
		{"postgresql://localhost/db", KindPostgres, "postgresql://localhost/db"},
		{"memory:", KindMemory, ""},
		{"./data/gamestats.db", KindSQLite, "./data/gamestats.db"},
		{"sqlite:///tmp/x.db", KindSQLite, "/tmp/x.db"},
		{"file:x.db", KindSQLite, "x.db"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			kind, target := Detect(tt.dsn)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantTarget, target)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "")
	require.Error(t, err)

	s, err := Open(ctx, "memory:")
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, s)

	s, err = Open(ctx, filepath.Join(t.TempDir(), "nested", "dir", "stats.db"))
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sqlite.Store{}, s)
}
