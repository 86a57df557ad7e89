package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freeeve/gamestats/internal/store"
	"github.com/freeeve/gamestats/internal/store/storetest"
)

// Set GAMESTATS_TEST_POSTGRES_DSN to a scratch database to run these.
func TestStore(t *testing.T) {
	dsn := os.Getenv("GAMESTATS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GAMESTATS_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := Open(ctx, dsn)
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, `TRUNCATE position_records, transition_records`)
		require.NoError(t, err)
		return s
	})
}
