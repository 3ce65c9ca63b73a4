package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Set DOCRAG_TEST_POSTGRES_DSN to a database with pgvector available to run these.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DOCRAG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCRAG_TEST_POSTGRES_DSN not set, skipping postgres tests")
	}

	runStoreTests(t, func(t *testing.T) Store {
		t.Helper()
		ctx := context.Background()

		store, err := NewPostgresStore(ctx, PostgresOptions{DSN: dsn, MaxConns: 4})
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })

		_, err = store.pool.Exec(ctx, "TRUNCATE chunks, documents, store_info RESTART IDENTITY CASCADE")
		require.NoError(t, err)

		return store
	})
}
