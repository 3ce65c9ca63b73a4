package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(context.Background(), dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	_, err = store.StoreDocument(ctx, testDoc("persist"), []string{"a"}, [][]float32{north})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	has, err := store.HasHash(ctx, "persist")
	require.NoError(t, err)
	assert.True(t, has)

	results, err := store.Search(ctx, north, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return setupTestStore(t)
	})
}

func TestSQLiteUniqueConstraint(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.InsertDocument(ctx, testDoc("raw"))
	require.NoError(t, err)

	// Bypass the pre-check to hit the schema constraint directly.
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO documents (filename, file_path, total_pages, file_size, file_hash)
		VALUES ('x.pdf', '/x.pdf', 1, 1, 'raw')
	`)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}

func TestSerializeEmbedding(t *testing.T) {
	embedding := []float32{1.0, 2.0, 3.0, 4.0}
	serialized := serializeEmbedding(embedding)

	// Each float32 is 4 bytes
	assert.Len(t, serialized, 16)

	// 1.0f = 0x3f800000, little-endian
	assert.Equal(t, byte(0x00), serialized[0])
	assert.Equal(t, byte(0x00), serialized[1])
	assert.Equal(t, byte(0x80), serialized[2])
	assert.Equal(t, byte(0x3f), serialized[3])
}

// Helper function to create a test store
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}
