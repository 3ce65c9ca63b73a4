package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const storeInfoTable = `
CREATE TABLE IF NOT EXISTS store_info (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	embedding_provider TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	embedding_dimensions INTEGER NOT NULL,
	created_at TEXT DEFAULT (datetime('now'))
);
`

const documentsTable = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	total_pages INTEGER NOT NULL CHECK (total_pages > 0),
	file_size INTEGER NOT NULL CHECK (file_size > 0),
	file_hash TEXT NOT NULL UNIQUE,
	created_at TEXT DEFAULT (datetime('now'))
);
`

const chunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	chunk_text TEXT NOT NULL,
	UNIQUE(document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// createVectorTable creates the sqlite-vec virtual table for the given dimensions.
func createVectorTable(ctx context.Context, db execer, dimensions int) error {
	query := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
			chunk_id INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, dimensions)

	_, err := db.ExecContext(ctx, query)
	return err
}

// vectorTableExists reports whether the sqlite-vec table has been created yet.
func vectorTableExists(ctx context.Context, db execer) (bool, error) {
	var tableName string
	err := db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='chunk_vectors'
	`).Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check vector table: %w", err)
	}
	return true, nil
}

// initSchema initializes the database schema.
func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(ctx, db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema. The vector table is created once the
// embedding dimensionality is known.
func migrateV1(ctx context.Context, db *sql.DB) error {
	log.Debug("Applying migration v1")

	tables := []string{storeInfoTable, documentsTable, chunksTable}
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

// ensureVectorTable records the store's dimensionality on first use and
// creates the vector table. A later call with another dimensionality fails.
// A row written by a chunk insert carries no model; the first caller that
// names one fills it in.
func ensureVectorTable(ctx context.Context, db execer, info Info) (*Info, error) {
	existing, err := readInfo(ctx, db)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := checkDimensions(existing, info.EmbeddingDimensions); err != nil {
			return nil, err
		}
		if existing.EmbeddingModel == "" && info.EmbeddingModel != "" {
			if _, err := db.ExecContext(ctx, `
				UPDATE store_info SET embedding_provider = ?, embedding_model = ? WHERE id = 1
			`, string(info.EmbeddingProvider), info.EmbeddingModel); err != nil {
				return nil, fmt.Errorf("failed to record store info: %w", err)
			}
			existing.EmbeddingProvider = info.EmbeddingProvider
			existing.EmbeddingModel = info.EmbeddingModel
		}
		return existing, nil
	}

	log.Debug("Creating vector table", "dimensions", info.EmbeddingDimensions)
	if err := createVectorTable(ctx, db, info.EmbeddingDimensions); err != nil {
		return nil, fmt.Errorf("failed to create vector table: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO store_info (id, embedding_provider, embedding_model, embedding_dimensions, created_at)
		VALUES (1, ?, ?, ?, ?)
	`, string(info.EmbeddingProvider), info.EmbeddingModel, info.EmbeddingDimensions, formatTime(info.CreatedAt)); err != nil {
		return nil, fmt.Errorf("failed to record store info: %w", err)
	}

	return &info, nil
}

// readInfo returns the recorded store info, or nil when none exists yet.
func readInfo(ctx context.Context, db execer) (*Info, error) {
	var info Info
	var provider, created string
	err := db.QueryRowContext(ctx, `
		SELECT embedding_provider, embedding_model, embedding_dimensions, created_at
		FROM store_info WHERE id = 1
	`).Scan(&provider, &info.EmbeddingModel, &info.EmbeddingDimensions, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store info: %w", err)
	}

	info.EmbeddingProvider = EmbeddingProvider(provider)
	info.CreatedAt = parseTime(created)
	return &info, nil
}
