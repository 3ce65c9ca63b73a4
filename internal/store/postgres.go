package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS store_info (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	embedding_provider TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	embedding_dimensions INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	total_pages INTEGER NOT NULL CHECK (total_pages > 0),
	file_size BIGINT NOT NULL CHECK (file_size > 0),
	file_hash TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	chunk_text TEXT NOT NULL,
	embedding vector NOT NULL,
	UNIQUE(document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
`

// PostgresStore implements the Store interface using PostgreSQL and pgvector.
// Every operation checks a connection out of the pool and returns it when done.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresOptions configures the connection pool.
type PostgresOptions struct {
	DSN      string
	MaxConns int32
}

// NewPostgresStore connects to PostgreSQL, installs the vector extension and
// creates the schema.
func NewPostgresStore(ctx context.Context, opts PostgresOptions) (*PostgresStore, error) {
	// The extension must exist before the pool registers its types.
	conn, err := pgx.Connect(ctx, opts.DSN)
	if err != nil {
		return nil, storageError("failed to connect to postgres", err)
	}
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		conn.Close(ctx)
		return nil, storageError("failed to create vector extension", err)
	}
	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		conn.Close(ctx)
		return nil, storageError("failed to initialize schema", err)
	}
	conn.Close(ctx)

	config, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, storageError("failed to parse postgres dsn", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, storageError("failed to create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageError("failed to ping postgres", err)
	}

	log.Debug("Opened Postgres store", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)

	return &PostgresStore{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// queryRower is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readInfoPG(ctx context.Context, q queryRower) (*Info, error) {
	var info Info
	var provider string
	err := q.QueryRow(ctx, `
		SELECT embedding_provider, embedding_model, embedding_dimensions, created_at
		FROM store_info WHERE id = 1
	`).Scan(&provider, &info.EmbeddingModel, &info.EmbeddingDimensions, &info.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store info: %w", err)
	}
	info.EmbeddingProvider = EmbeddingProvider(provider)
	return &info, nil
}

// ensureInfoPG records info if none exists. ON CONFLICT keeps the first writer's
// row, except that a row without a model adopts the first model named.
func ensureInfoPG(ctx context.Context, tx pgx.Tx, info Info) (*Info, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO store_info (id, embedding_provider, embedding_model, embedding_dimensions, created_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET embedding_provider = EXCLUDED.embedding_provider,
			embedding_model = EXCLUDED.embedding_model
		WHERE store_info.embedding_model = '' AND EXCLUDED.embedding_model <> ''
	`, string(info.EmbeddingProvider), info.EmbeddingModel, info.EmbeddingDimensions, createdAtOrNow(info))
	if err != nil {
		return nil, fmt.Errorf("failed to record store info: %w", err)
	}

	recorded, err := readInfoPG(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := checkDimensions(recorded, info.EmbeddingDimensions); err != nil {
		return nil, err
	}
	return recorded, nil
}

// GetInfo returns the embedding model recorded for this database, or nil.
func (s *PostgresStore) GetInfo(ctx context.Context) (*Info, error) {
	info, err := readInfoPG(ctx, s.pool)
	if err != nil {
		return nil, storageError("get info", err)
	}
	return info, nil
}

// EnsureInfo records info if the database has none and returns the recorded info.
func (s *PostgresStore) EnsureInfo(ctx context.Context, info Info) (*Info, error) {
	if info.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrDimensionMismatch, info.EmbeddingDimensions)
	}

	var recorded *Info
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		recorded, err = ensureInfoPG(ctx, tx, info)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// HasHash reports whether a document with the given content hash exists.
func (s *PostgresStore) HasHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM documents WHERE file_hash = $1)", hash).Scan(&exists)
	if err != nil {
		return false, storageError("failed to check hash", err)
	}
	return exists, nil
}

// InsertDocument inserts a document row without chunks.
func (s *PostgresStore) InsertDocument(ctx context.Context, doc DocumentInput) (int64, error) {
	if err := validateDocument(doc); err != nil {
		return 0, err
	}

	var id int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		id, err = insertDocumentPG(ctx, tx, doc)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertChunks adds chunks and their embeddings to an existing document.
// Indexes continue after any chunks the document already has.
func (s *PostgresStore) InsertChunks(ctx context.Context, documentID int64, chunks []string, embeddings [][]float32) error {
	dims, err := validateEmbeddings(chunks, embeddings)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		return insertChunksPG(ctx, tx, documentID, chunks, embeddings, dims)
	})
}

// StoreDocument inserts a document with all of its chunks in one transaction.
// On any failure nothing is written and the returned id is 0.
func (s *PostgresStore) StoreDocument(ctx context.Context, doc DocumentInput, chunks []string, embeddings [][]float32) (int64, error) {
	if err := validateDocument(doc); err != nil {
		return 0, err
	}
	dims, err := validateEmbeddings(chunks, embeddings)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		docID, err := insertDocumentPG(ctx, tx, doc)
		if err != nil {
			return err
		}
		if err := insertChunksPG(ctx, tx, docID, chunks, embeddings, dims); err != nil {
			return err
		}
		id = docID
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Debug("Stored document", "id", id, "filename", doc.Filename, "chunks", len(chunks))
	return id, nil
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isPGUniqueViolation(err) {
			return ErrDuplicateDocument
		}
		return storageError("failed to commit transaction", err)
	}
	return nil
}

func insertDocumentPG(ctx context.Context, tx pgx.Tx, doc DocumentInput) (int64, error) {
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM documents WHERE file_hash = $1)", doc.FileHash).Scan(&exists); err != nil {
		return 0, storageError("failed to check hash", err)
	}
	if exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.FileHash)
	}

	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO documents (filename, file_path, total_pages, file_size, file_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, doc.Filename, doc.FilePath, doc.TotalPages, doc.FileSize, doc.FileHash, createdAt(doc)).Scan(&id)
	if err != nil {
		if isPGUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.FileHash)
		}
		return 0, storageError("failed to insert document", err)
	}
	return id, nil
}

func insertChunksPG(ctx context.Context, tx pgx.Tx, documentID int64, chunks []string, embeddings [][]float32, dims int) error {
	if len(chunks) == 0 {
		return nil
	}

	info, err := readInfoPG(ctx, tx)
	if err != nil {
		return storageError("insert chunks", err)
	}
	if info == nil {
		// No model recorded yet; the first write fixes the dimensionality.
		if _, err := ensureInfoPG(ctx, tx, Info{EmbeddingDimensions: dims}); err != nil {
			if errors.Is(err, ErrDimensionMismatch) {
				return err
			}
			return storageError("insert chunks", err)
		}
	} else if err := checkDimensions(info, dims); err != nil {
		return err
	}

	var base int
	err = tx.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM chunks WHERE document_id = $1)
		FROM documents WHERE id = $1
	`, documentID).Scan(&base)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return storageError("failed to count chunks", err)
	}

	batch := &pgx.Batch{}
	for i, chunk := range chunks {
		batch.Queue(`
			INSERT INTO chunks (document_id, chunk_index, chunk_text, embedding)
			VALUES ($1, $2, $3, $4)
		`, documentID, base+i, chunk, pgvector.NewVector(embeddings[i]))
	}

	br := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return storageError(fmt.Sprintf("failed to insert chunk %d", i), err)
		}
	}
	if err := br.Close(); err != nil {
		return storageError("failed to insert chunks", err)
	}

	return nil
}

const pgDocumentColumns = "d.id, d.filename, d.file_path, d.total_pages, d.file_size, d.file_hash, d.created_at"

func scanDocumentPG(row pgx.Row) (*DocumentRecord, error) {
	var record DocumentRecord
	if err := row.Scan(
		&record.ID, &record.Filename, &record.FilePath,
		&record.TotalPages, &record.FileSize, &record.FileHash, &record.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetDocument retrieves a document by ID. It returns nil if none exists.
func (s *PostgresStore) GetDocument(ctx context.Context, id int64) (*DocumentRecord, error) {
	record, err := scanDocumentPG(s.pool.QueryRow(ctx, "SELECT "+pgDocumentColumns+" FROM documents d WHERE d.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("failed to get document", err)
	}
	return record, nil
}

// GetDocumentByHash retrieves a document by its content hash. It returns nil if none exists.
func (s *PostgresStore) GetDocumentByHash(ctx context.Context, hash string) (*DocumentRecord, error) {
	record, err := scanDocumentPG(s.pool.QueryRow(ctx, "SELECT "+pgDocumentColumns+" FROM documents d WHERE d.file_hash = $1", hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("failed to get document by hash", err)
	}
	return record, nil
}

// ListDocuments returns documents, most recently ingested first.
func (s *PostgresStore) ListDocuments(ctx context.Context, opts *ListOptions) ([]DocumentRecord, error) {
	limit, offset := int64(-1), 0
	if opts != nil && opts.Limit > 0 {
		limit, offset = int64(opts.Limit), opts.Offset
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgDocumentColumns+`
		FROM documents d
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT NULLIF($1, -1) OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, storageError("failed to list documents", err)
	}
	defer rows.Close()

	docs := []DocumentRecord{}
	for rows.Next() {
		record, err := scanDocumentPG(rows)
		if err != nil {
			return nil, storageError("failed to scan document", err)
		}
		docs = append(docs, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("failed to list documents", err)
	}
	return docs, nil
}

// GetChunks returns a document's chunks in index order.
func (s *PostgresStore) GetChunks(ctx context.Context, documentID int64) ([]ChunkRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, chunk_text
		FROM chunks WHERE document_id = $1 ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, storageError("failed to get chunks", err)
	}
	defer rows.Close()

	chunks := []ChunkRecord{}
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content); err != nil {
			return nil, storageError("failed to scan chunk", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("failed to get chunks", err)
	}
	return chunks, nil
}

// DeleteDocument deletes a document; chunks go with it through the cascade.
func (s *PostgresStore) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return storageError("failed to delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return nil
}

// Search returns the topK chunks closest to queryEmbedding by cosine distance.
// A failed query yields an empty slice along with an ErrRetrievalFailure error.
func (s *PostgresStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]SearchResult, error) {
	results := []SearchResult{}
	topK = normalizeTopK(topK)

	info, err := readInfoPG(ctx, s.pool)
	if err != nil {
		return results, retrievalError("search", err)
	}
	if info == nil {
		return results, nil
	}
	if err := checkDimensions(info, len(queryEmbedding)); err != nil {
		return results, retrievalError("search", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
			c.id, c.document_id, c.chunk_index, c.chunk_text,
			`+pgDocumentColumns+`,
			c.embedding <=> $1 AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(queryEmbedding), topK)
	if err != nil {
		return results, retrievalError("failed to search", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result SearchResult
		if err := rows.Scan(
			&result.Chunk.ID, &result.Chunk.DocumentID, &result.Chunk.ChunkIndex, &result.Chunk.Content,
			&result.Document.ID, &result.Document.Filename, &result.Document.FilePath,
			&result.Document.TotalPages, &result.Document.FileSize, &result.Document.FileHash, &result.Document.CreatedAt,
			&result.Distance,
		); err != nil {
			return []SearchResult{}, retrievalError("failed to scan search result", err)
		}
		result.Score = 1 - result.Distance
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return []SearchResult{}, retrievalError("failed to search", err)
	}

	return results, nil
}

// GetStats returns statistics for the store.
func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COALESCE(SUM(total_pages), 0) FROM documents),
			(SELECT COALESCE(SUM(file_size), 0)::bigint FROM documents),
			(SELECT COUNT(*) FROM chunks)
	`).Scan(&stats.DocumentCount, &stats.TotalPages, &stats.TotalSize, &stats.ChunkCount)
	if err != nil {
		return nil, storageError("failed to get stats", err)
	}

	stats.Info, err = readInfoPG(ctx, s.pool)
	if err != nil {
		return nil, storageError("get stats", err)
	}
	return &stats, nil
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func createdAtOrNow(info Info) time.Time {
	if info.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return info.CreatedAt
}
