package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore implements the Store interface using SQLite and sqlite-vec.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite store at the given path.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys drive the chunk cascade; WAL lets readers run during ingestion.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storageError("failed to open database", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, storageError("failed to initialize schema", err)
	}

	log.Debug("Opened SQLite store", "path", dbPath)

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetInfo returns the embedding model recorded for this database, or nil.
func (s *SQLiteStore) GetInfo(ctx context.Context) (*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := readInfo(ctx, s.db)
	if err != nil {
		return nil, storageError("get info", err)
	}
	return info, nil
}

// EnsureInfo records info if the database has none and returns the recorded info.
func (s *SQLiteStore) EnsureInfo(ctx context.Context, info Info) (*Info, error) {
	if info.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrDimensionMismatch, info.EmbeddingDimensions)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var recorded *Info
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		recorded, err = ensureVectorTable(ctx, tx, info)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// HasHash reports whether a document with the given content hash exists.
func (s *SQLiteStore) HasHash(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM documents WHERE file_hash = ?)", hash).Scan(&exists)
	if err != nil {
		return false, storageError("failed to check hash", err)
	}
	return exists, nil
}

// InsertDocument inserts a document row without chunks.
func (s *SQLiteStore) InsertDocument(ctx context.Context, doc DocumentInput) (int64, error) {
	if err := validateDocument(doc); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertDocumentTx(ctx, tx, doc)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertChunks adds chunks and their embeddings to an existing document.
// Indexes continue after any chunks the document already has.
func (s *SQLiteStore) InsertChunks(ctx context.Context, documentID int64, chunks []string, embeddings [][]float32) error {
	dims, err := validateEmbeddings(chunks, embeddings)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertChunksTx(ctx, tx, documentID, chunks, embeddings, dims)
	})
}

// StoreDocument inserts a document with all of its chunks in one transaction.
// On any failure nothing is written and the returned id is 0.
func (s *SQLiteStore) StoreDocument(ctx context.Context, doc DocumentInput, chunks []string, embeddings [][]float32) (int64, error) {
	if err := validateDocument(doc); err != nil {
		return 0, err
	}
	dims, err := validateEmbeddings(chunks, embeddings)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		docID, err := insertDocumentTx(ctx, tx, doc)
		if err != nil {
			return err
		}
		if err := insertChunksTx(ctx, tx, docID, chunks, embeddings, dims); err != nil {
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
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDocument
		}
		return storageError("failed to commit transaction", err)
	}
	return nil
}

func insertDocumentTx(ctx context.Context, tx *sql.Tx, doc DocumentInput) (int64, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM documents WHERE file_hash = ?)", doc.FileHash).Scan(&exists); err != nil {
		return 0, storageError("failed to check hash", err)
	}
	if exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.FileHash)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO documents (filename, file_path, total_pages, file_size, file_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.Filename, doc.FilePath, doc.TotalPages, doc.FileSize, doc.FileHash, formatTime(createdAt(doc)))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.FileHash)
		}
		return 0, storageError("failed to insert document", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageError("failed to get document ID", err)
	}
	return id, nil
}

func insertChunksTx(ctx context.Context, tx *sql.Tx, documentID int64, chunks []string, embeddings [][]float32, dims int) error {
	if len(chunks) == 0 {
		return nil
	}

	info, err := readInfo(ctx, tx)
	if err != nil {
		return storageError("insert chunks", err)
	}
	if info == nil {
		// No model recorded yet; the first write fixes the dimensionality.
		if _, err := ensureVectorTable(ctx, tx, Info{EmbeddingDimensions: dims}); err != nil {
			return storageError("insert chunks", err)
		}
	} else if err := checkDimensions(info, dims); err != nil {
		return err
	}

	var owner int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM documents WHERE id = ?", documentID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return storageError("failed to check document", err)
	}

	var base int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&base); err != nil {
		return storageError("failed to count chunks", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, chunk_index, chunk_text)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return storageError("failed to prepare chunk insert", err)
	}
	defer chunkStmt.Close()

	vecStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_vectors (chunk_id, embedding)
		VALUES (?, ?)
	`)
	if err != nil {
		return storageError("failed to prepare vector insert", err)
	}
	defer vecStmt.Close()

	for i, chunk := range chunks {
		result, err := chunkStmt.ExecContext(ctx, documentID, base+i, chunk)
		if err != nil {
			return storageError(fmt.Sprintf("failed to insert chunk %d", i), err)
		}

		chunkID, err := result.LastInsertId()
		if err != nil {
			return storageError(fmt.Sprintf("failed to get chunk ID %d", i), err)
		}

		if _, err := vecStmt.ExecContext(ctx, chunkID, serializeEmbedding(embeddings[i])); err != nil {
			return storageError(fmt.Sprintf("failed to insert vector for chunk %d", i), err)
		}
	}

	return nil
}

const documentColumns = "d.id, d.filename, d.file_path, d.total_pages, d.file_size, d.file_hash, d.created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var record DocumentRecord
	var created string
	if err := row.Scan(
		&record.ID, &record.Filename, &record.FilePath,
		&record.TotalPages, &record.FileSize, &record.FileHash, &created,
	); err != nil {
		return nil, err
	}
	record.CreatedAt = parseTime(created)
	return &record, nil
}

// GetDocument retrieves a document by ID. It returns nil if none exists.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := scanDocument(s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents d WHERE d.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("failed to get document", err)
	}
	return record, nil
}

// GetDocumentByHash retrieves a document by its content hash. It returns nil if none exists.
func (s *SQLiteStore) GetDocumentByHash(ctx context.Context, hash string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := scanDocument(s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents d WHERE d.file_hash = ?", hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("failed to get document by hash", err)
	}
	return record, nil
}

// ListDocuments returns documents, most recently ingested first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, opts *ListOptions) ([]DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + documentColumns + " FROM documents d ORDER BY d.created_at DESC, d.id DESC"
	if opts != nil && opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageError("failed to list documents", err)
	}
	defer rows.Close()

	docs := []DocumentRecord{}
	for rows.Next() {
		record, err := scanDocument(rows)
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
func (s *SQLiteStore) GetChunks(ctx context.Context, documentID int64) ([]ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, chunk_text
		FROM chunks WHERE document_id = ? ORDER BY chunk_index
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

// DeleteDocument deletes a document with its chunks and vectors.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		hasVectors, err := vectorTableExists(ctx, tx)
		if err != nil {
			return storageError("delete document", err)
		}

		// vec0 tables take no part in foreign key cascades.
		if hasVectors {
			_, err = tx.ExecContext(ctx, "DELETE FROM chunk_vectors WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)", id)
			if err != nil {
				return storageError("failed to delete vectors", err)
			}
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return storageError("failed to delete document", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// Search returns the topK chunks closest to queryEmbedding by cosine distance.
// A failed query yields an empty slice along with an ErrRetrievalFailure error.
func (s *SQLiteStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []SearchResult{}
	topK = normalizeTopK(topK)

	hasVectors, err := vectorTableExists(ctx, s.db)
	if err != nil {
		return results, retrievalError("search", err)
	}
	if !hasVectors {
		return results, nil
	}

	info, err := readInfo(ctx, s.db)
	if err != nil {
		return results, retrievalError("search", err)
	}
	if err := checkDimensions(info, len(queryEmbedding)); err != nil {
		return results, retrievalError("search", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id, c.document_id, c.chunk_index, c.chunk_text,
			`+documentColumns+`,
			cv.distance
		FROM chunk_vectors cv
		JOIN chunks c ON c.id = cv.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE cv.embedding MATCH ?
			AND k = ?
		ORDER BY cv.distance ASC
	`, serializeEmbedding(queryEmbedding), topK)
	if err != nil {
		return results, retrievalError("failed to search", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result SearchResult
		var created string
		if err := rows.Scan(
			&result.Chunk.ID, &result.Chunk.DocumentID, &result.Chunk.ChunkIndex, &result.Chunk.Content,
			&result.Document.ID, &result.Document.Filename, &result.Document.FilePath,
			&result.Document.TotalPages, &result.Document.FileSize, &result.Document.FileHash, &created,
			&result.Distance,
		); err != nil {
			return []SearchResult{}, retrievalError("failed to scan search result", err)
		}

		result.Document.CreatedAt = parseTime(created)
		result.Score = 1 - result.Distance
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return []SearchResult{}, retrievalError("failed to search", err)
	}

	return results, nil
}

// GetStats returns statistics for the store.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_pages), 0), COALESCE(SUM(file_size), 0)
		FROM documents
	`).Scan(&stats.DocumentCount, &stats.TotalPages, &stats.TotalSize)
	if err != nil {
		return nil, storageError("failed to get document stats", err)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.ChunkCount); err != nil {
		return nil, storageError("failed to get chunk count", err)
	}

	stats.Info, err = readInfo(ctx, s.db)
	if err != nil {
		return nil, storageError("get stats", err)
	}

	return &stats, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
