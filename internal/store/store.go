package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nickcecere/docrag/internal/config"
)

var (
	// ErrDuplicateDocument is returned when a document with the same content hash exists.
	ErrDuplicateDocument = errors.New("duplicate document")

	// ErrStorageUnavailable wraps connection and transaction failures.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRetrievalFailure wraps search query failures.
	ErrRetrievalFailure = errors.New("retrieval failure")

	// ErrLengthMismatch is returned when chunks and embeddings differ in count.
	ErrLengthMismatch = errors.New("chunks and embeddings count mismatch")

	// ErrDimensionMismatch is returned when a vector does not match the store's dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidDocument is returned when document metadata fails validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
)

// Store defines the interface for document and vector storage.
type Store interface {
	// Embedding model bookkeeping
	GetInfo(ctx context.Context) (*Info, error)
	EnsureInfo(ctx context.Context, info Info) (*Info, error)

	// Ingestion
	HasHash(ctx context.Context, hash string) (bool, error)
	InsertDocument(ctx context.Context, doc DocumentInput) (int64, error)
	InsertChunks(ctx context.Context, documentID int64, chunks []string, embeddings [][]float32) error
	StoreDocument(ctx context.Context, doc DocumentInput, chunks []string, embeddings [][]float32) (int64, error)

	// Inspection
	GetDocument(ctx context.Context, id int64) (*DocumentRecord, error)
	GetDocumentByHash(ctx context.Context, hash string) (*DocumentRecord, error)
	ListDocuments(ctx context.Context, opts *ListOptions) ([]DocumentRecord, error)
	GetChunks(ctx context.Context, documentID int64) ([]ChunkRecord, error)
	DeleteDocument(ctx context.Context, id int64) error

	// Search
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]SearchResult, error)

	// Stats
	GetStats(ctx context.Context) (*Stats, error)

	Close() error
}

// Open opens the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = config.DefaultDatabasePath()
		}
		return NewSQLiteStore(ctx, path)
	case "postgres":
		return NewPostgresStore(ctx, PostgresOptions{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// validateDocument checks document metadata before anything is written.
func validateDocument(doc DocumentInput) error {
	switch {
	case strings.TrimSpace(doc.FileHash) == "":
		return fmt.Errorf("%w: empty file hash", ErrInvalidDocument)
	case doc.Filename == "":
		return fmt.Errorf("%w: empty filename", ErrInvalidDocument)
	case doc.TotalPages <= 0:
		return fmt.Errorf("%w: total pages must be positive, got %d", ErrInvalidDocument, doc.TotalPages)
	case doc.FileSize <= 0:
		return fmt.Errorf("%w: file size must be positive, got %d", ErrInvalidDocument, doc.FileSize)
	}
	return nil
}

// validateEmbeddings checks that chunks and embeddings line up and share one
// dimensionality. It returns that dimensionality, or 0 for an empty batch.
func validateEmbeddings(chunks []string, embeddings [][]float32) (int, error) {
	if len(chunks) != len(embeddings) {
		return 0, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(chunks), len(embeddings))
	}
	if len(embeddings) == 0 {
		return 0, nil
	}

	dims := len(embeddings[0])
	if dims == 0 {
		return 0, fmt.Errorf("%w: empty embedding for chunk 0", ErrDimensionMismatch)
	}
	for i, e := range embeddings {
		if len(e) != dims {
			return 0, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(e), dims)
		}
	}
	return dims, nil
}

// checkDimensions compares a vector length against the recorded store info.
func checkDimensions(info *Info, dims int) error {
	if info != nil && info.EmbeddingDimensions != dims {
		return fmt.Errorf("%w: store uses %d dimensions, got %d", ErrDimensionMismatch, info.EmbeddingDimensions, dims)
	}
	return nil
}

func normalizeTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return topK
}

func createdAt(doc DocumentInput) time.Time {
	if doc.ProcessedAt.IsZero() {
		return time.Now().UTC()
	}
	return doc.ProcessedAt.UTC()
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func retrievalError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrRetrievalFailure, err)
}
