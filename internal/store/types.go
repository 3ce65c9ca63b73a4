// Package store persists documents, chunks and chunk embeddings and answers
// nearest-neighbour queries over them.
package store

import "time"

// DefaultTopK is the number of results returned when a search asks for none.
const DefaultTopK = 5

// EmbeddingProvider represents the provider used for embeddings.
type EmbeddingProvider string

const (
	ProviderOllama EmbeddingProvider = "ollama"
	ProviderOpenAI EmbeddingProvider = "openai"
	ProviderGemini EmbeddingProvider = "gemini"
	ProviderHash   EmbeddingProvider = "hash"
)

// Info records the embedding model a database was built with.
// Vectors of a different dimensionality cannot be mixed into the same database.
type Info struct {
	EmbeddingProvider   EmbeddingProvider `json:"embedding_provider"`
	EmbeddingModel      string            `json:"embedding_model"`
	EmbeddingDimensions int               `json:"embedding_dimensions"`
	CreatedAt           time.Time         `json:"created_at"`
}

// DocumentRecord represents an ingested document.
type DocumentRecord struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"file_path"`
	TotalPages int       `json:"total_pages"`
	FileSize   int64     `json:"file_size"`
	FileHash   string    `json:"file_hash"` // Content hash (xxh64:...)
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkRecord represents a stored chunk of a document.
type ChunkRecord struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// DocumentInput represents document metadata for insertion.
type DocumentInput struct {
	Filename    string    `json:"filename"`
	FilePath    string    `json:"file_path"`
	TotalPages  int       `json:"total_pages"`
	FileSize    int64     `json:"file_size"`
	FileHash    string    `json:"file_hash"`
	ProcessedAt time.Time `json:"processed_at"`
}

// SearchResult represents a search result with chunk, document, and similarity score.
type SearchResult struct {
	Chunk    ChunkRecord    `json:"chunk"`
	Document DocumentRecord `json:"document"`
	Distance float64        `json:"distance"` // Cosine distance
	Score    float64        `json:"score"`    // 1 - distance (similarity)
}

// Stats contains statistics about the store.
type Stats struct {
	DocumentCount int   `json:"document_count"`
	ChunkCount    int   `json:"chunk_count"`
	TotalPages    int   `json:"total_pages"`
	TotalSize     int64 `json:"total_size"` // Total file size in bytes
	Info          *Info `json:"info,omitempty"`
}

// ListOptions contains options for listing documents.
type ListOptions struct {
	Limit  int
	Offset int
}
