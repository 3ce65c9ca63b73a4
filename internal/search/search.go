// Package search provides semantic retrieval over ingested documents.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/nickcecere/docrag/internal/embeddings"
	"github.com/nickcecere/docrag/internal/store"
)

// ErrEmptyQuery is returned when a search is run without a query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// NoMinScore disables score filtering. Cosine scores range over [-1, 1].
const NoMinScore = -1.0

// Searcher provides semantic search over a document store.
type Searcher struct {
	store    store.Store
	embedder embeddings.Service
}

// Result represents a retrieved chunk with its document.
type Result struct {
	// Document information
	DocumentID int64  `json:"document_id"`
	Filename   string `json:"filename"`
	FilePath   string `json:"file_path"`

	// Chunk information
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`

	// Similarity information
	Score    float64 `json:"score"`    // 1 - distance, higher is better
	Distance float64 `json:"distance"` // cosine distance

	// Neighbouring chunks (optional, filled in when ContextChunks > 0)
	ContextBefore string `json:"context_before,omitempty"`
	ContextAfter  string `json:"context_after,omitempty"`
}

// SearchOptions configures the search.
type SearchOptions struct {
	// TopK is the maximum number of results to return.
	TopK int

	// MinScore filters results below this similarity score.
	// NoMinScore or lower keeps every result.
	MinScore float64

	// IncludeContent includes the chunk content in results.
	IncludeContent bool

	// ContextChunks is the number of neighbouring chunks to include on each side.
	ContextChunks int
}

// DefaultSearchOptions returns sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK:           store.DefaultTopK,
		MinScore:       NoMinScore,
		IncludeContent: true,
		ContextChunks:  0,
	}
}

// New creates a new Searcher.
func New(st store.Store, emb embeddings.Service) *Searcher {
	return &Searcher{
		store:    st,
		embedder: emb,
	}
}

// Search embeds query and returns the nearest chunks, closest first.
//
// When the store query fails the returned slice is empty, not nil, and the
// error wraps store.ErrRetrievalFailure.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = store.DefaultTopK
	}

	log.Debug("Searching store", "topK", topK)
	searchResults, err := s.store.Search(ctx, queryEmbedding, topK)
	if err != nil {
		return []Result{}, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(searchResults))
	for _, sr := range searchResults {
		if opts.MinScore > NoMinScore && sr.Score < opts.MinScore {
			continue
		}

		result := Result{
			DocumentID: sr.Document.ID,
			Filename:   sr.Document.Filename,
			FilePath:   sr.Document.FilePath,
			ChunkIndex: sr.Chunk.ChunkIndex,
			Score:      sr.Score,
			Distance:   sr.Distance,
		}

		if opts.IncludeContent {
			result.Content = sr.Chunk.Content
		}

		results = append(results, result)
	}

	if opts.ContextChunks > 0 {
		s.addContext(ctx, results, opts.ContextChunks)
	}

	log.Debug("Search complete", "results", len(results))
	return results, nil
}

// addContext fills in the chunks surrounding each result. Failures only
// leave the context empty.
func (s *Searcher) addContext(ctx context.Context, results []Result, n int) {
	chunksByDoc := make(map[int64][]store.ChunkRecord)

	for i := range results {
		r := &results[i]
		chunks, ok := chunksByDoc[r.DocumentID]
		if !ok {
			var err error
			chunks, err = s.store.GetChunks(ctx, r.DocumentID)
			if err != nil {
				log.Debug("Failed to load context chunks", "document", r.DocumentID, "error", err)
			}
			chunksByDoc[r.DocumentID] = chunks
		}
		r.ContextBefore, r.ContextAfter = neighbours(chunks, r.ChunkIndex, n)
	}
}

// neighbours joins up to n chunks on either side of index. Chunks are
// ordered by index, so positions match indexes.
func neighbours(chunks []store.ChunkRecord, index, n int) (before, after string) {
	if index < 0 || index >= len(chunks) {
		return "", ""
	}

	start := index - n
	if start < 0 {
		start = 0
	}
	for _, c := range chunks[start:index] {
		before += c.Content
	}

	end := index + 1 + n
	if end > len(chunks) {
		end = len(chunks)
	}
	for _, c := range chunks[index+1 : end] {
		after += c.Content
	}

	return before, after
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
