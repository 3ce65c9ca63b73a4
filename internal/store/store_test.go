package store

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDoc builds valid document metadata for the given hash.
func testDoc(hash string) DocumentInput {
	return DocumentInput{
		Filename:    hash + ".pdf",
		FilePath:    "/uploads/" + hash + ".pdf",
		TotalPages:  3,
		FileSize:    2048,
		FileHash:    hash,
		ProcessedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

var (
	north     = []float32{0, 1, 0}
	east      = []float32{1, 0, 0}
	northeast = normalizeVector([]float32{1, 1, 0})
)

// runStoreTests exercises the Store contract against any implementation.
// open must return an empty store.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("store document and read it back", func(t *testing.T) {
		s := open(t)

		id, err := s.StoreDocument(ctx, testDoc("abc"), []string{"one", "two", "three"},
			[][]float32{north, east, northeast})
		require.NoError(t, err)
		assert.Greater(t, id, int64(0))

		doc, err := s.GetDocument(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "abc.pdf", doc.Filename)
		assert.Equal(t, 3, doc.TotalPages)
		assert.Equal(t, int64(2048), doc.FileSize)
		assert.Equal(t, "abc", doc.FileHash)

		chunks, err := s.GetChunks(ctx, id)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.Equal(t, id, c.DocumentID)
		}
		assert.Equal(t, "two", chunks[1].Content)

		has, err := s.HasHash(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, has)

		byHash, err := s.GetDocumentByHash(ctx, "abc")
		require.NoError(t, err)
		require.NotNil(t, byHash)
		assert.Equal(t, id, byHash.ID)
	})

	t.Run("missing document returns nil", func(t *testing.T) {
		s := open(t)

		doc, err := s.GetDocument(ctx, 4242)
		require.NoError(t, err)
		assert.Nil(t, doc)

		has, err := s.HasHash(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("duplicate hash is rejected", func(t *testing.T) {
		s := open(t)

		id, err := s.StoreDocument(ctx, testDoc("dup"), []string{"a", "b"}, [][]float32{north, east})
		require.NoError(t, err)
		assert.Greater(t, id, int64(0))

		id2, err := s.StoreDocument(ctx, testDoc("dup"), []string{"c"}, [][]float32{northeast})
		assert.ErrorIs(t, err, ErrDuplicateDocument)
		assert.Equal(t, int64(0), id2)

		_, err = s.InsertDocument(ctx, testDoc("dup"))
		assert.ErrorIs(t, err, ErrDuplicateDocument)

		stats, err := s.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.DocumentCount)
		assert.Equal(t, 2, stats.ChunkCount)
	})

	t.Run("concurrent duplicates store once", func(t *testing.T) {
		s := open(t)

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.StoreDocument(ctx, testDoc("race"), []string{"x"}, [][]float32{north})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrDuplicateDocument)
		}
		assert.Equal(t, 1, succeeded)

		stats, err := s.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.DocumentCount)
		assert.Equal(t, 1, stats.ChunkCount)
	})

	t.Run("length mismatch writes nothing", func(t *testing.T) {
		s := open(t)

		id, err := s.StoreDocument(ctx, testDoc("short"), []string{"a", "b"}, [][]float32{north})
		assert.ErrorIs(t, err, ErrLengthMismatch)
		assert.Equal(t, int64(0), id)

		stats, err := s.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.DocumentCount)

		has, err := s.HasHash(ctx, "short")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("dimension clash rolls back the document", func(t *testing.T) {
		s := open(t)

		_, err := s.StoreDocument(ctx, testDoc("first"), []string{"a"}, [][]float32{north})
		require.NoError(t, err)

		id, err := s.StoreDocument(ctx, testDoc("second"), []string{"b"}, [][]float32{{1, 0, 0, 0}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, int64(0), id)

		has, err := s.HasHash(ctx, "second")
		require.NoError(t, err)
		assert.False(t, has)

		stats, err := s.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.DocumentCount)
		assert.Equal(t, 1, stats.ChunkCount)
	})

	t.Run("mixed dimensions in one batch are rejected", func(t *testing.T) {
		s := open(t)

		_, err := s.StoreDocument(ctx, testDoc("mixed"), []string{"a", "b"}, [][]float32{north, {1, 0}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("invalid metadata is rejected", func(t *testing.T) {
		s := open(t)

		doc := testDoc("bad")
		doc.TotalPages = 0
		_, err := s.StoreDocument(ctx, doc, []string{"a"}, [][]float32{north})
		assert.ErrorIs(t, err, ErrInvalidDocument)

		doc = testDoc("")
		_, err = s.InsertDocument(ctx, doc)
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})

	t.Run("insert document then chunks", func(t *testing.T) {
		s := open(t)

		id, err := s.InsertDocument(ctx, testDoc("split"))
		require.NoError(t, err)

		require.NoError(t, s.InsertChunks(ctx, id, []string{"p0", "p1"}, [][]float32{north, east}))

		chunks, err := s.GetChunks(ctx, id)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0, chunks[0].ChunkIndex)
		assert.Equal(t, 1, chunks[1].ChunkIndex)

		err = s.InsertChunks(ctx, id, []string{"p2"}, nil)
		assert.ErrorIs(t, err, ErrLengthMismatch)

		err = s.InsertChunks(ctx, id+1000, []string{"p2"}, [][]float32{north})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("search orders by ascending distance", func(t *testing.T) {
		s := open(t)

		_, err := s.StoreDocument(ctx, testDoc("compass"),
			[]string{"east chunk", "north chunk", "northeast chunk"},
			[][]float32{east, north, northeast})
		require.NoError(t, err)

		results, err := s.Search(ctx, north, 5)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "north chunk", results[0].Chunk.Content)
		assert.Equal(t, "northeast chunk", results[1].Chunk.Content)
		assert.Equal(t, "east chunk", results[2].Chunk.Content)

		assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
		assert.LessOrEqual(t, results[1].Distance, results[2].Distance)
		assert.InDelta(t, 0, results[0].Distance, 1e-5)
		assert.InDelta(t, 1, results[0].Score, 1e-5)
		assert.Equal(t, "compass.pdf", results[0].Document.Filename)
	})

	t.Run("search limits to topK and defaults to five", func(t *testing.T) {
		s := open(t)

		var chunks []string
		var embeddings [][]float32
		for i := 0; i < 7; i++ {
			chunks = append(chunks, fmt.Sprintf("chunk %d", i))
			angle := float64(i) * 0.2
			embeddings = append(embeddings, []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0})
		}
		_, err := s.StoreDocument(ctx, testDoc("seven"), chunks, embeddings)
		require.NoError(t, err)

		results, err := s.Search(ctx, east, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "chunk 0", results[0].Chunk.Content)
		assert.Equal(t, "chunk 1", results[1].Chunk.Content)

		results, err = s.Search(ctx, east, 0)
		require.NoError(t, err)
		assert.Len(t, results, DefaultTopK)
	})

	t.Run("search on empty store returns empty", func(t *testing.T) {
		s := open(t)

		results, err := s.Search(ctx, north, 5)
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)

		_, err = s.EnsureInfo(ctx, Info{EmbeddingProvider: ProviderHash, EmbeddingModel: "m", EmbeddingDimensions: 3})
		require.NoError(t, err)

		results, err = s.Search(ctx, north, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("search with wrong dimensions fails softly", func(t *testing.T) {
		s := open(t)

		_, err := s.StoreDocument(ctx, testDoc("dims"), []string{"a"}, [][]float32{north})
		require.NoError(t, err)

		results, err := s.Search(ctx, []float32{1, 0}, 5)
		assert.ErrorIs(t, err, ErrRetrievalFailure)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("delete cascades to chunks and vectors", func(t *testing.T) {
		s := open(t)

		keep, err := s.StoreDocument(ctx, testDoc("keep"), []string{"kept"}, [][]float32{east})
		require.NoError(t, err)
		drop, err := s.StoreDocument(ctx, testDoc("drop"), []string{"dropped", "also dropped"}, [][]float32{north, northeast})
		require.NoError(t, err)

		require.NoError(t, s.DeleteDocument(ctx, drop))

		chunks, err := s.GetChunks(ctx, drop)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		results, err := s.Search(ctx, north, 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, keep, results[0].Document.ID)

		err = s.DeleteDocument(ctx, drop)
		assert.ErrorIs(t, err, ErrNotFound)

		has, err := s.HasHash(ctx, "drop")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("ensure info records the first model", func(t *testing.T) {
		s := open(t)

		info, err := s.GetInfo(ctx)
		require.NoError(t, err)
		assert.Nil(t, info)

		recorded, err := s.EnsureInfo(ctx, Info{EmbeddingProvider: ProviderOllama, EmbeddingModel: "all-minilm", EmbeddingDimensions: 3})
		require.NoError(t, err)
		assert.Equal(t, "all-minilm", recorded.EmbeddingModel)

		again, err := s.EnsureInfo(ctx, Info{EmbeddingProvider: ProviderOpenAI, EmbeddingModel: "other", EmbeddingDimensions: 3})
		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, again.EmbeddingProvider)
		assert.Equal(t, "all-minilm", again.EmbeddingModel)

		_, err = s.EnsureInfo(ctx, Info{EmbeddingProvider: ProviderOpenAI, EmbeddingModel: "big", EmbeddingDimensions: 1536})
		assert.ErrorIs(t, err, ErrDimensionMismatch)

		_, err = s.StoreDocument(ctx, testDoc("wrong"), []string{"a"}, [][]float32{{1, 0}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("model named after chunks were stored", func(t *testing.T) {
		s := open(t)

		_, err := s.StoreDocument(ctx, testDoc("early"), []string{"a"}, [][]float32{north})
		require.NoError(t, err)

		info, err := s.GetInfo(ctx)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, 3, info.EmbeddingDimensions)
		assert.Empty(t, info.EmbeddingModel)

		recorded, err := s.EnsureInfo(ctx, Info{EmbeddingProvider: ProviderHash, EmbeddingModel: "feature-hash-v1", EmbeddingDimensions: 3})
		require.NoError(t, err)
		assert.Equal(t, ProviderHash, recorded.EmbeddingProvider)
		assert.Equal(t, "feature-hash-v1", recorded.EmbeddingModel)

		again, err := s.EnsureInfo(ctx, Info{EmbeddingProvider: ProviderOpenAI, EmbeddingModel: "other", EmbeddingDimensions: 3})
		require.NoError(t, err)
		assert.Equal(t, "feature-hash-v1", again.EmbeddingModel)
	})

	t.Run("list and stats", func(t *testing.T) {
		s := open(t)

		older := testDoc("older")
		older.ProcessedAt = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		newer := testDoc("newer")
		newer.ProcessedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		newer.TotalPages = 10
		newer.FileSize = 1000

		_, err := s.StoreDocument(ctx, older, []string{"o1", "o2"}, [][]float32{north, east})
		require.NoError(t, err)
		_, err = s.StoreDocument(ctx, newer, []string{"n1"}, [][]float32{northeast})
		require.NoError(t, err)

		docs, err := s.ListDocuments(ctx, nil)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "newer", docs[0].FileHash)
		assert.Equal(t, "older", docs[1].FileHash)

		docs, err = s.ListDocuments(ctx, &ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "older", docs[0].FileHash)

		stats, err := s.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.DocumentCount)
		assert.Equal(t, 3, stats.ChunkCount)
		assert.Equal(t, 13, stats.TotalPages)
		assert.Equal(t, int64(3048), stats.TotalSize)
		require.NotNil(t, stats.Info)
		assert.Equal(t, 3, stats.Info.EmbeddingDimensions)
	})
}

// normalizeVector normalizes a vector to unit length (for testing).
func normalizeVector(v []float32) []float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	norm := float32(math.Sqrt(float64(sum)))
	result := make([]float32, len(v))
	for i, x := range v {
		result[i] = x / norm
	}
	return result
}
