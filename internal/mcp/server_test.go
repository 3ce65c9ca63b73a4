package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/pipeline"
	"github.com/nickcecere/docrag/internal/search"
	"github.com/nickcecere/docrag/internal/store"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	results    []search.Result
	searchOpts search.SearchOptions
	answer     *pipeline.Answer
	topK       int
	ingest     *pipeline.IngestResult
	ingestOpts pipeline.IngestOptions
	stats      *store.Stats
	docs       []store.DocumentRecord
	err        error
}

func (m *mockBackend) Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.Result, error) {
	m.searchOpts = opts
	return m.results, m.err
}

func (m *mockBackend) Query(ctx context.Context, question string, topK int) (*pipeline.Answer, error) {
	m.topK = topK
	return m.answer, m.err
}

func (m *mockBackend) Ingest(ctx context.Context, path string, opts pipeline.IngestOptions) (*pipeline.IngestResult, error) {
	m.ingestOpts = opts
	return m.ingest, m.err
}

func (m *mockBackend) Documents(ctx context.Context, opts *store.ListOptions) ([]store.DocumentRecord, error) {
	return m.docs, m.err
}

func (m *mockBackend) Stats(ctx context.Context) (*store.Stats, error) {
	return m.stats, m.err
}

var _ Backend = (*mockBackend)(nil)

var testResults = []search.Result{
	{DocumentID: 1, Filename: "manual.pdf", ChunkIndex: 3, Score: 0.91, Content: "Check the valves weekly."},
	{DocumentID: 2, Filename: "pumps.pdf", ChunkIndex: 0, Score: 0.42, Content: "Clean the pump filter."},
}

func TestHandleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns passages", func(t *testing.T) {
		backend := &mockBackend{results: testResults}
		server := NewServer(backend, "test")

		_, output, err := server.handleSearch(ctx, nil, SearchDocumentsInput{Query: "valves", Limit: 2, MinScore: 0.3})
		require.NoError(t, err)
		assert.Equal(t, 2, output.Count)
		assert.Empty(t, output.Message)
		assert.Equal(t, "manual.pdf", output.Results[0].Filename)
		assert.Equal(t, 3, output.Results[0].ChunkIndex)
		assert.Equal(t, "Check the valves weekly.", output.Results[0].Content)
		assert.Equal(t, 2, backend.searchOpts.TopK)
		assert.Equal(t, 0.3, backend.searchOpts.MinScore)
		assert.True(t, backend.searchOpts.IncludeContent)
	})

	t.Run("default limit", func(t *testing.T) {
		backend := &mockBackend{}
		server := NewServer(backend, "test")

		_, output, err := server.handleSearch(ctx, nil, SearchDocumentsInput{Query: "valves"})
		require.NoError(t, err)
		assert.Equal(t, store.DefaultTopK, backend.searchOpts.TopK)
		assert.Equal(t, search.NoMinScore, backend.searchOpts.MinScore)
		assert.NotNil(t, output.Results)
		assert.NotEmpty(t, output.Message)
	})

	t.Run("search failure", func(t *testing.T) {
		server := NewServer(&mockBackend{err: store.ErrRetrievalFailure}, "test")

		_, _, err := server.handleSearch(ctx, nil, SearchDocumentsInput{Query: "valves"})
		assert.ErrorIs(t, err, store.ErrRetrievalFailure)
	})
}

func TestHandleAsk(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{answer: &pipeline.Answer{
		Question: "How often?",
		Answer:   "Weekly [Source 1].",
		Sources:  testResults[:1],
	}}
	server := NewServer(backend, "test")

	_, output, err := server.handleAsk(ctx, nil, AskInput{Question: "How often?", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, "Weekly [Source 1].", output.Answer)
	require.Len(t, output.Sources, 1)
	assert.Equal(t, int64(1), output.Sources[0].DocumentID)
	assert.Equal(t, 3, backend.topK)

	backend.err = errors.New("model offline")
	_, _, err = server.handleAsk(ctx, nil, AskInput{Question: "How often?"})
	assert.ErrorContains(t, err, "model offline")
}

func TestHandleIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("ingests", func(t *testing.T) {
		backend := &mockBackend{ingest: &pipeline.IngestResult{DocumentID: 7, Filename: "manual.pdf", TotalPages: 12, Chunks: 40}}
		server := NewServer(backend, "test")

		_, output, err := server.handleIngest(ctx, nil, IngestPDFInput{Path: "/docs/manual.pdf"})
		require.NoError(t, err)
		assert.Equal(t, int64(7), output.DocumentID)
		assert.Equal(t, 40, output.Chunks)
		assert.Equal(t, "Ingested manual.pdf: 12 pages, 40 chunks", output.Message)
	})

	t.Run("dry run", func(t *testing.T) {
		backend := &mockBackend{ingest: &pipeline.IngestResult{Filename: "manual.pdf", Chunks: 40, DryRun: true}}
		server := NewServer(backend, "test")

		_, output, err := server.handleIngest(ctx, nil, IngestPDFInput{Path: "manual.pdf", DryRun: true})
		require.NoError(t, err)
		assert.True(t, backend.ingestOpts.DryRun)
		assert.True(t, output.DryRun)
		assert.Contains(t, output.Message, "Dry run")
	})

	t.Run("duplicate is not an error", func(t *testing.T) {
		server := NewServer(&mockBackend{err: fmt.Errorf("%w: manual.pdf", store.ErrDuplicateDocument)}, "test")

		_, output, err := server.handleIngest(ctx, nil, IngestPDFInput{Path: "manual.pdf"})
		require.NoError(t, err)
		assert.True(t, output.Duplicate)
	})

	t.Run("path required", func(t *testing.T) {
		server := NewServer(&mockBackend{}, "test")

		_, _, err := server.handleIngest(ctx, nil, IngestPDFInput{})
		assert.Error(t, err)
	})
}

func TestHandleStatus(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	backend := &mockBackend{
		stats: &store.Stats{
			DocumentCount: 2,
			ChunkCount:    30,
			TotalPages:    14,
			TotalSize:     4096,
			Info: &store.Info{
				EmbeddingProvider:   store.ProviderOllama,
				EmbeddingModel:      "nomic-embed-text",
				EmbeddingDimensions: 768,
			},
		},
		docs: []store.DocumentRecord{{ID: 2, Filename: "pumps.pdf", TotalPages: 4, CreatedAt: created}},
	}
	server := NewServer(backend, "test")

	_, output, err := server.handleStatus(context.Background(), nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, output.Documents)
	assert.Equal(t, 30, output.Chunks)
	assert.Equal(t, "ollama", output.EmbeddingProvider)
	assert.Equal(t, 768, output.EmbeddingDimensions)
	require.Len(t, output.Recent, 1)
	assert.Equal(t, "pumps.pdf", output.Recent[0].Filename)
	assert.Equal(t, created, output.Recent[0].CreatedAt)
}

func TestToolsAreListed(t *testing.T) {
	ctx := context.Background()
	server := NewServer(&mockBackend{}, "test")

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_documents", "ask", "ingest_pdf", "index_status"}, names)
}
