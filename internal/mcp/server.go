// Package mcp exposes document search, question answering and ingestion as
// Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nickcecere/docrag/internal/pipeline"
	"github.com/nickcecere/docrag/internal/search"
	"github.com/nickcecere/docrag/internal/store"
)

const (
	// ServerName is the name of this MCP server.
	ServerName = "docrag"

	// recentDocuments is how many documents index_status lists.
	recentDocuments = 10
)

// Backend is the part of the pipeline the tools call into.
type Backend interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.Result, error)
	Query(ctx context.Context, question string, topK int) (*pipeline.Answer, error)
	Ingest(ctx context.Context, path string, opts pipeline.IngestOptions) (*pipeline.IngestResult, error)
	Documents(ctx context.Context, opts *store.ListOptions) ([]store.DocumentRecord, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

var _ Backend = (*pipeline.Pipeline)(nil)

// Server is the MCP server for docrag.
type Server struct {
	server  *mcp.Server
	backend Backend
}

// NewServer creates an MCP server with all tools registered.
func NewServer(backend Backend, version string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: version,
		}, nil),
		backend: backend,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over ingested PDF documents. Returns the passages closest to the query.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using passages retrieved from the ingested PDF documents.",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_pdf",
		Description: "Ingest a PDF file so it can be searched. Documents with identical text are only stored once.",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_status",
		Description: "Show document and chunk counts, the embedding model and recently ingested documents.",
	}, s.handleStatus)

	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocumentsInput) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	opts := search.DefaultSearchOptions()
	if input.Limit > 0 {
		opts.TopK = input.Limit
	}
	if input.MinScore != 0 {
		opts.MinScore = input.MinScore
	}

	results, err := s.backend.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchDocumentsOutput{}, fmt.Errorf("search failed: %w", err)
	}

	output := SearchDocumentsOutput{
		Results: passages(results),
		Count:   len(results),
	}
	if len(results) == 0 {
		output.Message = "No matching passages found. Ingest documents or try broader terms."
	}
	return nil, output, nil
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.backend.Query(ctx, input.Question, input.TopK)
	if err != nil {
		return nil, AskOutput{}, fmt.Errorf("failed to answer: %w", err)
	}

	return nil, AskOutput{
		Answer:  answer.Answer,
		Sources: passages(answer.Sources),
	}, nil
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestPDFInput) (*mcp.CallToolResult, IngestPDFOutput, error) {
	if input.Path == "" {
		return nil, IngestPDFOutput{}, errors.New("path is required")
	}

	result, err := s.backend.Ingest(ctx, input.Path, pipeline.IngestOptions{DryRun: input.DryRun})
	if errors.Is(err, store.ErrDuplicateDocument) {
		return nil, IngestPDFOutput{
			Duplicate: true,
			Message:   "A document with the same content has already been ingested.",
		}, nil
	}
	if err != nil {
		return nil, IngestPDFOutput{}, fmt.Errorf("ingestion failed: %w", err)
	}

	output := IngestPDFOutput{
		DocumentID: result.DocumentID,
		Filename:   result.Filename,
		TotalPages: result.TotalPages,
		Chunks:     result.Chunks,
		DryRun:     result.DryRun,
		Message:    fmt.Sprintf("Ingested %s: %d pages, %d chunks", result.Filename, result.TotalPages, result.Chunks),
	}
	if result.DryRun {
		output.Message = fmt.Sprintf("Dry run: %s would be stored as %d chunks", result.Filename, result.Chunks)
	}
	return nil, output, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, fmt.Errorf("failed to get stats: %w", err)
	}

	docs, err := s.backend.Documents(ctx, &store.ListOptions{Limit: recentDocuments})
	if err != nil {
		return nil, IndexStatusOutput{}, fmt.Errorf("failed to list documents: %w", err)
	}

	output := IndexStatusOutput{
		Documents:  stats.DocumentCount,
		Chunks:     stats.ChunkCount,
		TotalPages: stats.TotalPages,
		TotalSize:  stats.TotalSize,
		Recent:     make([]Document, len(docs)),
	}
	if stats.Info != nil {
		output.EmbeddingProvider = string(stats.Info.EmbeddingProvider)
		output.EmbeddingModel = stats.Info.EmbeddingModel
		output.EmbeddingDimensions = stats.Info.EmbeddingDimensions
	}
	for i, d := range docs {
		output.Recent[i] = Document{
			ID:         d.ID,
			Filename:   d.Filename,
			TotalPages: d.TotalPages,
			CreatedAt:  d.CreatedAt,
		}
	}
	return nil, output, nil
}

// passages converts search results for tool output, never returning nil.
func passages(results []search.Result) []Passage {
	out := make([]Passage, len(results))
	for i, r := range results {
		out[i] = Passage{
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Score:      r.Score,
			Content:    r.Content,
		}
	}
	return out
}
