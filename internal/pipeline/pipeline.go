// Package pipeline orchestrates document ingestion and question answering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/embeddings"
	"github.com/nickcecere/docrag/internal/fs"
	"github.com/nickcecere/docrag/internal/pdf"
	"github.com/nickcecere/docrag/internal/search"
	"github.com/nickcecere/docrag/internal/store"
)

// ErrNoGenerator is returned by Query when the pipeline was built without a generator.
var ErrNoGenerator = errors.New("no answer generator configured")

// ErrNoExtractor is returned by Ingest when the pipeline was built without an extractor.
var ErrNoExtractor = errors.New("no document extractor configured")

// Generator produces an answer to a question from retrieved passages.
type Generator interface {
	Answer(ctx context.Context, question string, results []search.Result) (string, error)
}

// Pipeline connects extraction, chunking, embedding, storage, retrieval and generation.
type Pipeline struct {
	extractor pdf.Extractor
	store     store.Store
	embedder  embeddings.Service
	chunker   *fs.TextChunker
	searcher  *search.Searcher
	generator Generator
	cfg       *config.Config

	// Progress tracking
	progress Progress
	mu       sync.Mutex
}

// Progress tracks directory ingestion progress.
type Progress struct {
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	TotalChunks    int
	Errors         int
	StartTime      time.Time
	CurrentFile    string
}

// ProgressFunc is called to report progress during ingestion.
type ProgressFunc func(Progress)

// IngestOptions configures ingestion.
type IngestOptions struct {
	// DryRun extracts and chunks without embedding or storing anything.
	DryRun bool

	// IgnorePatterns are additional patterns to ignore when ingesting a directory.
	IgnorePatterns []string

	// OnProgress is called after each file of a directory ingestion.
	OnProgress ProgressFunc
}

// IngestResult describes one ingested document.
type IngestResult struct {
	DocumentID int64  `json:"document_id,omitempty"`
	Filename   string `json:"filename"`
	FilePath   string `json:"file_path"`
	FileHash   string `json:"file_hash"`
	TotalPages int    `json:"total_pages"`
	Chunks     int    `json:"chunks"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// Answer is the result of a query.
type Answer struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer"`
	Sources  []search.Result `json:"sources"`
}

// New creates a pipeline. The generator may be nil for ingest-only use.
func New(cfg *config.Config, extractor pdf.Extractor, st store.Store, emb embeddings.Service, gen Generator) (*Pipeline, error) {
	chunker, err := fs.NewTextChunker(fs.ChunkOptions{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		extractor: extractor,
		store:     st,
		embedder:  emb,
		chunker:   chunker,
		searcher:  search.New(st, emb),
		generator: gen,
		cfg:       cfg,
	}, nil
}

// Ingest extracts, chunks, embeds and stores a single PDF. A document whose
// content hash is already stored is rejected with store.ErrDuplicateDocument
// before any embedding work is done.
func (p *Pipeline) Ingest(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error) {
	if p.extractor == nil {
		return nil, ErrNoExtractor
	}

	doc, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}

	exists, err := p.store.HasHash(ctx, doc.FileHash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", store.ErrDuplicateDocument, doc.Filename)
	}

	chunks, err := p.chunker.Chunk(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s: %w", doc.Filename, err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	result := &IngestResult{
		Filename:   doc.Filename,
		FilePath:   doc.FilePath,
		FileHash:   doc.FileHash,
		TotalPages: doc.TotalPages,
		Chunks:     len(texts),
		DryRun:     opts.DryRun,
	}
	if opts.DryRun {
		log.Debug("Dry run, skipping embedding", "file", doc.Filename, "chunks", len(texts))
		return result, nil
	}

	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	if err := p.ensureInfo(ctx, vectors); err != nil {
		return nil, err
	}

	id, err := p.store.StoreDocument(ctx, store.DocumentInput{
		Filename:    doc.Filename,
		FilePath:    doc.FilePath,
		TotalPages:  doc.TotalPages,
		FileSize:    doc.FileSize,
		FileHash:    doc.FileHash,
		ProcessedAt: doc.ProcessedAt,
	}, texts, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", doc.Filename, err)
	}

	result.DocumentID = id
	log.Info("Ingested document", "id", id, "file", doc.Filename, "pages", doc.TotalPages, "chunks", len(texts))
	return result, nil
}

// embed generates embeddings in batches of the configured size.
func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	batchSize := p.cfg.Embeddings.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultEmbedBatchSize
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := min(i+batchSize, len(texts))
		batch, err := p.embedder.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// ensureInfo records the embedding model on first write and warns when the
// database was built with a different one. A dimension clash is an error.
func (p *Pipeline) ensureInfo(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	info, err := p.store.EnsureInfo(ctx, store.Info{
		EmbeddingProvider:   store.EmbeddingProvider(p.embedder.Provider()),
		EmbeddingModel:      p.embedder.ModelName(),
		EmbeddingDimensions: len(vectors[0]),
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if string(info.EmbeddingProvider) != string(p.embedder.Provider()) || info.EmbeddingModel != p.embedder.ModelName() {
		log.Warn("Embedding model differs from the one this database was built with",
			"stored", fmt.Sprintf("%s/%s", info.EmbeddingProvider, info.EmbeddingModel),
			"current", fmt.Sprintf("%s/%s", p.embedder.Provider(), p.embedder.ModelName()),
		)
	}
	return nil
}

// IngestDir ingests every PDF under root. Failures of individual files are
// logged and counted; duplicates are counted as skipped.
func (p *Pipeline) IngestDir(ctx context.Context, root string, opts IngestOptions) (Progress, error) {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return Progress{}, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return Progress{}, fmt.Errorf("path is not a directory: %s", absPath)
	}

	p.mu.Lock()
	p.progress = Progress{StartTime: time.Now()}
	p.mu.Unlock()

	walker, err := fs.NewFileWalker(fs.WalkOptions{
		Root:           absPath,
		MaxFileSize:    p.cfg.PDF.MaxFileSize,
		MaxFileCount:   p.cfg.PDF.MaxFileCount,
		IgnorePatterns: append(append([]string{}, p.cfg.Ignore...), opts.IgnorePatterns...),
		UseGitignore:   true,
		Extensions:     []string{".pdf"},
		CheckHeader:    true,
	})
	if err != nil {
		return Progress{}, fmt.Errorf("failed to create file walker: %w", err)
	}

	// First pass: collect files and count
	var files []fs.FileInfo
	err = walker.Walk(func(fi fs.FileInfo) error {
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return Progress{}, fmt.Errorf("failed to walk directory: %w", err)
	}

	p.mu.Lock()
	p.progress.TotalFiles = len(files)
	p.mu.Unlock()

	stats := walker.Stats()
	log.Info("Found PDFs to ingest", "count", len(files), "skipped", stats.FilesSkipped, "path", absPath)

	for _, fi := range files {
		select {
		case <-ctx.Done():
			return p.Progress(), ctx.Err()
		default:
		}

		p.mu.Lock()
		p.progress.CurrentFile = fi.RelPath
		p.mu.Unlock()

		result, err := p.Ingest(ctx, fi.Path, opts)

		p.mu.Lock()
		switch {
		case errors.Is(err, store.ErrDuplicateDocument):
			log.Info("Already ingested, skipping", "file", fi.RelPath)
			p.progress.SkippedFiles++
		case err != nil:
			log.Warn("Failed to ingest file", "file", fi.RelPath, "error", err)
			p.progress.Errors++
		default:
			p.progress.ProcessedFiles++
			p.progress.TotalChunks += result.Chunks
		}
		if opts.OnProgress != nil {
			opts.OnProgress(p.progress)
		}
		p.mu.Unlock()

		if ctx.Err() != nil {
			return p.Progress(), ctx.Err()
		}
	}

	final := p.Progress()
	log.Info("Ingestion complete",
		"ingested", final.ProcessedFiles,
		"skipped", final.SkippedFiles,
		"errors", final.Errors,
		"chunks", final.TotalChunks,
		"duration", time.Since(final.StartTime).Round(time.Millisecond),
	)
	return final, nil
}

// Progress returns the current directory ingestion progress.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Search returns the passages closest to the query.
func (p *Pipeline) Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.Result, error) {
	return p.searcher.Search(ctx, query, opts)
}

// Query retrieves the topK passages closest to the question and asks the
// generator for an answer, which is returned unchanged. A retrieval failure
// is logged and the generator is called without context.
func (p *Pipeline) Query(ctx context.Context, question string, topK int) (*Answer, error) {
	if p.generator == nil {
		return nil, ErrNoGenerator
	}

	if topK <= 0 {
		topK = p.cfg.Retrieval.TopK
	}

	opts := search.DefaultSearchOptions()
	opts.TopK = topK
	opts.MinScore = p.cfg.Retrieval.MinScore

	results, err := p.searcher.Search(ctx, question, opts)
	if err != nil {
		if !errors.Is(err, store.ErrRetrievalFailure) {
			return nil, err
		}
		log.Warn("Retrieval failed, answering without context", "error", err)
		results = []search.Result{}
	}

	answer, err := p.generator.Answer(ctx, question, results)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Question: question,
		Answer:   answer,
		Sources:  results,
	}, nil
}

// Documents lists ingested documents.
func (p *Pipeline) Documents(ctx context.Context, opts *store.ListOptions) ([]store.DocumentRecord, error) {
	return p.store.ListDocuments(ctx, opts)
}

// Delete removes a document with its chunks and vectors.
func (p *Pipeline) Delete(ctx context.Context, id int64) error {
	return p.store.DeleteDocument(ctx, id)
}

// Stats returns statistics for the store.
func (p *Pipeline) Stats(ctx context.Context) (*store.Stats, error) {
	return p.store.GetStats(ctx)
}
