package mcp

import "time"

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	Query    string  `json:"query" jsonschema:"the question or phrase to find passages for"`
	Limit    int     `json:"limit,omitempty" jsonschema:"maximum number of passages to return (default 5)"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum similarity score between -1 and 1 (omit to keep every passage)"`
}

// SearchDocumentsOutput contains the matching passages.
type SearchDocumentsOutput struct {
	Results []Passage `json:"results"`
	Count   int       `json:"count"`
	Message string    `json:"message,omitempty"`
}

// Passage is one retrieved chunk with its source document.
type Passage struct {
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the ingested documents"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of passages to use as context (default 5)"`
}

// AskOutput contains the generated answer and the passages it was based on.
type AskOutput struct {
	Answer  string    `json:"answer"`
	Sources []Passage `json:"sources"`
}

// IngestPDFInput defines the input parameters for the ingest_pdf tool.
type IngestPDFInput struct {
	Path   string `json:"path" jsonschema:"path to a PDF file on the server"`
	DryRun bool   `json:"dry_run,omitempty" jsonschema:"extract and chunk without storing"`
}

// IngestPDFOutput describes the ingestion outcome.
type IngestPDFOutput struct {
	DocumentID int64  `json:"document_id,omitempty"`
	Filename   string `json:"filename"`
	TotalPages int    `json:"total_pages,omitempty"`
	Chunks     int    `json:"chunks"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
	Message    string `json:"message"`
}

// IndexStatusInput takes no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput summarises the document store.
type IndexStatusOutput struct {
	Documents           int        `json:"documents"`
	Chunks              int        `json:"chunks"`
	TotalPages          int        `json:"total_pages"`
	TotalSize           int64      `json:"total_size"`
	EmbeddingProvider   string     `json:"embedding_provider,omitempty"`
	EmbeddingModel      string     `json:"embedding_model,omitempty"`
	EmbeddingDimensions int        `json:"embedding_dimensions,omitempty"`
	Recent              []Document `json:"recent"`
}

// Document is a stored document summary.
type Document struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	TotalPages int       `json:"total_pages"`
	CreatedAt  time.Time `json:"created_at"`
}
