package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"
	DefaultGeminiEmbedModel  = "text-embedding-004"
	DefaultHashDimensions    = 384
	DefaultEmbedBatchSize    = 32
	DefaultMaxRetries        = 3

	// LLM defaults
	DefaultLLMProvider    = "ollama"
	DefaultOllamaLLMModel = "llama3"
	DefaultOpenAILLMModel = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-haiku-20240307"
	DefaultGeminiLLMModel = "gemini-2.0-flash"
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 1024

	// Chunking defaults
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 75

	// Retrieval defaults
	DefaultTopK     = 5
	DefaultMinScore = -1.0 // no filtering

	// PDF defaults
	DefaultPDFExtractor   = "auto"
	DefaultMaxFileSize    = 50 << 20 // 50MB
	DefaultMaxFileCount   = 10000
	DefaultPDFToTextPath  = "pdftotext"
	DefaultWatchDir       = "uploads"
	DefaultWatchDebounce  = 2 * time.Second
	DefaultDatabaseDriver = "sqlite"
	DefaultMaxConns       = 4

	// Database
	DefaultDBFileName = "docrag.db"
)

// DefaultIgnorePatterns returns the default list of path patterns skipped
// during directory ingestion.
func DefaultIgnorePatterns() []string {
	return []string{
		// Version control
		".git/",
		".svn/",
		".hg/",

		// Dependencies
		"node_modules/",
		"vendor/",
		".venv/",

		// Partial downloads and editor lock files
		"*.part",
		"*.crdownload",
		"~$*",

		// Misc
		".DS_Store",
		"Thumbs.db",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/docrag"
	}
	return filepath.Join(home, ".config", "docrag")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/docrag"
	}
	return filepath.Join(home, ".local", "share", "docrag")
}

// DefaultDatabasePath returns the default database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}
