// Package embeddings provides text embedding services for document retrieval.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/nickcecere/docrag/internal/config"
)

// ErrModelUnavailable is returned when the embedding model cannot be loaded.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderHash   Provider = "hash"
)

// Service defines the interface for embedding services.
type Service interface {
	// Embed generates an embedding for the given text (for documents).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a query (may use different task prefix).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensions for this model.
	Dimensions() int

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,

	// Gemini models
	"text-embedding-004":   768,
	"gemini-embedding-001": 3072,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates a lazily loaded embedding service based on the configuration.
// Nothing is contacted until the first call.
func NewService(cfg *config.Config) (*Lazy, error) {
	ec := cfg.Embeddings
	req := newRequester(ec.RequestsPerSecond, ec.MaxRetries)

	switch Provider(ec.Provider) {
	case ProviderOllama:
		return NewLazy(ProviderOllama, ec.Ollama.Model, func(ctx context.Context) (Service, error) {
			return NewOllamaService(ec.Ollama.URL, ec.Ollama.Model, req)
		}), nil
	case ProviderOpenAI:
		return NewLazy(ProviderOpenAI, ec.OpenAI.Model, func(ctx context.Context) (Service, error) {
			return NewOpenAIService(ec.OpenAI.APIKey, ec.OpenAI.Model, ec.OpenAI.BaseURL, ec.OpenAI.Dimensions, req)
		}), nil
	case ProviderGemini:
		return NewLazy(ProviderGemini, ec.Gemini.Model, func(ctx context.Context) (Service, error) {
			return NewGeminiService(ctx, ec.Gemini.APIKey, ec.Gemini.Model, ec.Gemini.Dimensions, req)
		}), nil
	case ProviderHash:
		return NewLazy(ProviderHash, HashModelName, func(ctx context.Context) (Service, error) {
			return NewHashService(ec.Hash.Dimensions), nil
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}
}

// firstEmbedding returns the single vector of a one-text request.
func firstEmbedding(embeddings [][]float32, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// checkBatch verifies a provider returned one non-empty vector per input.
func checkBatch(embeddings [][]float32, n int) error {
	if len(embeddings) != n {
		return fmt.Errorf("expected %d embeddings, got %d", n, len(embeddings))
	}
	for i, e := range embeddings {
		if len(e) == 0 {
			return fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return nil
}
