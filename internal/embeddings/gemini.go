package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"
)

// GeminiService implements the embedding service using the Gemini API.
type GeminiService struct {
	client     *genai.Client
	model      string
	dimensions int
	req        *requester
}

// NewGeminiService creates a new Gemini embedding service.
// A non-zero dimensions value sets the output dimensionality.
func NewGeminiService(ctx context.Context, apiKey, model string, dimensions int, req *requester) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{
		client:     client,
		model:      model,
		dimensions: dimensions,
		req:        req,
	}, nil
}

// Embed generates an embedding for document text.
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	return firstEmbedding(s.embedTexts(ctx, []string{text}, "RETRIEVAL_DOCUMENT"))
}

// EmbedQuery generates an embedding for query text.
func (s *GeminiService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return firstEmbedding(s.embedTexts(ctx, []string{text}, "RETRIEVAL_QUERY"))
}

// EmbedBatch generates embeddings for multiple document texts.
func (s *GeminiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings, err := s.embedTexts(ctx, texts, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return nil, err
	}
	if err := checkBatch(embeddings, len(texts)); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Dimensions returns the configured or known dimensions, or 0.
func (s *GeminiService) Dimensions() int {
	if s.dimensions > 0 {
		return s.dimensions
	}
	return GetModelDimensions(s.model)
}

// Provider returns the provider name.
func (s *GeminiService) Provider() Provider {
	return ProviderGemini
}

// ModelName returns the model name.
func (s *GeminiService) ModelName() string {
	return s.model
}

// embedTexts performs the actual embedding request. The API returns one
// embedding per content, in request order.
func (s *GeminiService) embedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	log.Debug("Requesting embeddings from Gemini", "model", s.model, "count", len(texts))

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	embedConfig := &genai.EmbedContentConfig{TaskType: taskType}
	if s.dimensions > 0 {
		outputDim := int32(s.dimensions)
		embedConfig.OutputDimensionality = &outputDim
	}

	var result *genai.EmbedContentResponse
	err := s.req.do(ctx, func() error {
		var err error
		result, err = s.client.Models.EmbedContent(ctx, s.model, contents, embedConfig)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		if e != nil {
			embeddings[i] = e.Values
		}
	}
	return embeddings, nil
}
