package embeddings

import (
	"context"
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// HashModelName identifies vectors produced by HashService.
	HashModelName = "feature-hash-v1"

	// DefaultHashDimensions is used when no dimensionality is configured.
	DefaultHashDimensions = 384
)

var hashTokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

var hashStopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "so", "such", "into", "about", "than", "can", "will", "just", "should",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// HashService is a local embedder that projects word and word-pair counts into
// a fixed number of buckets with xxhash. It needs no model download or network
// access and is fully deterministic.
type HashService struct {
	dimensions int
}

// NewHashService creates a hashing embedder.
func NewHashService(dimensions int) *HashService {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashService{dimensions: dimensions}
}

// Embed generates an embedding for document text.
func (s *HashService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.vector(text), nil
}

// EmbedQuery generates an embedding for query text.
func (s *HashService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts.
func (s *HashService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = s.vector(text)
	}
	return out, nil
}

// Dimensions returns the embedding dimensions.
func (s *HashService) Dimensions() int {
	return s.dimensions
}

// Provider returns the provider name.
func (s *HashService) Provider() Provider {
	return ProviderHash
}

// ModelName returns the model name.
func (s *HashService) ModelName() string {
	return HashModelName
}

func (s *HashService) vector(text string) []float32 {
	acc := make([]float64, s.dimensions)

	tokens := tokenize(text)
	counts := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}

	// Sorted so the float sums are bit-for-bit reproducible.
	for _, feature := range slices.Sorted(maps.Keys(counts)) {
		n := counts[feature]
		weight := 1 + math.Log(float64(n))
		if strings.Contains(feature, " ") {
			weight *= 0.5
		}
		s.add(acc, feature, weight)
	}

	// Texts without usable words still get a stable, non-zero vector.
	if len(counts) == 0 {
		trimmed := strings.ToLower(strings.TrimSpace(text))
		if trimmed == "" {
			trimmed = "\x00empty"
		}
		s.add(acc, trimmed, 1)
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, s.dimensions)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// add hashes feature into a bucket with a sign taken from a second hash bit.
func (s *HashService) add(acc []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(s.dimensions))
	if h&(1<<63) != 0 {
		weight = -weight
	}
	acc[idx] += weight
}

func tokenize(text string) []string {
	raw := hashTokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := hashStopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}
