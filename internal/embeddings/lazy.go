package embeddings

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// probeText is embedded once on load to verify the model and learn its dimensions.
const probeText = "dimension probe"

// Loader constructs the underlying embedding service.
type Loader func(ctx context.Context) (Service, error)

// Lazy owns an embedding model and loads it on first use.
//
// A successful load is cached for the life of the process and never modified
// afterwards. A failed load is not cached, so a later call can retry.
type Lazy struct {
	provider Provider
	model    string
	load     Loader

	mu     sync.Mutex
	loaded atomic.Pointer[loadedModel]
}

type loadedModel struct {
	svc        Service
	dimensions int
}

// NewLazy creates a Lazy service around load.
func NewLazy(provider Provider, model string, load Loader) *Lazy {
	return &Lazy{
		provider: provider,
		model:    model,
		load:     load,
	}
}

// Load initializes the model if it has not been loaded yet.
func (l *Lazy) Load(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

func (l *Lazy) get(ctx context.Context) (*loadedModel, error) {
	if m := l.loaded.Load(); m != nil {
		return m, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if m := l.loaded.Load(); m != nil {
		return m, nil
	}

	log.Debug("Loading embedding model", "provider", l.provider, "model", l.model)

	svc, err := l.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrModelUnavailable, l.provider, l.model, err)
	}

	probe, err := svc.Embed(ctx, probeText)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrModelUnavailable, l.provider, l.model, err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("%w: %s/%s returned an empty vector", ErrModelUnavailable, l.provider, l.model)
	}
	if d := svc.Dimensions(); d > 0 && d != len(probe) {
		log.Warn("Embedding dimensions differ from configuration", "model", l.model, "configured", d, "actual", len(probe))
	}

	m := &loadedModel{svc: svc, dimensions: len(probe)}
	l.loaded.Store(m)

	log.Debug("Embedding model loaded", "provider", l.provider, "model", l.model, "dimensions", m.dimensions)
	return m, nil
}

// Embed generates an embedding for document text.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	m, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return m.svc.Embed(ctx, text)
}

// EmbedQuery generates an embedding for query text.
func (l *Lazy) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return m.svc.EmbedQuery(ctx, text)
}

// EmbedBatch generates embeddings for multiple document texts.
func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return m.svc.EmbedBatch(ctx, texts)
}

// Dimensions returns the measured dimensions once loaded, or the known
// dimensions of the model before that (0 if unknown).
func (l *Lazy) Dimensions() int {
	if m := l.loaded.Load(); m != nil {
		return m.dimensions
	}
	return GetModelDimensions(l.model)
}

// Provider returns the provider name.
func (l *Lazy) Provider() Provider {
	return l.provider
}

// ModelName returns the model name.
func (l *Lazy) ModelName() string {
	return l.model
}

var _ Service = (*Lazy)(nil)
