package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/embeddings"
	"github.com/nickcecere/docrag/internal/llm"
	"github.com/nickcecere/docrag/internal/pdf"
	"github.com/nickcecere/docrag/internal/pipeline"
	"github.com/nickcecere/docrag/internal/store"
)

// app holds the components a command works with.
type app struct {
	cfg      *config.Config
	store    store.Store
	embedder embeddings.Service
	qa       *llm.QAService // nil unless a generator was requested
	pipeline *pipeline.Pipeline
}

// Close releases the store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Debug("Failed to close store", "error", err)
	}
}

// appOptions selects the optional components of an app.
type appOptions struct {
	extractor bool
	generator bool

	// optionalGenerator logs generator errors instead of failing.
	optionalGenerator bool
}

// openApp opens the store and builds the pipeline. The extractor and the
// answer generator are only created when requested, so commands that do not
// need them work without pdftotext or an LLM API key.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := config.Get()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	var extractor pdf.Extractor
	if opts.extractor {
		extractor, err = pdf.NewExtractor(cfg.PDF)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create PDF extractor: %w", err)
		}
	}

	var qa *llm.QAService
	if opts.generator {
		llmService, err := llm.NewService(ctx, cfg)
		switch {
		case err != nil && opts.optionalGenerator:
			log.Warn("Question answering disabled", "error", err)
		case err != nil:
			st.Close()
			return nil, fmt.Errorf("failed to create LLM service: %w", err)
		default:
			// The pipeline already limits retrieval to top-k.
			qa = llm.NewQAService(llmService, llm.QAOptions{
				Temperature: cfg.LLM.Temperature,
				MaxTokens:   cfg.LLM.MaxTokens,
			})
		}
	}

	var generator pipeline.Generator
	if qa != nil {
		generator = qa
	}

	p, err := pipeline.New(cfg, extractor, st, emb, generator)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    st,
		embedder: emb,
		qa:       qa,
		pipeline: p,
	}, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// showSpinner displays an animated spinner on stderr until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			// Clear spinner line
			fmt.Fprint(os.Stderr, "\r\033[2K")
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r%s %s", frames[i], message)
			i = (i + 1) % len(frames)
		}
	}
}

// withSpinner runs fn while a spinner is shown.
func withSpinner(message string, fn func() error) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go showSpinner(message, stop, done)

	err := fn()

	close(stop)
	<-done
	return err
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	t = t.Local()

	// If today, show time only
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}

	// If this year, omit year
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}

	return t.Format("Jan 2, 2006 at 15:04")
}

// truncatePath shortens a path for display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
