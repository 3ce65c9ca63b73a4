// Package watcher ingests PDFs as they are dropped into an uploads directory.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/nickcecere/docrag/internal/pipeline"
	"github.com/nickcecere/docrag/internal/store"
)

// Event names passed to the event callback.
const (
	EventIngested  = "ingested"
	EventDuplicate = "duplicate"
	EventFailed    = "failed"
)

// Ingester ingests a single file.
type Ingester interface {
	Ingest(ctx context.Context, path string, opts pipeline.IngestOptions) (*pipeline.IngestResult, error)
}

// Watcher watches a directory and ingests new or rewritten PDFs once they
// have been quiet for the debounce period.
type Watcher struct {
	root     string
	ingester Ingester

	// pending holds the last event time per file
	pending      map[string]time.Time
	pendingMu    sync.Mutex
	debounceTime time.Duration

	// callback for status updates
	onEvent func(event string, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets how long a file must be quiet before it is ingested.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceTime = d
		}
	}
}

// WithEventCallback sets a callback for ingestion events.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// New creates a watcher for root, creating the directory if needed.
func New(root string, ingester Ingester, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		root:         absRoot,
		ingester:     ingester,
		pending:      make(map[string]time.Time),
		debounceTime: 2 * time.Second,
		onEvent:      func(string, string) {}, // noop default
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Start queues PDFs already in the directory, then watches for changes.
// Blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher); err != nil {
		return err
	}

	log.Info("Watching for uploads", "dir", w.root)

	// Start debounce processor
	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories watches every directory under the root and queues the PDFs
// found on the way.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !d.IsDir() {
			if isPDF(path) {
				w.queue(path, time.Time{})
			}
			return nil
		}

		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// handleEvent processes a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name

	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// Stored documents are content-addressed; removing the upload keeps them.
		w.pendingMu.Lock()
		delete(w.pending, path)
		w.pendingMu.Unlock()
		return
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		if watcher != nil {
			if err := watcher.Add(path); err != nil {
				log.Debug("Failed to watch directory", "path", path, "error", err)
			}
		}
		return
	}

	if isPDF(path) {
		w.queue(path, time.Now())
	}
}

// queue records activity on a file, restarting its quiet period.
func (w *Watcher) queue(path string, at time.Time) {
	w.pendingMu.Lock()
	w.pending[path] = at
	w.pendingMu.Unlock()
}

// isPDF checks if a file looks like a PDF upload.
func isPDF(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".pdf")
}

// processDebounced flushes quiet files periodically.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.flushDebounced(ctx, now)
		}
	}
}

// flushDebounced ingests every pending file that has been quiet for the
// debounce period as of now.
func (w *Watcher) flushDebounced(ctx context.Context, now time.Time) {
	w.pendingMu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounceTime {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range ready {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			relPath = path
		}

		result, err := w.ingester.Ingest(ctx, path, pipeline.IngestOptions{})
		switch {
		case errors.Is(err, store.ErrDuplicateDocument):
			log.Info("Already ingested", "file", relPath)
			w.onEvent(EventDuplicate, relPath)
		case err != nil:
			log.Error("Failed to ingest upload", "file", relPath, "error", err)
			w.onEvent(EventFailed, relPath)
		default:
			log.Info("Ingested upload", "file", relPath, "id", result.DocumentID, "chunks", result.Chunks)
			w.onEvent(EventIngested, relPath)
		}
	}
}
