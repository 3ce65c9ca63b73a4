package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/pipeline"
	"github.com/nickcecere/docrag/internal/store"
)

// fakeIngester records ingested paths and fails for names in errs.
type fakeIngester struct {
	mu    sync.Mutex
	paths []string
	errs  map[string]error
}

func (f *fakeIngester) Ingest(ctx context.Context, path string, opts pipeline.IngestOptions) (*pipeline.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if err := f.errs[filepath.Base(path)]; err != nil {
		return nil, err
	}
	return &pipeline.IngestResult{DocumentID: int64(len(f.paths)), Filename: filepath.Base(path), Chunks: 1}, nil
}

func (f *fakeIngester) ingested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

var _ Ingester = (*fakeIngester)(nil)

// eventLog collects callback events.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) record(event, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event+":"+path)
}

func (e *eventLog) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func TestNewCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")

	w, err := New(root, &fakeIngester{})
	require.NoError(t, err)
	assert.Equal(t, root, w.Root())
	assert.DirExists(t, root)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("/uploads/manual.pdf"))
	assert.True(t, isPDF("/uploads/MANUAL.PDF"))
	assert.False(t, isPDF("/uploads/manual.pdf.part"))
	assert.False(t, isPDF("/uploads/.manual.pdf"))
	assert.False(t, isPDF("/uploads/notes.txt"))
}

func TestFlushDebounced(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ingester := &fakeIngester{errs: map[string]error{
		"dup.pdf":    fmt.Errorf("%w: dup.pdf", store.ErrDuplicateDocument),
		"broken.pdf": errors.New("no extractable text"),
	}}
	events := &eventLog{}

	w, err := New(root, ingester, WithDebounceTime(time.Second), WithEventCallback(events.record))
	require.NoError(t, err)

	start := time.Now()
	w.queue(filepath.Join(root, "a.pdf"), start)
	w.queue(filepath.Join(root, "dup.pdf"), start)
	w.queue(filepath.Join(root, "broken.pdf"), start)
	w.queue(filepath.Join(root, "late.pdf"), start.Add(900*time.Millisecond))

	w.flushDebounced(ctx, start.Add(500*time.Millisecond))
	assert.Empty(t, ingester.ingested())

	w.flushDebounced(ctx, start.Add(time.Second))
	assert.Len(t, ingester.ingested(), 3)
	assert.ElementsMatch(t, []string{
		EventIngested + ":a.pdf",
		EventDuplicate + ":dup.pdf",
		EventFailed + ":broken.pdf",
	}, events.all())

	// late.pdf is still inside its quiet period.
	w.flushDebounced(ctx, start.Add(1500*time.Millisecond))
	assert.Len(t, ingester.ingested(), 3)

	w.flushDebounced(ctx, start.Add(2*time.Second))
	assert.Len(t, ingester.ingested(), 4)
}

func TestHandleEvent(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, &fakeIngester{})
	require.NoError(t, err)

	pdfPath := filepath.Join(root, "manual.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0644))
	txtPath := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("notes"), 0644))

	w.handleEvent(fsnotify.Event{Name: pdfPath, Op: fsnotify.Create}, nil)
	w.handleEvent(fsnotify.Event{Name: txtPath, Op: fsnotify.Create}, nil)
	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "gone.pdf"), Op: fsnotify.Write}, nil)

	w.pendingMu.Lock()
	assert.Len(t, w.pending, 1)
	assert.Contains(t, w.pending, pdfPath)
	w.pendingMu.Unlock()

	w.handleEvent(fsnotify.Event{Name: pdfPath, Op: fsnotify.Remove}, nil)

	w.pendingMu.Lock()
	assert.Empty(t, w.pending)
	w.pendingMu.Unlock()
}

func TestStartIngestsExistingAndNewUploads(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "existing.pdf")
	require.NoError(t, os.WriteFile(existing, []byte("%PDF-1.4"), 0644))

	ingester := &fakeIngester{}
	w, err := New(root, ingester, WithDebounceTime(40*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{existing}, ingester.ingested())
	}, 5*time.Second, 10*time.Millisecond)

	uploaded := filepath.Join(root, "uploaded.pdf")
	require.NoError(t, os.WriteFile(uploaded, []byte("%PDF-1.4"), 0644))

	assert.Eventually(t, func() bool {
		return len(ingester.ingested()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uploaded, ingester.ingested()[1])

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
