package fs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// pdfMagic starts every PDF file. Readers accept it anywhere in the first
// headerWindow bytes.
var pdfMagic = []byte("%PDF-")

const headerWindow = 1024

// Ignorer defines the interface for pattern matching.
type Ignorer interface {
	MatchesPath(path string) bool
}

// multiIgnorer matches when any of its ignorers does.
type multiIgnorer []Ignorer

// MatchesPath returns true if the path matches any ignore pattern.
func (m multiIgnorer) MatchesPath(path string) bool {
	for _, ig := range m {
		if ig.MatchesPath(path) {
			return true
		}
	}
	return false
}

// SkipReason explains why the walker passed over a file.
type SkipReason string

const (
	SkipIgnored   SkipReason = "ignored"
	SkipHidden    SkipReason = "hidden"
	SkipTooLarge  SkipReason = "too large"
	SkipExtension SkipReason = "extension"
	SkipNotPDF    SkipReason = "not a pdf"
)

// FileWalker finds documents under a directory.
type FileWalker struct {
	opts    WalkOptions
	ignorer Ignorer
	stats   WalkStats
	extSet  map[string]bool
}

var _ Walker = (*FileWalker)(nil)

// NewFileWalker creates a new file walker.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	w := &FileWalker{opts: opts}

	if len(opts.Extensions) > 0 {
		w.extSet = make(map[string]bool, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extSet[strings.ToLower(ext)] = true
		}
	}

	w.ignorer = w.buildIgnorer()
	return w, nil
}

// buildIgnorer combines the configured patterns, the defaults and any
// ignore files found in the root.
func (w *FileWalker) buildIgnorer() Ignorer {
	patterns := append(append([]string{}, w.opts.IgnorePatterns...), defaultIgnorePatterns...)
	ignorers := multiIgnorer{gitignore.CompileIgnoreLines(patterns...)}

	for _, name := range w.ignoreFiles() {
		path := filepath.Join(w.opts.Root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		gi, err := gitignore.CompileIgnoreFile(path)
		if err != nil {
			log.Warn("Failed to parse ignore file", "path", path, "error", err)
			continue
		}
		log.Debug("Using ignore file", "path", path)
		ignorers = append(ignorers, gi)
	}

	return ignorers
}

func (w *FileWalker) ignoreFiles() []string {
	files := []string{IgnoreFileName}
	if w.opts.UseGitignore {
		files = append(files, ".gitignore")
	}
	return files
}

// Walk traverses the directory tree, calling fn for each accepted document.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{Skipped: make(map[SkipReason]int)}

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if relPath == "." {
				return nil
			}
			if w.skipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil {
			log.Debug("Failed to get file info", "path", path, "error", err)
			return nil
		}

		if reason := w.classify(path, relPath, info); reason != "" {
			log.Debug("Skipping file", "path", relPath, "reason", reason)
			w.stats.FilesSkipped++
			w.stats.Skipped[reason]++
			if reason == SkipTooLarge {
				w.stats.SkippedBytes += info.Size()
			}
			return nil
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size()

		return fn(FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
}

// Stats returns the walk statistics.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

func (w *FileWalker) skipDir(name, relPath string) bool {
	if name == ".git" {
		return true
	}
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignorer.MatchesPath(relPath + "/")
}

// classify returns why a file is skipped, or "" when it should be ingested.
// Cheap checks run first; the header is only read for candidates.
func (w *FileWalker) classify(path, relPath string, info os.FileInfo) SkipReason {
	name := info.Name()
	switch {
	case !w.opts.IncludeHidden && strings.HasPrefix(name, "."):
		return SkipHidden
	case w.ignorer.MatchesPath(relPath):
		return SkipIgnored
	case w.extSet != nil && !w.extSet[strings.ToLower(filepath.Ext(name))]:
		return SkipExtension
	case w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize:
		return SkipTooLarge
	case w.opts.CheckHeader && !hasPDFHeader(path):
		return SkipNotPDF
	}
	return ""
}

// hasPDFHeader reports whether the file carries the PDF magic near its start.
func hasPDFHeader(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, headerWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	return bytes.Contains(buf[:n], pdfMagic)
}

// Default patterns to ignore when looking for documents.
var defaultIgnorePatterns = []string{
	"node_modules/",
	"vendor/",
	".DS_Store",
	"Thumbs.db",
	"*.part",
	"*.crdownload",
	"~$*",
}
