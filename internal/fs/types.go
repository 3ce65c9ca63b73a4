// Package fs provides document discovery and text chunking for ingestion.
package fs

import (
	"errors"
	"time"
)

// ErrInvalidParameter is returned when chunking parameters would not terminate.
var ErrInvalidParameter = errors.New("invalid chunking parameter")

// FileInfo represents metadata about a document file found on disk.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// Chunk represents a piece of a document's text for embedding.
type Chunk struct {
	Content    string // The text content of the chunk
	StartChar  int    // Starting character (rune) offset in the source text
	EndChar    int    // Ending character offset (exclusive)
	ChunkIndex int    // Zero-based position within the document
}

// IgnoreFileName is read from the root of an ingested directory in addition
// to .gitignore. It uses gitignore syntax.
const IgnoreFileName = ".docragignore"

// WalkOptions configures the file walker.
type WalkOptions struct {
	Root string

	// MaxFileSize skips larger files; zero means no limit.
	MaxFileSize int64

	// MaxFileCount stops the walk after this many accepted files; zero means no limit.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	IncludeHidden bool

	// UseGitignore also applies the root's .gitignore.
	UseGitignore bool

	// Extensions limits the walk to these file extensions, matched case-insensitively.
	Extensions []string

	// CheckHeader skips files that do not start with the PDF magic bytes.
	CheckHeader bool
}

// ChunkOptions configures the chunker.
type ChunkOptions struct {
	// ChunkSize is the window size in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters repeated at the start of the next chunk.
	ChunkOverlap int
}

// DefaultWalkOptions returns sensible defaults for walking.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:  50 * 1024 * 1024, // 50MB
		MaxFileCount: 10000,
		UseGitignore: true,
		Extensions:   []string{".pdf"},
		CheckHeader:  true,
	}
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    600,
		ChunkOverlap: 75,
	}
}

// Walker walks a directory tree and yields files.
type Walker interface {
	// Walk walks the directory tree and calls fn for each file.
	// The walk stops if fn returns an error.
	Walk(fn func(FileInfo) error) error

	// Stats returns statistics about the walk.
	Stats() WalkStats
}

// WalkStats contains statistics from a directory walk.
type WalkStats struct {
	FilesFound   int
	FilesSkipped int
	DirsSkipped  int
	TotalBytes   int64 // bytes of accepted files
	SkippedBytes int64 // bytes of files over the size limit

	// Skipped counts skipped files by reason.
	Skipped map[SkipReason]int
}

// Chunker splits document text into chunks.
type Chunker interface {
	Chunk(content string) ([]Chunk, error)
}
