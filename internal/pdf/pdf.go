// Package pdf extracts text and metadata from PDF files for ingestion.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/fs"
)

var (
	// ErrNoText is returned when a PDF yields no extractable text.
	ErrNoText = errors.New("no extractable text")

	// ErrPDFToolNotFound is returned when the configured external extractor is missing.
	ErrPDFToolNotFound = errors.New("pdf extraction tool not found")

	// ErrFileTooLarge is returned when a PDF exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// Document is the text and metadata extracted from one PDF.
type Document struct {
	Filename    string
	FilePath    string
	TotalPages  int
	FileSize    int64
	ProcessedAt time.Time
	FileHash    string
	Content     string
}

// Extractor extracts a Document from a PDF file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Document, error)
}

// NewExtractor creates the extractor selected by cfg.Extractor.
// "auto" uses pdftotext when it is installed and pdfcpu otherwise.
func NewExtractor(cfg config.PDFConfig) (Extractor, error) {
	tool := cfg.PDFToTextPath
	if tool == "" {
		tool = config.DefaultPDFToTextPath
	}

	switch cfg.Extractor {
	case "pdfcpu":
		return NewPDFCPUExtractor(cfg.MaxFileSize), nil
	case "pdftotext":
		if _, err := exec.LookPath(tool); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPDFToolNotFound, tool)
		}
		return NewPDFToTextExtractor(tool, cfg.MaxFileSize, nil), nil
	case "", "auto":
		if _, err := exec.LookPath(tool); err == nil {
			log.Debug("Using pdftotext for PDF extraction", "path", tool)
			return NewPDFToTextExtractor(tool, cfg.MaxFileSize, nil), nil
		}
		log.Debug("pdftotext not found, using pdfcpu")
		return NewPDFCPUExtractor(cfg.MaxFileSize), nil
	default:
		return nil, fmt.Errorf("unsupported PDF extractor: %s", cfg.Extractor)
	}
}

// statPDF checks that path is a regular file within maxSize bytes.
func statPDF(path string, maxSize int64) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, path, info.Size(), maxSize)
	}
	return info, nil
}

// newDocument joins page texts, skipping empty pages, and fills in metadata.
// Each kept page is followed by a newline.
func newDocument(path string, info os.FileInfo, pageCount int, pages []string) (*Document, error) {
	var b strings.Builder
	for _, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteByte('\n')
	}

	content := b.String()
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoText, path)
	}

	return &Document{
		Filename:    filepath.Base(path),
		FilePath:    path,
		TotalPages:  pageCount,
		FileSize:    info.Size(),
		ProcessedAt: time.Now(),
		FileHash:    fs.HashContent([]byte(content)),
		Content:     content,
	}, nil
}
