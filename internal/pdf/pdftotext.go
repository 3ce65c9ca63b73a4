package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// PDFToTextExtractor extracts text with poppler's pdftotext.
type PDFToTextExtractor struct {
	tool        string
	maxFileSize int64
	runner      CommandRunner
}

// NewPDFToTextExtractor creates a pdftotext-based extractor. A nil runner
// uses ExecRunner.
func NewPDFToTextExtractor(tool string, maxFileSize int64, runner CommandRunner) *PDFToTextExtractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PDFToTextExtractor{
		tool:        tool,
		maxFileSize: maxFileSize,
		runner:      runner,
	}
}

// Extract reads the PDF at path.
func (e *PDFToTextExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	info, err := statPDF(path, e.maxFileSize)
	if err != nil {
		return nil, err
	}

	out, err := e.runner.Run(ctx, e.tool, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPDFToolNotFound, e.tool)
		}
		return nil, fmt.Errorf("pdftotext failed for %s: %w", path, err)
	}

	// Pages are separated by form feeds, with one after the last page.
	pages := strings.Split(strings.TrimSuffix(string(out), "\f"), "\f")
	for i, p := range pages {
		pages[i] = trimLines(p)
	}

	count, err := pageCount(path)
	if err != nil {
		log.Debug("Falling back to form feed page count", "path", path, "error", err)
		count = len(pages)
	}

	log.Debug("Extracted PDF with pdftotext", "path", path, "pages", count)
	return newDocument(path, info, count, pages)
}

// trimLines strips trailing spaces that -layout leaves on each line.
func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.Join(lines, "\n")
}
