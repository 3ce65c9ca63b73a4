package pdf

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFCPUExtractor reads PDFs in-process. pdfcpu parses the document and
// counts its pages; page text is decoded through each font's encoding and
// ToUnicode map.
type PDFCPUExtractor struct {
	maxFileSize int64
}

// NewPDFCPUExtractor creates an in-process extractor.
func NewPDFCPUExtractor(maxFileSize int64) *PDFCPUExtractor {
	return &PDFCPUExtractor{maxFileSize: maxFileSize}
}

// Extract reads the PDF at path.
func (e *PDFCPUExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	info, err := statPDF(path, e.maxFileSize)
	if err != nil {
		return nil, err
	}

	total, err := pageCount(path)
	if err != nil {
		return nil, err
	}

	pages, err := pageTexts(ctx, path, total)
	if err != nil {
		return nil, err
	}

	log.Debug("Extracted PDF", "path", path, "pages", total)
	return newDocument(path, info, total, pages)
}

// pageCount returns the number of pages in the PDF at path.
func pageCount(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF context: %w", err)
	}
	return pdfCtx.PageCount, nil
}

// pageTexts decodes the text of pages 1..total. A page that fails to decode
// is logged and left empty.
func pageTexts(ctx context.Context, path string, total int) ([]string, error) {
	f, r, err := lpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pages := make([]string, total)
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}

		// Font resource names are scoped to the page, so each page builds
		// its own font set.
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn("Failed to decode page text", "path", path, "page", n, "error", err)
			continue
		}
		pages[n-1] = text
	}
	return pages, nil
}
