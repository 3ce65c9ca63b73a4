package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/pipeline"
	"github.com/nickcecere/docrag/internal/store"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	ingestDryRun bool
	ingestIgnore []string
	ingestJSON   bool
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest PDF files or directories",
	Long: `Extract text from PDF files, split it into chunks, embed the chunks and
store them so they can be searched and asked about.

Directories are walked recursively and every .pdf file is ingested.
Documents whose extracted text was already ingested are skipped.

Examples:
  # Ingest a single file
  docrag ingest manual.pdf

  # Ingest a directory, ignoring drafts
  docrag ingest ./docs --ignore "drafts/"

  # Show how a file would be chunked without storing it
  docrag ingest manual.pdf --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "extract and chunk without storing")
	ingestCmd.Flags().StringSliceVar(&ingestIgnore, "ignore", nil, "additional ignore patterns for directories")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output results as JSON")
}

// ingestSummary is the JSON output of the ingest command.
// Documents lists files given directly; directory contents are only counted.
type ingestSummary struct {
	Documents []*pipeline.IngestResult `json:"documents"`
	Ingested  int                      `json:"ingested"`
	Chunks    int                      `json:"chunks"`
	Skipped   int                      `json:"skipped"`
	Errors    int                      `json:"errors"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(func() {
		fmt.Fprintln(os.Stderr, "\nCancelling...")
	})
	defer cancel()

	a, err := openApp(ctx, appOptions{extractor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if !ingestJSON {
		fmt.Println(ui.Header.Render("Ingesting Documents"))
		fmt.Printf("Provider: %s (%s)\n", a.embedder.Provider(), a.embedder.ModelName())
		if ingestDryRun {
			fmt.Println(ui.Warning.Render("Dry run: nothing will be stored"))
		}
		fmt.Println()
	}

	summary := ingestSummary{Documents: []*pipeline.IngestResult{}}
	start := time.Now()
	opts := pipeline.IngestOptions{
		DryRun:         ingestDryRun,
		IgnorePatterns: ingestIgnore,
	}

	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("path does not exist: %w", err)
		}

		if info.IsDir() {
			progress, err := ingestDirectory(ctx, a.pipeline, path, opts)
			if err != nil {
				return err
			}
			summary.Ingested += progress.ProcessedFiles
			summary.Chunks += progress.TotalChunks
			summary.Skipped += progress.SkippedFiles
			summary.Errors += progress.Errors
			continue
		}

		result, err := a.pipeline.Ingest(ctx, path, opts)
		switch {
		case errors.Is(err, store.ErrDuplicateDocument):
			summary.Skipped++
			if !ingestJSON {
				fmt.Printf("%s %s (already ingested)\n", ui.Dim.Render("skip"), ui.Filename.Render(path))
			}
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary.Errors++
			log.Error("Failed to ingest", "file", path, "error", err)
		default:
			summary.Documents = append(summary.Documents, result)
			summary.Ingested++
			summary.Chunks += result.Chunks
			if !ingestJSON {
				printIngested(result)
			}
		}
	}

	if ingestJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}

	fmt.Println()
	fmt.Println(ui.Success.Render("✓ Ingestion complete"))
	fmt.Printf("  Documents: %d\n", summary.Ingested)
	fmt.Printf("  Chunks:    %d\n", summary.Chunks)
	if summary.Skipped > 0 {
		fmt.Printf("  Skipped:   %d\n", summary.Skipped)
	}
	if summary.Errors > 0 {
		fmt.Printf("  Errors:    %s\n", ui.Error.Render(fmt.Sprintf("%d", summary.Errors)))
	}
	fmt.Printf("  Duration:  %s\n", time.Since(start).Round(time.Millisecond))

	if summary.Errors > 0 && summary.Ingested == 0 {
		return fmt.Errorf("%d file(s) failed to ingest", summary.Errors)
	}
	return nil
}

// ingestDirectory ingests every PDF under path, redrawing a progress line on stderr.
func ingestDirectory(ctx context.Context, p *pipeline.Pipeline, path string, opts pipeline.IngestOptions) (pipeline.Progress, error) {
	if !ingestJSON {
		opts.OnProgress = func(progress pipeline.Progress) {
			fmt.Fprintf(os.Stderr, "\r\033[2K%s [%d/%d] %s",
				ui.Dim.Render("ingesting"),
				progress.ProcessedFiles+progress.SkippedFiles+progress.Errors,
				progress.TotalFiles,
				truncatePath(progress.CurrentFile, 60))
		}
	}

	progress, err := p.IngestDir(ctx, path, opts)
	if !ingestJSON {
		fmt.Fprint(os.Stderr, "\r\033[2K")
	}
	if err != nil {
		return progress, fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	if !ingestJSON {
		fmt.Printf("%s %s: %d files, %d chunks\n",
			ui.Success.Render("✓"), ui.Filename.Render(path), progress.ProcessedFiles, progress.TotalChunks)
	}
	return progress, nil
}

func printIngested(result *pipeline.IngestResult) {
	if result.DryRun {
		fmt.Printf("%s %s: %d pages, %d chunks\n",
			ui.Dim.Render("would store"), ui.Filename.Render(result.Filename), result.TotalPages, result.Chunks)
		return
	}
	fmt.Printf("%s %s: %d pages, %d chunks %s\n",
		ui.Success.Render("✓"), ui.Filename.Render(result.Filename), result.TotalPages, result.Chunks,
		ui.Dim.Render(fmt.Sprintf("(id %d)", result.DocumentID)))
}
