package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/store"
	"github.com/nickcecere/docrag/internal/ui"
)

var statusJSON bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status and statistics",
	Long: `Display information about the document store including:
- Number of ingested documents, pages and chunks
- Embedding provider and model the store was built with
- Most recently ingested document

Examples:
  docrag status
  docrag status --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output statistics as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(nil)
	defer cancel()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.pipeline.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if statusJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(stats)
	}

	fmt.Println(ui.Header.Render("Store Status"))
	fmt.Println()

	if stats.DocumentCount == 0 {
		fmt.Println("No documents ingested.")
		fmt.Println()
		fmt.Println("Run 'docrag ingest <path>' to add some.")
		return nil
	}

	if stats.Info != nil {
		fmt.Printf("  %s %s (%s)\n",
			ui.Dim.Render("Model:"),
			stats.Info.EmbeddingModel,
			stats.Info.EmbeddingProvider,
		)
		fmt.Printf("  %s %d\n",
			ui.Dim.Render("Dimensions:"),
			stats.Info.EmbeddingDimensions,
		)
		fmt.Printf("  %s %s\n",
			ui.Dim.Render("Created:"),
			formatTime(stats.Info.CreatedAt),
		)
	}

	fmt.Printf("  %s %d documents, %d pages, %d chunks\n",
		ui.Dim.Render("Ingested:"),
		stats.DocumentCount,
		stats.TotalPages,
		stats.ChunkCount,
	)
	fmt.Printf("  %s %s\n",
		ui.Dim.Render("Size:"),
		formatBytes(stats.TotalSize),
	)

	recent, err := a.pipeline.Documents(ctx, &store.ListOptions{Limit: 1})
	if err != nil {
		log.Warn("Failed to list documents", "error", err)
	} else if len(recent) > 0 {
		fmt.Printf("  %s %s (%s)\n",
			ui.Dim.Render("Latest:"),
			ui.Filename.Render(recent[0].Filename),
			formatTime(recent[0].CreatedAt),
		)
	}

	fmt.Printf("  %s %s\n",
		ui.Dim.Render("Health:"),
		getHealthStatus(stats, string(a.embedder.Provider()), a.embedder.ModelName()),
	)

	// Show config info
	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Database: %s\n", databaseLocation(a.cfg.Database.Driver, a.cfg.Database.Path))
	fmt.Printf("  Embedding Provider: %s\n", a.cfg.Embeddings.Provider)

	return nil
}

// getHealthStatus returns a health indicator based on stats and the
// configured embedding model.
func getHealthStatus(stats *store.Stats, provider, model string) string {
	if stats.ChunkCount == 0 {
		return ui.Warning.Render("no chunks (documents may have no extractable text)")
	}
	if stats.Info != nil && (string(stats.Info.EmbeddingProvider) != provider || stats.Info.EmbeddingModel != model) {
		return ui.Warning.Render(fmt.Sprintf("configured model %s (%s) differs from the stored one", model, provider))
	}
	return ui.Success.Render("healthy")
}

// databaseLocation describes where the store lives without printing credentials.
func databaseLocation(driver, path string) string {
	if driver == "postgres" {
		return "postgres (dsn from config)"
	}
	return path
}
