package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/search"
	"github.com/nickcecere/docrag/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Display current configuration settings and config file locations.

Settings can be overridden with DOCRAG_* environment variables, for example
DOCRAG_EMBEDDINGS_PROVIDER=openai. A .env file in the working directory is
read first.

Examples:
  # Show current configuration
  docrag config

  # Show config file paths
  docrag config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:  .docragrc.yaml (searched from cwd upward)\n")
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Database:      %s\n", databaseLocation(cfg.Database.Driver, cfg.Database.Path))
		return nil
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	switch cfg.Embeddings.Provider {
	case "ollama":
		fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
		fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	case "openai":
		fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
		if cfg.Embeddings.OpenAI.BaseURL != "" {
			fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
		}
		fmt.Printf("  API Key: %s\n", keyStatus(cfg.Embeddings.OpenAI.APIKey))
	case "gemini":
		fmt.Printf("  Gemini Model: %s\n", cfg.Embeddings.Gemini.Model)
		fmt.Printf("  API Key: %s\n", keyStatus(cfg.Embeddings.Gemini.APIKey))
	case "hash":
		fmt.Printf("  Dimensions: %d\n", cfg.Embeddings.Hash.Dimensions)
	}
	fmt.Printf("  Batch Size: %d\n", cfg.Embeddings.BatchSize)
	if cfg.Embeddings.RequestsPerSecond > 0 {
		fmt.Printf("  Rate Limit: %.1f req/s\n", cfg.Embeddings.RequestsPerSecond)
	}
	fmt.Printf("  Max Retries: %d\n", cfg.Embeddings.MaxRetries)
	fmt.Println()

	fmt.Println(ui.Bold.Render("LLM:"))
	fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
	switch cfg.LLM.Provider {
	case "ollama":
		fmt.Printf("  Ollama URL: %s\n", cfg.LLM.Ollama.URL)
		fmt.Printf("  Ollama Model: %s\n", cfg.LLM.Ollama.Model)
	case "openai":
		fmt.Printf("  OpenAI Model: %s\n", cfg.LLM.OpenAI.Model)
		fmt.Printf("  API Key: %s\n", keyStatus(cfg.LLM.OpenAI.APIKey))
	case "anthropic":
		fmt.Printf("  Anthropic Model: %s\n", cfg.LLM.Anthropic.Model)
		fmt.Printf("  API Key: %s\n", keyStatus(cfg.LLM.Anthropic.APIKey))
	case "gemini":
		fmt.Printf("  Gemini Model: %s\n", cfg.LLM.Gemini.Model)
		fmt.Printf("  API Key: %s\n", keyStatus(cfg.LLM.Gemini.APIKey))
	}
	fmt.Printf("  Temperature: %.2f\n", cfg.LLM.Temperature)
	fmt.Printf("  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Chunking:"))
	fmt.Printf("  Chunk Size: %d\n", cfg.Chunking.ChunkSize)
	fmt.Printf("  Chunk Overlap: %d\n", cfg.Chunking.ChunkOverlap)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Retrieval:"))
	fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)
	if cfg.Retrieval.MinScore > search.NoMinScore {
		fmt.Printf("  Min Score: %.2f\n", cfg.Retrieval.MinScore)
	} else {
		fmt.Println("  Min Score: none")
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("PDF:"))
	fmt.Printf("  Extractor: %s\n", cfg.PDF.Extractor)
	fmt.Printf("  Max File Size: %s\n", formatBytes(cfg.PDF.MaxFileSize))
	fmt.Printf("  Max File Count: %d\n", cfg.PDF.MaxFileCount)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Database:"))
	fmt.Printf("  Driver: %s\n", cfg.Database.Driver)
	fmt.Printf("  Location: %s\n", databaseLocation(cfg.Database.Driver, cfg.Database.Path))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Watch:"))
	fmt.Printf("  Directory: %s\n", cfg.Watch.Dir)
	fmt.Printf("  Debounce: %s\n", cfg.Watch.Debounce)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}

// keyStatus reports whether an API key is set without printing it.
func keyStatus(key string) string {
	if key == "" {
		return ui.Warning.Render("not set")
	}
	return "set"
}
