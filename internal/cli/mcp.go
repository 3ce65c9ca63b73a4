package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/mcp"
	"github.com/nickcecere/docrag/internal/pipeline"
	"github.com/nickcecere/docrag/internal/watcher"
)

var (
	mcpNoWatch bool
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server so AI agents can search and
ask questions about the ingested documents.

The server communicates over stdin/stdout and provides the tools:
  - search_documents: Semantic search over ingested passages
  - ask: Answer a question from the documents
  - ingest_pdf: Ingest a PDF file
  - index_status: Document counts and embedding model

By default, the server also watches the uploads directory and ingests new
PDFs in the background. Use --no-watch to disable this.

This command is typically invoked by an MCP client and not run directly.`,
	RunE: runMcpCmd,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpNoWatch, "no-watch", false, "disable the background uploads watcher")
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// MCP server uses stdin/stdout for communication, so redirect logs to stderr
	log.SetOutput(os.Stderr)
	if !debug {
		log.SetLevel(log.InfoLevel)
	}

	ctx, cancel := signalContext(func() {
		log.Info("Received signal, shutting down")
	})
	defer cancel()

	a, err := openApp(ctx, appOptions{extractor: true, generator: true, optionalGenerator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if !mcpNoWatch {
		go startBackgroundWatcher(ctx, a.pipeline, a.cfg.Watch.Dir, a.cfg.Watch.Debounce)
	}

	server := mcp.NewServer(a.pipeline, version)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// startBackgroundWatcher ingests uploads into the pipeline until ctx is cancelled.
func startBackgroundWatcher(ctx context.Context, p *pipeline.Pipeline, dir string, debounce time.Duration) {
	// Wait a bit before starting to let the MCP server initialize
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	w, err := watcher.New(
		dir,
		p,
		watcher.WithDebounceTime(debounce),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("Background watcher event", "event", event, "path", path)
		}),
	)
	if err != nil {
		log.Error("Failed to create watcher", "error", err)
		return
	}

	// Start watching (blocks until context is cancelled)
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Watcher error", "error", err)
	}
}
