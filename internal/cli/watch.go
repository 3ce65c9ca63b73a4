package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/ui"
	"github.com/nickcecere/docrag/internal/watcher"
)

var watchDebounce time.Duration

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest PDFs as they are added to a directory",
	Long: `Watch an uploads directory and ingest every PDF dropped into it.

PDFs already in the directory are ingested first. A file is ingested once it
has not changed for the debounce period, so partially copied uploads are not
read. Documents whose text was already ingested are skipped.

The directory defaults to watch.dir from the configuration ("uploads") and
is created if it does not exist.

Examples:
  # Watch ./uploads
  docrag watch

  # Watch another directory with a longer quiet period
  docrag watch /srv/inbox --debounce 5s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before a file is ingested (default from config)")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	ui.UseTimestamps()

	ctx, cancel := signalContext(func() {
		fmt.Println("\nShutting down...")
	})
	defer cancel()

	a, err := openApp(ctx, appOptions{extractor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.Watch.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	debounce := a.cfg.Watch.Debounce
	if watchDebounce > 0 {
		debounce = watchDebounce
	}

	w, err := watcher.New(
		dir,
		a.pipeline,
		watcher.WithDebounceTime(debounce),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("Upload event", "event", event, "path", path)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Println(ui.Header.Render("Watching for Uploads"))
	fmt.Printf("Directory: %s\n", w.Root())
	fmt.Printf("Provider: %s (%s)\n", a.embedder.Provider(), a.embedder.ModelName())
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	if err := w.Start(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}
