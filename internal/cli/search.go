package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/search"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	searchContent  bool
	searchLimit    int
	searchMinScore float64
	searchContext  int
	searchJSON     bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the passages closest to a query",
	Long: `Search the ingested documents for the passages most similar to the query.
No answer is generated; use 'docrag ask' for that.

Examples:
  # Show the best matching passages
  docrag search "valve inspection interval"

  # Show content with one neighbouring chunk on each side
  docrag search "pump filter" -c --context 1

  # Only strong matches, as JSON
  docrag search "warranty" --min-score 0.6 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearchCmd,
}

func init() {
	searchCmd.Flags().BoolVarP(&searchContent, "content", "c", false, "show passage content in results")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0.0, "minimum similarity score (-1 to 1, default from config)")
	searchCmd.Flags().IntVar(&searchContext, "context", 0, "neighbouring chunks to show on each side")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	log.Debug("Searching", "query", query, "limit", searchLimit)

	ctx, cancel := signalContext(nil)
	defer cancel()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	opts := search.DefaultSearchOptions()
	opts.TopK = a.cfg.Retrieval.TopK
	if searchLimit > 0 {
		opts.TopK = searchLimit
	}
	opts.MinScore = a.cfg.Retrieval.MinScore
	if cmd.Flags().Changed("min-score") {
		opts.MinScore = searchMinScore
	}
	opts.ContextChunks = searchContext
	opts.IncludeContent = searchContent || searchJSON || searchContext > 0

	var results []search.Result
	err = withSpinner("Searching", func() error {
		var err error
		results, err = a.pipeline.Search(ctx, query, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	displayResults(results, opts.IncludeContent)
	return nil
}

// displayResults formats and displays search results.
func displayResults(results []search.Result, showContent bool) {
	fmt.Printf("Found %d results:\n\n", len(results))

	for i, r := range results {
		fmt.Printf("%s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			ui.FormatSource(r.Filename, r.ChunkIndex),
			ui.FormatScore(r.Score),
		)

		if showContent && r.Content != "" {
			if r.ContextBefore != "" {
				fmt.Println(ui.ContextText.Render(r.ContextBefore))
			}
			fmt.Println(ui.ResultContent.Render(r.Content))
			if r.ContextAfter != "" {
				fmt.Println(ui.ContextText.Render(r.ContextAfter))
			}
		}

		fmt.Println()
	}
}

// outputJSON outputs results as JSON.
func outputJSON(results []search.Result) error {
	if results == nil {
		results = []search.Result{}
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}
