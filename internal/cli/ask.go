package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/pipeline"
	"github.com/nickcecere/docrag/internal/search"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	askTopK   int
	askJSON   bool
	askRaw    bool
	askStream bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the ingested documents",
	Long: `Retrieve the passages closest to the question and ask the configured LLM
to answer from them. The answer cites its sources as [Source N].

Examples:
  docrag ask "How often should the valves be checked?"

  # Use more passages as context
  docrag ask "Summarise the safety procedures" -k 10`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer and sources as JSON")
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "print the answer without markdown rendering")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	log.Debug("Answering", "question", question, "top_k", askTopK)

	ctx, cancel := signalContext(nil)
	defer cancel()

	a, err := openApp(ctx, appOptions{generator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if askStream && !askJSON {
		return streamAnswer(ctx, a, question)
	}

	var answer *pipeline.Answer
	err = withSpinner("Thinking", func() error {
		var err error
		answer, err = a.pipeline.Query(ctx, question, askTopK)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to answer: %w", err)
	}

	if askJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(answer)
	}

	rendered := answer.Answer
	if !askRaw {
		if out, err := renderMarkdown(answer.Answer); err == nil {
			rendered = out
		} else {
			log.Debug("Failed to render markdown", "error", err)
		}
	}

	fmt.Println(ui.SectionTitle.Render("Answer"))
	fmt.Println(rendered)

	printSources(answer.Sources)
	return nil
}

// streamAnswer retrieves passages and prints the answer token by token.
func streamAnswer(ctx context.Context, a *app, question string) error {
	opts := search.DefaultSearchOptions()
	opts.TopK = a.cfg.Retrieval.TopK
	if askTopK > 0 {
		opts.TopK = askTopK
	}
	opts.MinScore = a.cfg.Retrieval.MinScore

	var results []search.Result
	err := withSpinner("Retrieving passages", func() error {
		var err error
		results, err = a.pipeline.Search(ctx, question, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to retrieve passages: %w", err)
	}

	fmt.Println(ui.SectionTitle.Render("Answer"))
	contentCh, errCh := a.qa.AnswerStream(ctx, question, results)
	for token := range contentCh {
		fmt.Print(token)
	}
	fmt.Println()
	if err := <-errCh; err != nil {
		return fmt.Errorf("failed to answer: %w", err)
	}

	printSources(a.qa.Sources(results))
	return nil
}

func printSources(sources []search.Result) {
	if len(sources) == 0 {
		return
	}

	fmt.Println(ui.HorizontalRule(60))
	fmt.Println(ui.SectionTitle.Render("Sources"))
	for i, src := range sources {
		fmt.Printf("  %s %s %s\n",
			ui.FormatCitation(i+1),
			ui.FormatSource(src.Filename, src.ChunkIndex),
			ui.FormatScore(src.Score))
	}
}
