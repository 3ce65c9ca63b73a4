package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/store"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	listLimit  int
	listOffset int
	listJSON   bool

	deleteYes bool
)

// listCmd lists ingested documents.
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List ingested documents",
	Long: `List ingested documents, newest first.

Examples:
  docrag list
  docrag list --limit 50 --offset 50`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// deleteCmd deletes a document and its chunks.
var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an ingested document",
	Long: `Delete a document together with its chunks and embeddings.
Document IDs are shown by 'docrag list'.

Examples:
  docrag delete 12
  docrag delete 12 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of documents")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "number of documents to skip")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output documents as JSON")

	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(nil)
	defer cancel()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.pipeline.Documents(ctx, &store.ListOptions{Limit: listLimit, Offset: listOffset})
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if listJSON {
		if docs == nil {
			docs = []store.DocumentRecord{}
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(docs)
	}

	if len(docs) == 0 {
		fmt.Println("No documents found.")
		return nil
	}

	fmt.Printf("%s  %s  %s  %s  %s\n",
		ui.Bold.Render(fmt.Sprintf("%6s", "ID")),
		ui.Bold.Render(fmt.Sprintf("%-40s", "Filename")),
		ui.Bold.Render(fmt.Sprintf("%5s", "Pages")),
		ui.Bold.Render(fmt.Sprintf("%9s", "Size")),
		ui.Bold.Render("Ingested"),
	)
	for _, d := range docs {
		fmt.Printf("%6d  %s  %5d  %9s  %s\n",
			d.ID,
			ui.Filename.Render(fmt.Sprintf("%-40s", truncatePath(d.Filename, 40))),
			d.TotalPages,
			formatBytes(d.FileSize),
			ui.Dim.Render(formatTime(d.CreatedAt)),
		)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid document id: %s", args[0])
	}

	if !deleteYes && !confirm(fmt.Sprintf("Delete document %d and all its chunks?", id)) {
		fmt.Println("Aborted.")
		return nil
	}

	ctx, cancel := signalContext(nil)
	defer cancel()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.pipeline.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("document %d not found", id)
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("✓ Deleted document %d", id)))
	return nil
}

// confirm asks a yes/no question on stdin.
func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
