package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/nickcecere/docrag/internal/search"
)

// NoResultsAnswer is returned without calling the model when nothing was retrieved.
const NoResultsAnswer = "I couldn't find any relevant passages in the ingested documents to answer your question. Try rephrasing it or ingesting more documents."

// QAService generates answers to questions using retrieved passages as context.
type QAService struct {
	llm  Service
	opts QAOptions
}

// QAOptions configures the Q&A generation.
type QAOptions struct {
	// Temperature controls creativity (0-1).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int

	// MaxContextChunks limits how many search results to include.
	MaxContextChunks int
}

// DefaultQAOptions returns sensible defaults.
func DefaultQAOptions() QAOptions {
	return QAOptions{
		Temperature:      0.3, // Lower for more focused answers
		MaxTokens:        2048,
		MaxContextChunks: 5,
	}
}

// NewQAService creates a new Q&A service.
func NewQAService(llm Service, opts QAOptions) *QAService {
	return &QAService{llm: llm, opts: opts}
}

// Sources returns the results that are passed to the model as context.
func (qa *QAService) Sources(results []search.Result) []search.Result {
	if qa.opts.MaxContextChunks > 0 && len(results) > qa.opts.MaxContextChunks {
		return results[:qa.opts.MaxContextChunks]
	}
	return results
}

// Answer generates an answer to the question using the results as context.
// The model's text is returned unchanged.
func (qa *QAService) Answer(ctx context.Context, question string, results []search.Result) (string, error) {
	if len(results) == 0 {
		return NoResultsAnswer, nil
	}

	answer, err := qa.llm.Complete(ctx, qa.messages(question, results), CompletionOptions{
		Temperature: qa.opts.Temperature,
		MaxTokens:   qa.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	return answer, nil
}

// AnswerStream generates a streaming answer.
func (qa *QAService) AnswerStream(ctx context.Context, question string, results []search.Result) (<-chan string, <-chan error) {
	if len(results) == 0 {
		contentCh := make(chan string, 1)
		errCh := make(chan error)
		contentCh <- NoResultsAnswer
		close(contentCh)
		close(errCh)
		return contentCh, errCh
	}

	return qa.llm.CompleteStream(ctx, qa.messages(question, results), CompletionOptions{
		Temperature: qa.opts.Temperature,
		MaxTokens:   qa.opts.MaxTokens,
		Stream:      true,
	})
}

// messages builds the system and user messages for a question.
func (qa *QAService) messages(question string, results []search.Result) []Message {
	return []Message{
		{
			Role:    "system",
			Content: systemPrompt,
		},
		{
			Role:    "user",
			Content: fmt.Sprintf("Question: %s\n\n%s", question, buildContext(qa.Sources(results))),
		},
	}
}

// buildContext creates the context string from search results.
func buildContext(results []search.Result) string {
	var sb strings.Builder

	sb.WriteString("Here are the relevant passages from the documents:\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "--- Source [%d]: %s (chunk %d, %.0f%% match) ---\n",
			i+1, r.Filename, r.ChunkIndex, r.Score*100)
		sb.WriteString(r.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// System prompt for Q&A.
const systemPrompt = `You are a helpful assistant that answers questions about a collection of documents.

Your role is to:
1. Read the provided passages carefully
2. Answer the user's question using only information found in the passages
3. Be concise but thorough
4. If the passages don't contain enough information to answer, say so

When citing:
- Use [Source N] notation to refer to specific passages
- Mention the document name when relevant
- Quote short phrases when they support the answer

Format your answer in markdown when appropriate.`
