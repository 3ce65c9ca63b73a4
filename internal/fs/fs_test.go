package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rejoin rebuilds the source text by trimming the overlap from every chunk after the first.
func rejoin(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		b.WriteString(string([]rune(c)[overlap:]))
	}
	return b.String()
}

func TestSplit(t *testing.T) {
	t.Run("empty text yields no chunks", func(t *testing.T) {
		chunks, err := Split("", 600, 75)
		require.NoError(t, err)
		assert.NotNil(t, chunks)
		assert.Empty(t, chunks)
	})

	t.Run("short text yields one chunk", func(t *testing.T) {
		chunks, err := Split("short text", 600, 75)
		require.NoError(t, err)
		assert.Equal(t, []string{"short text"}, chunks)
	})

	t.Run("text of exactly chunk size yields one chunk", func(t *testing.T) {
		text := strings.Repeat("x", 600)
		chunks, err := Split(text, 600, 75)
		require.NoError(t, err)
		assert.Equal(t, []string{text}, chunks)
	})

	t.Run("no terminators cuts at raw boundaries", func(t *testing.T) {
		text := strings.Repeat("a", 1300)
		chunks, err := Split(text, 600, 75)
		require.NoError(t, err)
		require.Len(t, chunks, 3)

		total := 0
		for _, c := range chunks {
			total += len(c)
		}
		assert.Greater(t, total, 1300)
		assert.Equal(t, []int{600, 600, 250}, []int{len(chunks[0]), len(chunks[1]), len(chunks[2])})
		assert.Equal(t, text, rejoin(chunks, 75))
	})

	t.Run("prefers sentence boundaries", func(t *testing.T) {
		chunks, err := Split("Hello world. This is a test of chunking.", 20, 5)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.Equal(t, "Hello world.", chunks[0])
	})

	t.Run("newline counts as a boundary", func(t *testing.T) {
		chunks, err := Split("first line\nsecond line goes on", 16, 2)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.Equal(t, "first line\n", chunks[0])
	})

	t.Run("terminator near window start still advances", func(t *testing.T) {
		text := "a.bcdefghijklmnopqrstuvwxyz"
		chunks, err := Split(text, 10, 5)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.Equal(t, "a.bcdefghi", chunks[0])
		assert.Equal(t, text, rejoin(chunks, 5))
	})

	t.Run("round trip with terminators", func(t *testing.T) {
		text := strings.Repeat("The quick brown fox jumps. Does it? Yes!\nAnother line follows here. ", 40)
		for _, params := range [][2]int{{600, 75}, {100, 10}, {50, 0}, {37, 36}} {
			chunks, err := Split(text, params[0], params[1])
			require.NoError(t, err)
			assert.Equal(t, text, rejoin(chunks, params[1]), "size=%d overlap=%d", params[0], params[1])
			for _, c := range chunks {
				assert.LessOrEqual(t, len(c), params[0])
			}
		}
	})

	t.Run("rejects invalid parameters", func(t *testing.T) {
		for _, params := range [][2]int{{0, 0}, {-1, 0}, {10, 10}, {10, 11}, {10, -1}} {
			_, err := Split("some text", params[0], params[1])
			assert.ErrorIs(t, err, ErrInvalidParameter, "size=%d overlap=%d", params[0], params[1])
		}
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		text := strings.Repeat("é", 1300)
		chunks, err := Split(text, 600, 75)
		require.NoError(t, err)
		require.Len(t, chunks, 3)

		var lengths []int
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c))
			lengths = append(lengths, utf8.RuneCountInString(c))
		}
		assert.Equal(t, []int{600, 600, 250}, lengths)
		assert.Equal(t, text, rejoin(chunks, 75))
	})

	t.Run("accented text with terminators", func(t *testing.T) {
		text := strings.Repeat("A válvula de pressão está ótima. Verificação concluída!\n", 30)
		chunks, err := Split(text, 120, 15)
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks[:len(chunks)-1] {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 120)
			assert.True(t, strings.ContainsAny(c[len(c)-1:], ".!?\n"), "chunk %q", c)
		}
		assert.Equal(t, text, rejoin(chunks, 15))
	})
}

func TestTextChunker(t *testing.T) {
	t.Run("offsets strictly increase and cover the text", func(t *testing.T) {
		chunker, err := NewTextChunker(DefaultChunkOptions())
		require.NoError(t, err)

		text := strings.Repeat("b", 1300)
		chunks, err := chunker.Chunk(text)
		require.NoError(t, err)
		require.Len(t, chunks, 3)

		assert.Equal(t, 0, chunks[0].StartChar)
		assert.Equal(t, len(text), chunks[len(chunks)-1].EndChar)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.Equal(t, text[c.StartChar:c.EndChar], c.Content)
			if i > 0 {
				assert.Greater(t, c.StartChar, chunks[i-1].StartChar)
				assert.LessOrEqual(t, c.StartChar, chunks[i-1].EndChar)
			}
		}
	})

	t.Run("multibyte text stays covered", func(t *testing.T) {
		chunker, err := NewTextChunker(ChunkOptions{ChunkSize: 33, ChunkOverlap: 4})
		require.NoError(t, err)

		text := strings.Repeat("日本語のテキスト。", 20)
		runes := []rune(text)
		chunks, err := chunker.Chunk(text)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.Equal(t, len(runes), chunks[len(chunks)-1].EndChar)
		for i, c := range chunks {
			assert.Equal(t, string(runes[c.StartChar:c.EndChar]), c.Content)
			assert.LessOrEqual(t, c.EndChar-c.StartChar, 33)
			if i > 0 {
				assert.LessOrEqual(t, c.StartChar, chunks[i-1].EndChar)
			}
		}
	})

	t.Run("rejects invalid options", func(t *testing.T) {
		_, err := NewTextChunker(ChunkOptions{ChunkSize: 100, ChunkOverlap: 100})
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestHashContent(t *testing.T) {
	content := []byte("hello world")
	hash1 := HashContent(content)
	hash2 := HashContent(content)
	assert.Equal(t, hash1, hash2)

	hash3 := HashContent([]byte("hello world!"))
	assert.NotEqual(t, hash1, hash3)

	assert.True(t, strings.HasPrefix(hash1, HashPrefix))
	assert.Len(t, hash1, len(HashPrefix)+16)
}

func TestFileWalker(t *testing.T) {
	tmpDir := t.TempDir()

	files := map[string]string{
		"report.pdf":         "%PDF-1.4 report",
		"scan.PDF":           "%PDF-1.4 scan",
		"notes.txt":          "plain notes",
		"archive/old.pdf":    "%PDF-1.4 old",
		"drafts/wip.pdf":     "%PDF-1.4 draft",
		".hidden.pdf":        "%PDF-1.4 hidden",
		"node_modules/x.pdf": "%PDF-1.4 ignored",
		"private/secret.pdf": "%PDF-1.4 secret",
		"renamed.pdf":        "PK\x03\x04 a zip file",
	}

	for path, content := range files {
		fullPath := filepath.Join(tmpDir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("drafts/\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, IgnoreFileName), []byte("private/\n"), 0644))

	walk := func(t *testing.T, opts WalkOptions) []string {
		t.Helper()
		walker, err := NewFileWalker(opts)
		require.NoError(t, err)

		var found []string
		err = walker.Walk(func(info FileInfo) error {
			found = append(found, info.RelPath)
			return nil
		})
		require.NoError(t, err)
		return found
	}

	t.Run("finds pdf documents", func(t *testing.T) {
		opts := DefaultWalkOptions()
		opts.Root = tmpDir
		found := walk(t, opts)

		assert.ElementsMatch(t, []string{
			"report.pdf",
			"scan.PDF",
			filepath.Join("archive", "old.pdf"),
		}, found)
	})

	t.Run("counts skip reasons", func(t *testing.T) {
		opts := DefaultWalkOptions()
		opts.Root = tmpDir

		walker, err := NewFileWalker(opts)
		require.NoError(t, err)
		require.NoError(t, walker.Walk(func(FileInfo) error { return nil }))

		stats := walker.Stats()
		assert.Equal(t, 3, stats.FilesFound)
		assert.Equal(t, 1, stats.Skipped[SkipNotPDF])
		assert.Equal(t, 3, stats.Skipped[SkipHidden]) // .hidden.pdf and both ignore files
		assert.Equal(t, 1, stats.Skipped[SkipExtension])
	})

	t.Run("accepts any pdf name without header check", func(t *testing.T) {
		opts := DefaultWalkOptions()
		opts.Root = tmpDir
		opts.CheckHeader = false
		assert.Contains(t, walk(t, opts), "renamed.pdf")
	})

	t.Run("respects extra ignore patterns", func(t *testing.T) {
		opts := DefaultWalkOptions()
		opts.Root = tmpDir
		opts.IgnorePatterns = []string{"archive/"}
		found := walk(t, opts)

		assert.NotContains(t, found, filepath.Join("archive", "old.pdf"))
		assert.Contains(t, found, "report.pdf")
	})

	t.Run("includes hidden files when configured", func(t *testing.T) {
		opts := DefaultWalkOptions()
		opts.Root = tmpDir
		opts.IncludeHidden = true
		opts.UseGitignore = false
		found := walk(t, opts)

		assert.Contains(t, found, ".hidden.pdf")
		assert.Contains(t, found, filepath.Join("drafts", "wip.pdf"))
		assert.NotContains(t, found, filepath.Join("private", "secret.pdf"))
	})

	t.Run("respects max file count", func(t *testing.T) {
		opts := DefaultWalkOptions()
		opts.Root = tmpDir
		opts.MaxFileCount = 2
		assert.Len(t, walk(t, opts), 2)
	})

	t.Run("skips oversized files", func(t *testing.T) {
		opts := DefaultWalkOptions()
		opts.Root = tmpDir
		opts.MaxFileSize = 5

		walker, err := NewFileWalker(opts)
		require.NoError(t, err)
		require.NoError(t, walker.Walk(func(FileInfo) error { return nil }))

		stats := walker.Stats()
		assert.Equal(t, 0, stats.FilesFound)
		assert.Greater(t, stats.SkippedBytes, int64(0))
		assert.Positive(t, stats.Skipped[SkipTooLarge])
	})
}

func TestFileWalkerErrors(t *testing.T) {
	t.Run("non-existent root", func(t *testing.T) {
		_, err := NewFileWalker(WalkOptions{Root: "/nonexistent/path"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("root is file not directory", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "doc.pdf")
		require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

		_, err := NewFileWalker(WalkOptions{Root: tmpFile})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})
}

func TestDefaultOptions(t *testing.T) {
	walkOpts := DefaultWalkOptions()
	assert.Equal(t, int64(50*1024*1024), walkOpts.MaxFileSize)
	assert.True(t, walkOpts.UseGitignore)
	assert.Equal(t, []string{".pdf"}, walkOpts.Extensions)
	assert.True(t, walkOpts.CheckHeader)

	chunkOpts := DefaultChunkOptions()
	assert.Equal(t, 600, chunkOpts.ChunkSize)
	assert.Equal(t, 75, chunkOpts.ChunkOverlap)
}
