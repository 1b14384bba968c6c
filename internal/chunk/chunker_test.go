package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sherr "github.com/shebe-search/shebe/internal/errors"
)

func repoContent(lines int) string {
	var sb strings.Builder
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&sb, "func handlerNumber%d(w http.ResponseWriter, r *http.Request) error { return nil }\n", i)
	}
	return sb.String()
}

func TestSplitCoversWholeFile(t *testing.T) {
	content := repoContent(200)

	chunks, err := Split("internal/api/handlers.go", content, 500, 100)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Chunks are contiguous or overlapping, never gapped
	assert.Equal(t, 0, chunks[0].StartByte)
	assert.Equal(t, len(content), chunks[len(chunks)-1].EndByte)

	// Reconstructing with overlap removed yields the original bytes
	var sb strings.Builder
	prevEnd := 0
	for _, c := range chunks {
		require.LessOrEqual(t, c.StartByte, prevEnd, "gap before chunk %d", c.Seq)
		require.Equal(t, content[c.StartByte:c.EndByte], c.Content)
		sb.WriteString(c.Content[prevEnd-c.StartByte:])
		prevEnd = c.EndByte
	}
	assert.Equal(t, content, sb.String())
}

func TestSplitExactOverlap(t *testing.T) {
	// An early newline close to the chunk start must not shrink the
	// shared region: every consecutive pair shares exactly overlap runes.
	shortFirstLine := strings.Repeat("a", 200) + "\n" + strings.Repeat("b", 400)

	tests := []struct {
		name    string
		content string
		size    int
		overlap int
	}{
		{"typical parameters", repoContent(200), 500, 100},
		{"overlap near size", shortFirstLine, 250, 220},
		{"overlap at window edge", shortFirstLine, 250, 200},
		{"no newlines at all", strings.Repeat("x", 900), 300, 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split("main.go", tt.content, tt.size, tt.overlap)
			require.NoError(t, err)
			require.Greater(t, len(chunks), 1)

			for i := 1; i < len(chunks); i++ {
				prev, cur := chunks[i-1], chunks[i]
				shared := len([]rune(tt.content[cur.StartByte:prev.EndByte]))
				assert.Equal(t, tt.overlap, shared,
					"chunks %d and %d share %d runes", i-1, i, shared)
			}
		})
	}
}

func TestSplitDeterministic(t *testing.T) {
	content := repoContent(150)

	first, err := Split("a.go", content, 700, 120)
	require.NoError(t, err)
	second, err := Split("a.go", content, 700, 120)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestSplitBoundaryTermRecall(t *testing.T) {
	// Given content where terms fall on every possible chunk boundary
	var words []string
	var sb strings.Builder
	for i := 0; i < 400; i++ {
		w := fmt.Sprintf("uniqueTermNumber%04d", i)
		words = append(words, w)
		sb.WriteString(w)
		sb.WriteString("\n")
	}
	content := sb.String()

	// When chunking with an overlap wider than any single term
	chunks, err := Split("terms.txt", content, 300, 60)
	require.NoError(t, err)

	// Then every term is fully contained in at least one chunk
	for _, w := range words {
		found := false
		for _, c := range chunks {
			if strings.Contains(c.Content, w) {
				found = true
				break
			}
		}
		assert.True(t, found, "term %s not whole in any chunk", w)
	}
}

func TestSplitPrefersNewlineBoundary(t *testing.T) {
	content := repoContent(100)

	chunks, err := Split("b.go", content, 500, 50)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Every non-final chunk ends at a line break
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c.Content, "\n"), "chunk %d cut mid-line", c.Seq)
	}
}

func TestSplitLineRanges(t *testing.T) {
	content := "line one\nline two\nline three\nline four\n"

	chunks, err := Split("small.txt", content, 1500, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 4, chunks[0].EndLine)
}

func TestSplitNeverSplitsRunes(t *testing.T) {
	// Multi-byte runes with no whitespace forces hard cuts
	content := strings.Repeat("日本語のテキスト", 400)

	chunks, err := Split("unicode.txt", content, 300, 40)
	require.NoError(t, err)

	for _, c := range chunks {
		assert.True(t, strings.ToValidUTF8(c.Content, "") == c.Content,
			"chunk %d split a code point", c.Seq)
	}
}

func TestSplitEmptyContent(t *testing.T) {
	chunks, err := Split("empty.go", "", 1500, 200)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitRejectsInvalidUTF8(t *testing.T) {
	_, err := Split("bad.bin", string([]byte{0x66, 0xff, 0xfe, 0x67}), 1500, 200)
	require.Error(t, err)
	assert.Equal(t, sherr.ErrCodeEncoding, sherr.GetCode(err))
}

func TestSplitRejectsBinaryContent(t *testing.T) {
	_, err := Split("blob.dat", "ELF\x00\x00\x00header", 1500, 200)
	require.Error(t, err)
	assert.Equal(t, sherr.ErrCodeUnsupported, sherr.GetCode(err))
}

func TestSplitRejectsBadParameters(t *testing.T) {
	_, err := Split("a.go", "content", 100, 100)
	require.Error(t, err)
	assert.Equal(t, sherr.ErrCodeInvalidInput, sherr.GetCode(err))
}

func TestChunkIDStable(t *testing.T) {
	id1 := ChunkID("internal/api/handlers.go", 1024)
	id2 := ChunkID("internal/api/handlers.go", 1024)
	other := ChunkID("internal/api/handlers.go", 2048)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, other)
	assert.Len(t, id1, 16)
}
