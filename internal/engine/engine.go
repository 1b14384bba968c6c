// Package engine executes keyword queries against a session: BM25
// retrieval through the index, filtering, ordering and snippet
// rendering.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/shebe-search/shebe/internal/chunk"
	"github.com/shebe-search/shebe/internal/config"
	sherr "github.com/shebe-search/shebe/internal/errors"
	"github.com/shebe-search/shebe/internal/session"
	"github.com/shebe-search/shebe/internal/store"
)

// Filters restricts search results.
type Filters struct {
	// Language keeps only files with this language tag (e.g. "go").
	Language string
	// PathGlob keeps only paths matching this glob.
	PathGlob string
}

// Snippet is one ranked search result with rendered context.
type Snippet struct {
	Path      string  `json:"path"`
	Line      int     `json:"line"`
	Score     float64 `json:"score"`
	StartLine int     `json:"start_line"`
	Text      string  `json:"text"`
}

// overfetchFactor widens the index request so post-filtering by path
// glob still fills k results.
const overfetchFactor = 3

// Engine runs queries against published session artifacts.
type Engine struct {
	mgr    *session.Manager
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an Engine over the manager's storage root.
func New(mgr *session.Manager, cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{mgr: mgr, cfg: cfg, logger: logger}
}

// NormalizeK validates and defaults the requested result count.
func (e *Engine) NormalizeK(k int) (int, error) {
	if k <= 0 {
		return e.cfg.Search.DefaultK, nil
	}
	if k > e.cfg.Search.MaxK {
		return 0, sherr.Newf(sherr.ErrCodeLimitExceeded,
			"k=%d exceeds the maximum of %d", k, e.cfg.Search.MaxK)
	}
	return k, nil
}

// Search runs a BM25-ranked keyword query. Results are ordered by score
// descending, ties broken by path then line. The query is bounded by
// the configured timeout; on expiry the call fails with no partial
// results.
func (e *Engine) Search(ctx context.Context, sessionName, query string, k int, filters Filters) ([]*Snippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, sherr.Newf(sherr.ErrCodeInvalidQuery, "query cannot be empty")
	}
	k, err := e.NormalizeK(k)
	if err != nil {
		return nil, err
	}
	if _, err := e.mgr.GetCurrent(sessionName); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Search.Timeout)
	defer cancel()

	idx, meta, err := session.OpenArtifact(e.mgr.Root(), sessionName)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	defer meta.Close()

	hits, err := idx.Search(ctx, query, k*overfetchFactor, filters.Language)
	if err != nil {
		return nil, err
	}

	snippets := make([]*Snippet, 0, len(hits))
	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			return nil, sherr.Wrap(sherr.ErrCodeTimeout, err)
		}
		c, err := meta.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			// The chunk table can briefly lag the artifact mid-reindex;
			// skip rather than fail the whole query.
			continue
		}
		if filters.PathGlob != "" && !matchGlob(filters.PathGlob, c.FilePath) {
			continue
		}
		snippets = append(snippets, e.renderSnippet(c, query, hit.Score))
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, sherr.Newf(sherr.ErrCodeTimeout, "query exceeded %s budget", e.cfg.Search.Timeout)
		}
		return nil, sherr.Wrap(sherr.ErrCodeTimeout, err)
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		if snippets[i].Score != snippets[j].Score {
			return snippets[i].Score > snippets[j].Score
		}
		if snippets[i].Path != snippets[j].Path {
			return snippets[i].Path < snippets[j].Path
		}
		return snippets[i].Line < snippets[j].Line
	})
	if len(snippets) > k {
		snippets = snippets[:k]
	}
	return snippets, nil
}

// renderSnippet extracts a fixed-size context window from the chunk
// around the first line matching a query term. Chunk overlap guarantees
// the window never straddles a chunk boundary misaligned with the file.
func (e *Engine) renderSnippet(c *chunk.Chunk, query string, score float64) *Snippet {
	lines := strings.Split(strings.TrimSuffix(c.Content, "\n"), "\n")
	anchor := anchorLine(lines, query)

	contextLines := e.cfg.Search.ContextLines
	lo := anchor - contextLines
	if lo < 0 {
		lo = 0
	}
	hi := anchor + contextLines + 1
	if hi > len(lines) {
		hi = len(lines)
	}

	return &Snippet{
		Path:      c.FilePath,
		Line:      c.StartLine + anchor,
		Score:     score,
		StartLine: c.StartLine + lo,
		Text:      strings.Join(lines[lo:hi], "\n"),
	}
}

// anchorLine picks the first chunk line containing a query term, after
// identifier-aware tokenization on both sides. Falls back to the first
// line.
func anchorLine(lines []string, query string) int {
	terms := store.TokenizeCode(query)
	if len(terms) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}
	for i, line := range lines {
		for _, tok := range store.TokenizeCode(line) {
			if _, ok := want[tok]; ok {
				return i
			}
		}
	}
	return 0
}

// matchGlob matches a path against a glob, against both the full
// relative path and its base name so "*.go" works as expected.
func matchGlob(glob, p string) bool {
	if ok, _ := path.Match(glob, p); ok {
		return true
	}
	if ok, _ := path.Match(glob, path.Base(p)); ok {
		return true
	}
	// Support the common "dir/**" prefix form.
	if strings.HasSuffix(glob, "/**") {
		return strings.HasPrefix(p, strings.TrimSuffix(glob, "/**")+"/")
	}
	return false
}
