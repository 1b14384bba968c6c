package store

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/shebe-search/shebe/internal/chunk"
	sherr "github.com/shebe-search/shebe/internal/errors"
)

// Names under which the code analysis chain is registered with bleve.
const (
	codeTokenizerName  = "shebe_code_tokenizer"
	codeStopFilterName = "shebe_code_stop"
	codeAnalyzerName   = "shebe_code"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
}

// Index wraps a bleve index over a session's chunk set. Scoring is
// bleve's BM25 implementation; the custom analyzer makes identifiers
// searchable in both snake_case and camelCase form.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// indexDocument is the bleve document for one chunk. Path and Language
// use the keyword analyzer so filters match them verbatim.
type indexDocument struct {
	Content  string `json:"content"`
	Path     string `json:"path"`
	Language string `json:"language"`
}

// Hit is a single ranked match from the index.
type Hit struct {
	ChunkID string
	Score   float64
}

// CreateIndex creates a fresh index at path. An empty path creates an
// in-memory index for tests.
func CreateIndex(path string) (*Index, error) {
	m, err := newIndexMapping()
	if err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeInternal, err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeIndexFailed, err)
	}
	return &Index{index: idx, path: path}, nil
}

// OpenIndex opens an existing index directory, usually the generation
// the session's CURRENT pointer names. A missing or unreadable index is
// reported as corrupt; recovery is an explicit reindex, never automatic.
func OpenIndex(path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, sherr.Newf(sherr.ErrCodeCorruptIndex, "index artifact missing at %s", path)
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeCorruptIndex, err)
	}
	return &Index{index: idx, path: path}, nil
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilterName,
		},
	})
	if err != nil {
		return nil, err
	}

	doc := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Analyzer = codeAnalyzerName
	doc.AddFieldMappingsAt("content", content)

	path := bleve.NewTextFieldMapping()
	path.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("path", path)

	lang := bleve.NewTextFieldMapping()
	lang.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("language", lang)

	m.DefaultMapping = doc
	m.DefaultAnalyzer = codeAnalyzerName
	return m, nil
}

// IndexChunks adds or replaces chunks in the index.
func (x *Index) IndexChunks(ctx context.Context, chunks []*chunk.Chunk, language string) error {
	if len(chunks) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return sherr.Newf(sherr.ErrCodeInternal, "index is closed")
	}

	batch := x.index.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return sherr.Wrap(sherr.ErrCodeIndexFailed, err)
		}
		doc := indexDocument{Content: c.Content, Path: c.FilePath, Language: language}
		if err := batch.Index(c.ID, doc); err != nil {
			return sherr.Wrap(sherr.ErrCodeIndexFailed, err)
		}
	}
	if err := x.index.Batch(batch); err != nil {
		return sherr.Wrap(sherr.ErrCodeIndexFailed, err)
	}
	return nil
}

// Search runs a BM25-ranked query. An optional language restricts hits
// to chunks whose source file carries that language tag.
func (x *Index) Search(ctx context.Context, queryStr string, limit int, language string) ([]*Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, sherr.Newf(sherr.ErrCodeInternal, "index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*Hit{}, nil
	}

	match := bleve.NewMatchQuery(queryStr)
	match.SetField("content")

	var q query.Query = match
	if language != "" {
		lang := bleve.NewTermQuery(strings.ToLower(language))
		lang.SetField("language")
		q = bleve.NewConjunctionQuery(match, lang)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, sherr.Wrap(sherr.ErrCodeTimeout, ctx.Err())
		}
		return nil, sherr.Wrap(sherr.ErrCodeSearchFailed, err)
	}

	hits := make([]*Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, &Hit{ChunkID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close releases the underlying bleve resources.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	if x.index != nil {
		return x.index.Close()
	}
	return nil
}

func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{}, nil
}

// codeTokenizer adapts TokenizeCode to the bleve analysis chain.
type codeTokenizer struct{}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		// Best-effort offsets; the split tokens are lowercased so the
		// lookup is case-insensitive.
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &codeStopFilter{stopWords: buildStopWordSet(codeStopWords)}, nil
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, stop := f.stopWords[strings.ToLower(string(token.Term))]; !stop {
			result = append(result, token)
		}
	}
	return result
}
