package refs

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/shebe-search/shebe/internal/config"
	"github.com/shebe-search/shebe/internal/engine"
	sherr "github.com/shebe-search/shebe/internal/errors"
	"github.com/shebe-search/shebe/internal/session"
	"github.com/shebe-search/shebe/internal/store"
)

// perVariantFactor widens the retrieval per variant so aggregation and
// truncation work from a full candidate pool.
const perVariantFactor = 3

// Resolver answers find-references queries over a session.
type Resolver struct {
	mgr    *session.Manager
	eng    *engine.Engine
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a Resolver sharing the engine's manager and config.
func New(mgr *session.Manager, eng *engine.Engine, cfg *config.Config, logger *slog.Logger) *Resolver {
	return &Resolver{mgr: mgr, eng: eng, cfg: cfg, logger: logger}
}

// FindReferences locates occurrences of symbol in a session, grouped by
// file. Within a file lines ascend; files order by their best
// confidence descending, ties by path. At most k matches are returned,
// dropping lowest-confidence entries first.
func (r *Resolver) FindReferences(ctx context.Context, sessionName, symbol string, k int) ([]*FileMatches, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, sherr.Newf(sherr.ErrCodeInvalidQuery, "symbol cannot be empty")
	}
	k, err := r.eng.NormalizeK(k)
	if err != nil {
		return nil, err
	}
	if _, err := r.mgr.GetCurrent(sessionName); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Search.Timeout)
	defer cancel()

	idx, meta, err := session.OpenArtifact(r.mgr.Root(), sessionName)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	defer meta.Close()

	aliases, err := scanAliases(ctx, meta)
	if err != nil {
		return nil, err
	}

	matches, err := r.collect(ctx, idx, meta, symbol, aliases, k)
	if err != nil {
		return nil, err
	}
	return groupAndTruncate(matches, k), nil
}

// collect retrieves candidates for every variant, classifies each line
// bearing the symbol, and deduplicates per (file, line) keeping the
// highest-confidence classification.
func (r *Resolver) collect(ctx context.Context, idx *store.Index, meta *store.Metadata, symbol string, aliases []string, k int) ([]*Match, error) {
	word := regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
	rules := classifierRules(symbol, aliases)
	languages := make(map[string]string)

	type lineKey struct {
		path string
		line int
	}
	best := make(map[lineKey]*Match)

	for _, variant := range variantQueries(symbol, aliases) {
		if err := ctx.Err(); err != nil {
			return nil, sherr.Wrap(sherr.ErrCodeTimeout, err)
		}
		hits, err := idx.Search(ctx, variant, k*perVariantFactor, "")
		if err != nil {
			return nil, err
		}

		for _, hit := range hits {
			c, err := meta.GetChunk(ctx, hit.ChunkID)
			if err != nil {
				continue
			}
			lang, ok := languages[c.FilePath]
			if !ok {
				if rec, err := meta.GetFile(ctx, c.FilePath); err == nil {
					lang = rec.Language
				}
				languages[c.FilePath] = lang
			}

			for i, text := range splitLines(c.Content) {
				if !word.MatchString(text) {
					continue
				}
				lineNo := c.StartLine + i
				category := classify(text, rules)
				m := &Match{
					Path:       c.FilePath,
					Line:       lineNo,
					Text:       strings.TrimRight(text, " \t"),
					RawScore:   hit.Score,
					Category:   category,
					Confidence: confidence(category, text, c.FilePath, lang, symbol),
				}
				key := lineKey{c.FilePath, lineNo}
				if prev, ok := best[key]; !ok || m.Confidence > prev.Confidence {
					best[key] = m
				}
			}
		}
	}

	matches := make([]*Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	return matches, nil
}

// groupAndTruncate applies the aggregation contract: cap at k matches
// dropping lowest confidence first, group by file with lines ascending,
// order files by best confidence descending with path as tie-break.
func groupAndTruncate(matches []*Match, k int) []*FileMatches {
	if len(matches) > k {
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].Confidence != matches[j].Confidence {
				return matches[i].Confidence > matches[j].Confidence
			}
			if matches[i].Path != matches[j].Path {
				return matches[i].Path < matches[j].Path
			}
			return matches[i].Line < matches[j].Line
		})
		matches = matches[:k]
	}

	byFile := make(map[string]*FileMatches)
	for _, m := range matches {
		fm, ok := byFile[m.Path]
		if !ok {
			fm = &FileMatches{Path: m.Path}
			byFile[m.Path] = fm
		}
		fm.Matches = append(fm.Matches, m)
		if m.Confidence > fm.Best {
			fm.Best = m.Confidence
		}
	}

	files := make([]*FileMatches, 0, len(byFile))
	for _, fm := range byFile {
		sort.Slice(fm.Matches, func(i, j int) bool {
			return fm.Matches[i].Line < fm.Matches[j].Line
		})
		files = append(files, fm)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Best != files[j].Best {
			return files[i].Best > files[j].Best
		}
		return files[i].Path < files[j].Path
	})
	return files
}
