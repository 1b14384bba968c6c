package refs

import (
	"context"
	"regexp"

	"github.com/shebe-search/shebe/internal/store"
)

// maxAliasFiles bounds the alias scan; import aliases repeat across a
// repository, so a prefix of the inventory is representative.
const maxAliasFiles = 500

// variantQueries derives the query family for a symbol. Variants that
// tokenize identically are deduplicated; decorated forms exist so the
// retrieval stage sees every surface syntax the classifier recognizes.
func variantQueries(symbol string, aliases []string) []string {
	variants := []string{
		symbol,            // plain word
		"*" + symbol,      // pointer decoration
		"&" + symbol,      // reference decoration
		"[]" + symbol,     // collection decoration
		symbol + "{",      // brace instantiation
		"kind: " + symbol, // key-value declaration
	}
	for _, a := range aliases {
		variants = append(variants, a+"."+symbol)
	}

	// Queries reduce to token sets at retrieval time; drop duplicates.
	seen := make(map[string]bool)
	var out []string
	for _, v := range variants {
		key := tokenKey(v)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func tokenKey(q string) string {
	toks := store.TokenizeCode(q)
	key := ""
	for _, t := range toks {
		key += t + "\x00"
	}
	return key
}

// Import-like lines across the supported languages.
var aliasPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*import\s+([A-Za-z_]\w*)\s+"[^"]+"`),       // import alias "pkg"
	regexp.MustCompile(`^\s*([A-Za-z_]\w*)\s+"[^"]+"\s*$`),            // alias "pkg" inside a block
	regexp.MustCompile(`\bimport\s+\S+\s+as\s+([A-Za-z_]\w*)`),        // import pkg as alias
	regexp.MustCompile(`\bfrom\s+\S+\s+import\s+\S+\s+as\s+([A-Za-z_]\w*)`),
	regexp.MustCompile(`\bimport\s+\*\s+as\s+([A-Za-z_]\w*)\s+from\b`), // import * as alias from
}

// scanAliases collects import aliases from the leading chunk of each
// indexed file. Imports live at the top of a file, so the first chunk
// is enough.
func scanAliases(ctx context.Context, meta *store.Metadata) ([]string, error) {
	files, err := meta.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var aliases []string
	scanned := 0
	for _, f := range files {
		if f.Status != store.FileIndexed {
			continue
		}
		if scanned >= maxAliasFiles {
			break
		}
		scanned++

		chunks, err := meta.ChunksForFile(ctx, f.Path)
		if err != nil || len(chunks) == 0 {
			continue
		}
		for _, line := range splitLines(chunks[0].Content) {
			for _, re := range aliasPatterns {
				m := re.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				alias := m[1]
				if alias == "import" || seen[alias] {
					continue
				}
				seen[alias] = true
				aliases = append(aliases, alias)
			}
		}
	}
	return aliases, nil
}
