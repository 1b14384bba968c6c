package refs

import (
	"regexp"
	"strings"
)

// rule is one ordered predicate of the classifier. The table is
// evaluated most-specific-first and the first match wins; extending to
// a new language or format means adding rows, not changing aggregation.
type rule struct {
	category Category
	pattern  *regexp.Regexp
}

// classifierRules builds the rule table for a symbol. word_match has no
// row: it is the unconditional fallback, because recall matters more
// than precision for discovery.
func classifierRules(symbol string, aliases []string) []rule {
	sym := regexp.QuoteMeta(symbol)

	rules := []rule{
		// Brace instantiation and constructor forms, including the
		// definition site itself (type S struct, class S).
		{CategoryTypeInstantiation, regexp.MustCompile(
			`(?:\b` + sym + `\s*\{|\bnew\s+` + sym + `\b|\btype\s+` + sym + `\b|\bclass\s+` + sym + `\b)`)},
		// Key-value declaration forms in structured config.
		{CategoryTypeAnnotation, regexp.MustCompile(
			`\b[\w-]+:\s*"?` + sym + `"?\s*$`)},
	}

	if len(aliases) > 0 {
		quoted := make([]string, len(aliases))
		for i, a := range aliases {
			quoted[i] = regexp.QuoteMeta(a)
		}
		rules = append(rules, rule{CategoryQualifiedReference, regexp.MustCompile(
			`\b(?:` + strings.Join(quoted, "|") + `)\.` + sym + `\b`)})
	}
	return rules
}

// classify assigns exactly one category to a line.
func classify(line string, rules []rule) Category {
	for _, r := range rules {
		if r.pattern.MatchString(line) {
			return r.category
		}
	}
	return CategoryWordMatch
}

// Confidence bands per category. word_match starts low and earns a
// contextual boost inside test-designated paths.
const (
	confInstantiation           = 0.85
	confInstantiationDefinition = 0.90
	confAnnotation              = 0.90
	confQualified               = 0.75
	confWordMatch               = 0.40
	confWordMatchComment        = 0.45
	confWordMatchTest           = 0.65
	confWordMatchTestComment    = 0.75
)

var definitionPattern = regexp.MustCompile(`\b(?:type|class|interface|struct|enum)\s+`)

// confidence is a deterministic function of (category, contextual
// flags); result order never feeds into it.
func confidence(category Category, line, path, language, symbol string) float64 {
	switch category {
	case CategoryTypeInstantiation:
		if definitionPattern.MatchString(line) {
			return confInstantiationDefinition
		}
		return confInstantiation
	case CategoryTypeAnnotation:
		return confAnnotation
	case CategoryQualifiedReference:
		return confQualified
	}

	// The boost rewards intentional mentions: hits in test-designated
	// paths land in the 0.65-0.75 band, comments there highest since a
	// test's prose names its subject deliberately. A comment in regular
	// code is an incidental prose mention and stays low.
	inTest := isTestPath(path)
	inComment := isCommentLine(line, language)
	switch {
	case inTest && inComment:
		return confWordMatchTestComment
	case inTest:
		return confWordMatchTest
	case inComment:
		return confWordMatchComment
	}
	return confWordMatch
}

// isTestPath recognizes test-designated files across the conventions of
// the supported languages.
func isTestPath(path string) bool {
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."):
		return true
	}
	for _, dir := range strings.Split(path, "/") {
		if dir == "test" || dir == "tests" || dir == "__tests__" || dir == "testdata" {
			return true
		}
	}
	return false
}

// lineCommentPrefixes maps languages to their line comment markers.
var lineCommentPrefixes = map[string][]string{
	"go":         {"//"},
	"c":          {"//"},
	"cpp":        {"//"},
	"java":       {"//"},
	"kotlin":     {"//"},
	"javascript": {"//"},
	"typescript": {"//"},
	"rust":       {"//"},
	"csharp":     {"//"},
	"swift":      {"//"},
	"scala":      {"//"},
	"php":        {"//", "#"},
	"python":     {"#"},
	"ruby":       {"#"},
	"shell":      {"#"},
	"yaml":       {"#"},
	"toml":       {"#"},
	"makefile":   {"#"},
	"dockerfile": {"#"},
	"sql":        {"--"},
}

// isCommentLine reports whether a line is a comment under the file's
// comment syntax. Block comment interiors are approximated by a leading
// "*" for C-family languages.
func isCommentLine(line, language string) bool {
	trimmed := strings.TrimSpace(line)
	prefixes, ok := lineCommentPrefixes[language]
	if !ok {
		prefixes = []string{"//", "#"}
	}
	for _, p := range prefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	if strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*") {
		return hasCStyleComments(language)
	}
	return false
}

func hasCStyleComments(language string) bool {
	switch language {
	case "go", "c", "cpp", "java", "kotlin", "javascript", "typescript",
		"rust", "csharp", "swift", "scala", "php", "css", "markdown", "":
		return true
	}
	return false
}

func splitLines(content string) []string {
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
