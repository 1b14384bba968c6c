// Package refs resolves "find references to symbol S" queries: it
// derives a family of surface-syntax variants for the symbol, retrieves
// candidate lines through the query engine, classifies each hit with a
// data-driven rule table and assigns calibrated confidence. The results
// are a heuristic discovery aid, not a semantic resolver.
package refs

// Category is the pattern classification of one reference match.
type Category string

const (
	// CategoryTypeInstantiation covers brace and constructor forms.
	CategoryTypeInstantiation Category = "type_instantiation"
	// CategoryTypeAnnotation covers key-value declaration forms.
	CategoryTypeAnnotation Category = "type_annotation"
	// CategoryQualifiedReference covers alias-prefixed forms.
	CategoryQualifiedReference Category = "qualified_reference"
	// CategoryWordMatch is the recall-first fallback.
	CategoryWordMatch Category = "word_match"
)

// Match is one located symbol occurrence. Ephemeral, never persisted.
type Match struct {
	Path       string   `json:"path"`
	Line       int      `json:"line"`
	Text       string   `json:"text"`
	RawScore   float64  `json:"raw_score"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// FileMatches groups a file's matches, lines ascending.
type FileMatches struct {
	Path    string   `json:"path"`
	Best    float64  `json:"best_confidence"`
	Matches []*Match `json:"matches"`
}
