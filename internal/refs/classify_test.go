package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMostSpecificFirst(t *testing.T) {
	rules := classifierRules("Widget", []string{"pkg"})

	tests := []struct {
		name     string
		line     string
		expected Category
	}{
		{"brace instantiation", "w := Widget{Name: \"x\"}", CategoryTypeInstantiation},
		{"slice literal", "widgets := []Widget{}", CategoryTypeInstantiation},
		{"constructor", "w = new Widget()", CategoryTypeInstantiation},
		{"type definition", "type Widget struct {", CategoryTypeInstantiation},
		{"class definition", "class Widget:", CategoryTypeInstantiation},
		{"key-value declaration", "kind: Widget", CategoryTypeAnnotation},
		{"alias qualified", "return pkg.Widget(nil)", CategoryQualifiedReference},
		{"unknown qualifier", "return other.Widget(nil)", CategoryWordMatch},
		{"plain mention", "the Widget is rendered here", CategoryWordMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(tt.line, rules))
		})
	}
}

func TestConfidenceBands(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		line     string
		path     string
		language string
		expected float64
	}{
		{"definition site", CategoryTypeInstantiation, "type Widget struct {", "a.go", "go", 0.90},
		{"plain instantiation", CategoryTypeInstantiation, "w := Widget{}", "a.go", "go", 0.85},
		{"annotation", CategoryTypeAnnotation, "kind: Widget", "deploy.yaml", "yaml", 0.90},
		{"qualified", CategoryQualifiedReference, "pkg.Widget{}", "a.go", "go", 0.75},
		{"plain word", CategoryWordMatch, "uses Widget here", "a.go", "go", 0.40},
		{"comment outside tests", CategoryWordMatch, "// see Widget", "a.go", "go", 0.45},
		{"test path", CategoryWordMatch, "w := makeWidget()", "a_test.go", "go", 0.65},
		{"comment in test", CategoryWordMatch, "// Widget under test", "a_test.go", "go", 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := confidence(tt.category, tt.line, tt.path, tt.language, "Widget")
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestConfidenceMonotonicity(t *testing.T) {
	// Specific categories never rank below an unboosted word match
	word := confidence(CategoryWordMatch, "Widget mention", "a.go", "go", "Widget")
	comment := confidence(CategoryWordMatch, "// Widget", "a.go", "go", "Widget")

	for _, c := range []Category{CategoryTypeInstantiation, CategoryTypeAnnotation, CategoryQualifiedReference} {
		specific := confidence(c, "Widget{}", "a.go", "go", "Widget")
		assert.Greater(t, specific, word)
		assert.Greater(t, specific, comment)
	}
	assert.Less(t, comment, 0.50)
}

func TestIsTestPath(t *testing.T) {
	assert.True(t, isTestPath("internal/api/server_test.go"))
	assert.True(t, isTestPath("tests/fixtures/setup.py"))
	assert.True(t, isTestPath("src/app.spec.ts"))
	assert.True(t, isTestPath("test_models.py"))
	assert.False(t, isTestPath("internal/api/server.go"))
	assert.False(t, isTestPath("contest/entry.go"))
}

func TestIsCommentLine(t *testing.T) {
	assert.True(t, isCommentLine("  // a comment", "go"))
	assert.True(t, isCommentLine("# note", "python"))
	assert.True(t, isCommentLine("-- lookup", "sql"))
	assert.True(t, isCommentLine(" * block interior", "java"))
	assert.False(t, isCommentLine("x := 1 // trailing comments do not count", "go"))
	assert.False(t, isCommentLine("# not a comment in go", "go"))
	assert.False(t, isCommentLine(" * not c-style", "python"))
}

func TestVariantQueriesDeduplicates(t *testing.T) {
	variants := variantQueries("Widget", nil)

	// Decorated forms tokenize identically to the plain word; only
	// token-distinct queries remain.
	keys := make(map[string]bool)
	for _, v := range variants {
		key := tokenKey(v)
		assert.False(t, keys[key], "duplicate variant %q", v)
		keys[key] = true
	}
	assert.Contains(t, variants, "Widget")
	assert.Contains(t, variants, "kind: Widget")
}

func TestVariantQueriesIncludeAliases(t *testing.T) {
	variants := variantQueries("Widget", []string{"ui"})
	assert.Contains(t, variants, "ui.Widget")
}
