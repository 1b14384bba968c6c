package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"getUserById", []string{"get", "User", "By", "Id"}},
		{"HTTPHandler", []string{"HTTP", "Handler"}},
		{"parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"simple", []string{"simple"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitCamelCase(tt.input))
		})
	}
}

func TestSplitIdentifier(t *testing.T) {
	assert.Equal(t, []string{"max", "File", "Size"}, SplitIdentifier("max_FileSize"))
	assert.Equal(t, []string{"snake", "case", "name"}, SplitIdentifier("snake_case_name"))
}

func TestTokenizeCode(t *testing.T) {
	tokens := TokenizeCode("func (s *SessionStore) reindexSession(name string)")

	assert.Contains(t, tokens, "session")
	assert.Contains(t, tokens, "store")
	assert.Contains(t, tokens, "reindex")
	assert.Contains(t, tokens, "name")
	assert.Contains(t, tokens, "string")
	// Single-character fragments are dropped
	assert.NotContains(t, tokens, "s")
}

func TestTokenizeCodeLowercases(t *testing.T) {
	for _, tok := range TokenizeCode("ParseHTTPRequest") {
		assert.Equal(t, tok, toLowerASCII(tok))
	}
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
