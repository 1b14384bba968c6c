// Package scanner discovers indexable files in a repository, applying
// exclusion rules for hidden, vendored, generated, oversized and
// sensitive files. Excluded files are reported with a reason so the
// session inventory can record them.
package scanner

import (
	"path/filepath"
	"strings"
	"time"
)

// FileInfo describes a discovered file.
type FileInfo struct {
	Path     string // Relative to repository root
	AbsPath  string
	Size     int64
	ModTime  time.Time
	Language string // go, python, typescript, ... empty when unknown
}

// Result is one scanner emission: either an eligible file, an excluded
// file with its reason, or a walk error.
type Result struct {
	File     *FileInfo
	Excluded bool
	Reason   string
	Err      error
}

// Options configures a scan.
type Options struct {
	// Root is the repository directory to walk.
	Root string

	// ExcludePatterns extends the default exclusion set.
	ExcludePatterns []string

	// MaxFileSize marks larger files excluded (0 = 10MB).
	MaxFileSize int64
}

// DefaultMaxFileSize applies when Options.MaxFileSize is zero.
const DefaultMaxFileSize = 10 * 1024 * 1024

// languageMap maps extensions and well-known filenames to languages.
var languageMap = map[string]string{
	".go":            "go",
	".py":            "python",
	".js":            "javascript",
	".jsx":           "javascript",
	".ts":            "typescript",
	".tsx":           "typescript",
	".rs":            "rust",
	".java":          "java",
	".kt":            "kotlin",
	".c":             "c",
	".h":             "c",
	".cc":            "cpp",
	".cpp":           "cpp",
	".hpp":           "cpp",
	".cs":            "csharp",
	".rb":            "ruby",
	".php":           "php",
	".swift":         "swift",
	".scala":         "scala",
	".sh":            "shell",
	".bash":          "shell",
	".sql":           "sql",
	".html":          "html",
	".css":           "css",
	".scss":          "css",
	".md":            "markdown",
	".markdown":      "markdown",
	".json":          "json",
	".yaml":          "yaml",
	".yml":           "yaml",
	".toml":          "toml",
	".xml":           "xml",
	".proto":         "protobuf",
	".tf":            "terraform",
	"Dockerfile":     "dockerfile",
	"Makefile":       "makefile",
	"Gemfile":        "ruby",
	"Rakefile":       "ruby",
	"go.mod":         "gomod",
	"CMakeLists.txt": "cmake",
}

// DetectLanguage maps a path to its language tag, empty when unknown.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	if lang, ok := languageMap[base]; ok {
		return lang
	}
	if ext := strings.ToLower(filepath.Ext(base)); ext != "" {
		if lang, ok := languageMap[ext]; ok {
			return lang
		}
	}
	return ""
}
