package scanner

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	sherr "github.com/shebe-search/shebe/internal/errors"
)

// Directories never descended into.
var defaultExcludeDirs = []string{
	"node_modules",
	"vendor",
	"__pycache__",
	"dist",
	"build",
	"target",
	".venv",
	"venv",
}

// Files never indexed regardless of size or type.
var defaultExcludeFiles = []string{
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
}

// Sensitive file patterns that are never indexed.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	"*password*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// Exclusion reasons recorded in the file inventory.
const (
	ReasonTooLarge  = "exceeds max file size"
	ReasonSensitive = "sensitive file pattern"
	ReasonExcluded  = "matches exclude pattern"
	ReasonNoLang    = "unrecognized file type"
)

// Scanner walks repository trees.
type Scanner struct{}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks opts.Root and streams results. The channel closes when
// the walk finishes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (<-chan Result, error) {
	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, sherr.Newf(sherr.ErrCodeInvalidPath, "cannot resolve %s: %v", opts.Root, err)
	}
	maxSize := opts.MaxFileSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, maxSize, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts *Options, maxSize int64, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			if path == absRoot {
				return err
			}
			return nil // Skip entries we cannot access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if excludeDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		base := d.Name()
		if reason := excludeFile(base, relPath, opts.ExcludePatterns); reason != "" {
			return emit(ctx, results, Result{
				File:     &FileInfo{Path: relPath, AbsPath: path},
				Excluded: true,
				Reason:   reason,
			})
		}
		if strings.HasPrefix(base, ".") && !isDotfileException(base) {
			return nil // Remaining hidden files are skipped silently
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		lang := DetectLanguage(relPath)
		file := &FileInfo{
			Path:     relPath,
			AbsPath:  path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Language: lang,
		}

		if info.Size() > maxSize {
			return emit(ctx, results, Result{File: file, Excluded: true, Reason: ReasonTooLarge})
		}
		if lang == "" {
			return emit(ctx, results, Result{File: file, Excluded: true, Reason: ReasonNoLang})
		}
		return emit(ctx, results, Result{File: file})
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		select {
		case results <- Result{Err: sherr.IOFailure("repository walk failed", err)}:
		case <-ctx.Done():
		}
	}
}

func emit(ctx context.Context, results chan<- Result, r Result) error {
	select {
	case results <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func excludeDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, d := range defaultExcludeDirs {
		if name == d {
			return true
		}
	}
	return false
}

// isDotfileException lists hidden files still worth indexing.
func isDotfileException(base string) bool {
	switch base {
	case ".gitignore", ".dockerignore", ".editorconfig":
		return true
	}
	return false
}

// excludeFile returns the exclusion reason for a file, or "".
func excludeFile(base, relPath string, extra []string) string {
	for _, p := range sensitiveFilePatterns {
		if matched, _ := filepath.Match(p, base); matched {
			return ReasonSensitive
		}
	}
	for _, p := range defaultExcludeFiles {
		if matched, _ := filepath.Match(p, base); matched {
			return ReasonExcluded
		}
	}
	for _, p := range extra {
		if matched, _ := filepath.Match(p, base); matched {
			return ReasonExcluded
		}
		if matched, _ := filepath.Match(p, relPath); matched {
			return ReasonExcluded
		}
	}
	return ""
}
