// Package service is the facade the transport adapters call. Every
// externally visible operation lives here; the MCP server, the daemon
// and the CLI are pure translators over this API.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shebe-search/shebe/internal/config"
	"github.com/shebe-search/shebe/internal/engine"
	sherr "github.com/shebe-search/shebe/internal/errors"
	"github.com/shebe-search/shebe/internal/refs"
	"github.com/shebe-search/shebe/internal/session"
	"github.com/shebe-search/shebe/internal/store"
)

// fileCacheSize bounds the LRU of repository file contents backing
// read_file and preview_chunk.
const fileCacheSize = 128

// Service bundles the session manager, query engine and reference
// resolver behind one API.
type Service struct {
	mgr       *session.Manager
	eng       *engine.Engine
	resolver  *refs.Resolver
	cfg       *config.Config
	logger    *slog.Logger
	fileCache *lru.Cache[string, string]
}

// New wires a Service from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	mgr, err := session.NewManager(cfg, logger)
	if err != nil {
		return nil, err
	}
	eng := engine.New(mgr, cfg, logger)
	cache, err := lru.New[string, string](fileCacheSize)
	if err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeInternal, err)
	}
	return &Service{
		mgr:       mgr,
		eng:       eng,
		resolver:  refs.New(mgr, eng, cfg, logger),
		cfg:       cfg,
		logger:    logger,
		fileCache: cache,
	}, nil
}

// IndexRepository creates a session over a repository.
func (s *Service) IndexRepository(ctx context.Context, repoPath, sessionName string) (*session.Session, error) {
	return s.mgr.Create(ctx, sessionName, repoPath)
}

// ReindexSession re-walks a session's repository and reports deltas.
func (s *Service) ReindexSession(ctx context.Context, sessionName string) (*session.ReindexReport, error) {
	report, err := s.mgr.Reindex(ctx, sessionName)
	if err != nil {
		return nil, err
	}
	s.invalidateSession(sessionName)
	return report, nil
}

// UpgradeSession migrates a session to the current schema version.
func (s *Service) UpgradeSession(ctx context.Context, sessionName string) (*session.Session, error) {
	return s.mgr.Upgrade(ctx, sessionName)
}

// ListSessions returns all sessions under the storage root.
func (s *Service) ListSessions() ([]*session.Session, error) {
	return s.mgr.List()
}

// StorageRoot returns the session storage root directory.
func (s *Service) StorageRoot() string {
	return s.mgr.Root()
}

// GetSessionInfo returns one session's metadata.
func (s *Service) GetSessionInfo(sessionName string) (*session.Session, error) {
	return s.mgr.Get(sessionName)
}

// ValidateSession reports a session's schema status.
func (s *Service) ValidateSession(sessionName string) (session.SchemaStatus, error) {
	return s.mgr.Validate(sessionName)
}

// SearchCode runs a ranked keyword query.
func (s *Service) SearchCode(ctx context.Context, sessionName, query string, k int, filters engine.Filters) ([]*engine.Snippet, error) {
	return s.eng.Search(ctx, sessionName, query, k, filters)
}

// FindReferences locates symbol occurrences grouped by file.
func (s *Service) FindReferences(ctx context.Context, sessionName, symbol string, k int) ([]*refs.FileMatches, error) {
	return s.resolver.FindReferences(ctx, sessionName, symbol, k)
}

// FindFile returns indexed paths matching a glob, sorted.
func (s *Service) FindFile(ctx context.Context, sessionName, glob string) ([]string, error) {
	if strings.TrimSpace(glob) == "" {
		return nil, sherr.InvalidInput("glob cannot be empty")
	}
	if _, err := s.mgr.GetCurrent(sessionName); err != nil {
		return nil, err
	}

	meta, err := session.OpenSessionMetadata(s.mgr.Root(), sessionName)
	if err != nil {
		return nil, err
	}
	defer meta.Close()

	files, err := meta.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, f := range files {
		if f.Status != store.FileIndexed {
			continue
		}
		if matchPathGlob(glob, f.Path) {
			paths = append(paths, f.Path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile returns the current content of an indexed file. A file that
// vanished from disk since indexing fails with the file-gone code.
func (s *Service) ReadFile(ctx context.Context, sessionName, relPath string) (string, error) {
	sess, err := s.mgr.GetCurrent(sessionName)
	if err != nil {
		return "", err
	}
	if err := validateRelPath(relPath); err != nil {
		return "", err
	}

	meta, err := session.OpenSessionMetadata(s.mgr.Root(), sessionName)
	if err != nil {
		return "", err
	}
	defer meta.Close()

	if _, err := meta.GetFile(ctx, relPath); err != nil {
		return "", err
	}
	return s.readRepoFile(sess, relPath)
}

// ChunkPreview is a context window around one line of a file.
type ChunkPreview struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

// PreviewChunk returns the indexed chunk window covering a line.
func (s *Service) PreviewChunk(ctx context.Context, sessionName, relPath string, line int) (*ChunkPreview, error) {
	if _, err := s.mgr.GetCurrent(sessionName); err != nil {
		return nil, err
	}
	if err := validateRelPath(relPath); err != nil {
		return nil, err
	}
	if line < 1 {
		return nil, sherr.InvalidInput("line must be positive")
	}

	meta, err := session.OpenSessionMetadata(s.mgr.Root(), sessionName)
	if err != nil {
		return nil, err
	}
	defer meta.Close()

	c, err := meta.ChunkAt(ctx, relPath, line)
	if err != nil {
		return nil, err
	}
	return &ChunkPreview{
		Path:      c.FilePath,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
		Text:      c.Content,
	}, nil
}

// readRepoFile reads a repository file through the LRU cache. The cache
// key carries the file's mtime so an edited file is re-read.
func (s *Service) readRepoFile(sess *session.Session, relPath string) (string, error) {
	abs := filepath.Join(sess.RepoPath, filepath.FromSlash(relPath))
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", sherr.Newf(sherr.ErrCodeFileGone, "%s was deleted since indexing", relPath)
		}
		return "", sherr.IOFailure("failed to stat file", err)
	}

	key := fmt.Sprintf("%s\x00%s\x00%d", sess.Name, relPath, info.ModTime().UnixNano())
	if content, ok := s.fileCache.Get(key); ok {
		return content, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", sherr.IOFailure("failed to read file", err)
	}
	content := string(data)
	s.fileCache.Add(key, content)
	return content, nil
}

// invalidateSession drops cached file contents for a session.
func (s *Service) invalidateSession(sessionName string) {
	prefix := sessionName + "\x00"
	for _, key := range s.fileCache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.fileCache.Remove(key)
		}
	}
}

func validateRelPath(relPath string) error {
	if relPath == "" {
		return sherr.InvalidInput("path cannot be empty")
	}
	clean := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return sherr.Newf(sherr.ErrCodeInvalidPath, "%s escapes the repository", relPath)
	}
	return nil
}

func matchPathGlob(glob, p string) bool {
	if ok, _ := path.Match(glob, p); ok {
		return true
	}
	if ok, _ := path.Match(glob, path.Base(p)); ok {
		return true
	}
	if strings.HasSuffix(glob, "/**") {
		return strings.HasPrefix(p, strings.TrimSuffix(glob, "/**")+"/")
	}
	return false
}
