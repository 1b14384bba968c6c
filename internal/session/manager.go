package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shebe-search/shebe/internal/config"
	sherr "github.com/shebe-search/shebe/internal/errors"
	"github.com/shebe-search/shebe/internal/scanner"
	"github.com/shebe-search/shebe/internal/store"
)

// Manager creates, reindexes, validates and upgrades sessions under
// one storage root.
type Manager struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	scanner *scanner.Scanner
}

// NewManager creates a Manager rooted at cfg.Storage.Root.
func NewManager(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		return nil, sherr.IOFailure("failed to create storage root", err)
	}
	return &Manager{
		root:    cfg.Storage.Root,
		cfg:     cfg,
		logger:  logger,
		scanner: scanner.New(),
	}, nil
}

// Root returns the storage root directory.
func (m *Manager) Root() string {
	return m.root
}

// Create indexes a repository into a new session. The session becomes
// visible to readers only after the full chunk set is indexed and the
// CURRENT pointer is published; a failed create leaves no session
// behind.
func (m *Manager) Create(ctx context.Context, name, repoPath string) (*Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, sherr.InvalidInput(err.Error())
	}
	info, err := os.Stat(repoPath)
	if err != nil || !info.IsDir() {
		return nil, sherr.Newf(sherr.ErrCodeInvalidPath, "%s is not a readable directory", repoPath)
	}
	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, sherr.Newf(sherr.ErrCodeInvalidPath, "cannot resolve %s: %v", repoPath, err)
	}

	dir := SessionDir(m.root, name)
	if _, err := os.Stat(filepath.Join(dir, sessionFileName)); err == nil {
		return nil, sherr.SessionExists(name)
	}

	lock, err := acquireLock(dir, name)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	// Re-check under the lock; another process may have just created it.
	if _, err := os.Stat(filepath.Join(dir, sessionFileName)); err == nil {
		return nil, sherr.SessionExists(name)
	}

	sess, err := m.buildSession(ctx, dir, name, absRepo)
	if err != nil {
		// Nothing was published; remove the partial directory.
		_ = os.RemoveAll(dir)
		return nil, err
	}

	m.logger.Info("session_created",
		"session", name,
		"repo", absRepo,
		"files", sess.FileCount,
		"chunks", sess.ChunkCount)
	return sess, nil
}

func (m *Manager) buildSession(ctx context.Context, dir, name, repoPath string) (*Session, error) {
	meta, err := store.OpenMetadata(store.MetadataPath(dir))
	if err != nil {
		return nil, err
	}
	defer meta.Close()

	const gen = 1
	genDir := generationDir(gen)
	idx, err := store.CreateIndex(filepath.Join(dir, genDir))
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	err = m.ingestRepo(ctx, repoPath, func(f *ingestedFile) error {
		if err := meta.UpsertFile(ctx, f.rec); err != nil {
			return err
		}
		if f.rec.Status != store.FileIndexed {
			return nil
		}
		if err := meta.ReplaceChunks(ctx, f.rec.Path, f.chunks); err != nil {
			return err
		}
		return idx.IndexChunks(ctx, f.chunks, f.rec.Language)
	})
	if err != nil {
		return nil, err
	}

	files, chunks, err := meta.Counts(ctx)
	if err != nil {
		return nil, err
	}
	if err := idx.Close(); err != nil {
		return nil, sherr.IOFailure("failed to close index", err)
	}
	if err := publishCurrent(dir, genDir); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		Name:          name,
		RepoPath:      repoPath,
		SchemaVersion: CurrentSchemaVersion,
		Generation:    gen,
		CreatedAt:     now,
		LastReindexed: now,
		FileCount:     files,
		ChunkCount:    chunks,
	}
	if err := saveSession(dir, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reindex re-walks the session's repository and rebuilds the artifact
// when anything changed. The replacement generation is built off to the
// side and published with an atomic CURRENT swap, so concurrent readers
// see either the old or the new artifact in full. A reindex that finds
// no change leaves the artifact untouched.
func (m *Manager) Reindex(ctx context.Context, name string) (*ReindexReport, error) {
	dir := SessionDir(m.root, name)
	sess, err := loadSession(dir)
	if err != nil {
		return nil, err
	}
	if status := schemaStatus(sess); status != SchemaCurrent {
		return nil, schemaError(name, status)
	}

	lock, err := acquireLock(dir, name)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	// Reload under the lock; a concurrent mutator may have finished.
	sess, err = loadSession(dir)
	if err != nil {
		return nil, err
	}

	meta, err := store.OpenMetadata(store.MetadataPath(dir))
	if err != nil {
		return nil, err
	}
	defer meta.Close()

	previous, err := meta.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	oldRecords := make(map[string]*store.FileRecord, len(previous))
	for _, rec := range previous {
		oldRecords[rec.Path] = rec
	}

	newGen := sess.Generation + 1
	newGenDir := generationDir(newGen)
	idx, err := store.CreateIndex(filepath.Join(dir, newGenDir))
	if err != nil {
		return nil, err
	}
	discard := func() {
		_ = idx.Close()
		_ = os.RemoveAll(filepath.Join(dir, newGenDir))
	}

	report := &ReindexReport{Session: name}
	seen := make(map[string]bool)
	var ingested []*ingestedFile

	err = m.ingestRepo(ctx, sess.RepoPath, func(f *ingestedFile) error {
		seen[f.rec.Path] = true
		ingested = append(ingested, f)
		old := oldRecords[f.rec.Path]

		if f.rec.Status == store.FileIndexed {
			switch {
			case old == nil || old.Status != store.FileIndexed:
				report.Added++
			case old.SHA256 != f.rec.SHA256:
				report.Changed++
			}
			// The whole chunk set goes into the replacement artifact.
			return idx.IndexChunks(ctx, f.chunks, f.rec.Language)
		}
		if old != nil && old.Status == store.FileIndexed {
			report.Removed++
		}
		return nil
	})
	if err != nil {
		discard()
		return nil, err
	}
	for path, old := range oldRecords {
		if !seen[path] && old.Status == store.FileIndexed {
			report.Removed++
		}
	}

	if report.Zero() {
		// Unchanged repository: keep the published artifact as-is.
		discard()
		return report, nil
	}

	if err := m.commitReindex(ctx, dir, sess, meta, idx, newGen, ingested, seen); err != nil {
		discard()
		return nil, err
	}

	m.logger.Info("session_reindexed",
		"session", name,
		"added", report.Added,
		"changed", report.Changed,
		"removed", report.Removed)
	return report, nil
}

// commitReindex updates the file inventory and chunk table, publishes
// the new generation and retires the old one.
func (m *Manager) commitReindex(ctx context.Context, dir string, sess *Session, meta *store.Metadata, idx *store.Index, newGen int, ingested []*ingestedFile, seen map[string]bool) error {
	// Update metadata per file. Each file's rows flip in one
	// transaction, so a concurrent reader sees old or new, not a mix.
	for _, f := range ingested {
		if err := meta.UpsertFile(ctx, f.rec); err != nil {
			return err
		}
		if err := meta.ReplaceChunks(ctx, f.rec.Path, f.chunks); err != nil {
			return err
		}
	}

	previous, err := meta.ListFiles(ctx)
	if err != nil {
		return err
	}
	for _, rec := range previous {
		if seen[rec.Path] || rec.Status == store.FileStale {
			continue
		}
		// The file vanished from the repository. Its record stays in
		// the inventory marked stale; the chunk rows go, and the new
		// generation was built without its documents.
		rec.Status = store.FileStale
		rec.Reason = "file no longer present"
		if err := meta.UpsertFile(ctx, rec); err != nil {
			return err
		}
		if err := meta.ReplaceChunks(ctx, rec.Path, nil); err != nil {
			return err
		}
	}

	files, chunks, err := meta.Counts(ctx)
	if err != nil {
		return err
	}
	if err := idx.Close(); err != nil {
		return sherr.IOFailure("failed to close index", err)
	}

	oldGenDir := generationDir(sess.Generation)
	if err := publishCurrent(dir, generationDir(newGen)); err != nil {
		return err
	}

	sess.Generation = newGen
	sess.LastReindexed = time.Now().UTC()
	sess.FileCount = files
	sess.ChunkCount = chunks
	if err := saveSession(dir, sess); err != nil {
		return err
	}

	// Retire the old generation. Readers that already opened it keep
	// their handles; new readers follow CURRENT.
	_ = os.RemoveAll(filepath.Join(dir, oldGenDir))
	return nil
}

// Validate reports the schema status of a session.
func (m *Manager) Validate(name string) (SchemaStatus, error) {
	sess, err := loadSession(SessionDir(m.root, name))
	if err != nil {
		return "", err
	}
	return schemaStatus(sess), nil
}

// Get returns a session's metadata.
func (m *Manager) Get(name string) (*Session, error) {
	return loadSession(SessionDir(m.root, name))
}

// GetCurrent returns a session's metadata, failing with the schema
// error unless the session is at the current schema version. Query
// paths go through it so an un-upgraded session surfaces
// upgrade-required instead of a layout mismatch deeper in the stack.
func (m *Manager) GetCurrent(name string) (*Session, error) {
	sess, err := loadSession(SessionDir(m.root, name))
	if err != nil {
		return nil, err
	}
	if status := schemaStatus(sess); status != SchemaCurrent {
		return nil, schemaError(name, status)
	}
	return sess, nil
}

// Exists reports whether a session directory with metadata exists.
func (m *Manager) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(SessionDir(m.root, name), sessionFileName))
	return err == nil
}

// List returns all sessions under the storage root, skipping entries
// whose metadata cannot be read.
func (m *Manager) List() ([]*Session, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, sherr.IOFailure("failed to read storage root", err)
	}

	var sessions []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := loadSession(filepath.Join(m.root, e.Name()))
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func schemaStatus(sess *Session) SchemaStatus {
	switch {
	case sess.SchemaVersion == CurrentSchemaVersion:
		return SchemaCurrent
	case sess.SchemaVersion < CurrentSchemaVersion:
		return SchemaUpgradeRequired
	default:
		return SchemaIncompatible
	}
}

func schemaError(name string, status SchemaStatus) error {
	if status == SchemaIncompatible {
		return sherr.Newf(sherr.ErrCodeSchemaIncompatible,
			"session %q was written by a newer version; refusing to downgrade", name)
	}
	return sherr.Newf(sherr.ErrCodeSchemaUpgrade,
		"session %q needs a schema upgrade before use", name)
}
