package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shebe-search/shebe/internal/config"
	sherr "github.com/shebe-search/shebe/internal/errors"
	"github.com/shebe-search/shebe/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.New()
	cfg.Storage.Root = filepath.Join(t.TempDir(), "sessions")
	cfg.Index.Workers = 2

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := NewManager(cfg, logger)
	require.NoError(t, err)
	return m
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	files := map[string]string{
		"main.go":          "package main\n\nfunc main() {\n\tstartServer()\n}\n",
		"server/server.go": "package server\n\nfunc startServer() error {\n\treturn listenAndServe()\n}\n",
		"README.md":        "# Demo\n\nA sample repository.\n",
	}
	for rel, content := range files {
		path := filepath.Join(repo, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return repo
}

func TestCreateIndexesRepository(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)

	sess, err := m.Create(context.Background(), "demo", repo)
	require.NoError(t, err)

	assert.Equal(t, "demo", sess.Name)
	assert.Equal(t, CurrentSchemaVersion, sess.SchemaVersion)
	assert.Equal(t, 3, sess.FileCount)
	assert.Greater(t, sess.ChunkCount, 0)

	// The published artifact is readable without the lock
	idx, meta, err := OpenArtifact(m.Root(), "demo")
	require.NoError(t, err)
	defer idx.Close()
	defer meta.Close()

	hits, err := idx.Search(context.Background(), "start server", 10, "")
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestCreateDuplicateFails(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)

	_, err := m.Create(context.Background(), "demo", repo)
	require.NoError(t, err)

	_, err = m.Create(context.Background(), "demo", repo)
	assert.Equal(t, sherr.ErrCodeSessionExists, sherr.GetCode(err))
}

func TestCreateInvalidInputs(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)

	_, err := m.Create(context.Background(), "bad name!", repo)
	assert.Equal(t, sherr.ErrCodeInvalidInput, sherr.GetCode(err))

	_, err = m.Create(context.Background(), "demo", filepath.Join(repo, "absent"))
	assert.Equal(t, sherr.ErrCodeInvalidPath, sherr.GetCode(err))
}

func TestCreateFailureLeavesNoSession(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Create(ctx, "demo", repo)
	require.Error(t, err)

	assert.False(t, m.Exists("demo"))

	// The cancellation stays recognizable through the pipeline even
	// when intermediate layers wrap it.
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReindexZeroDeltaIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "demo", repo)
	require.NoError(t, err)

	report, err := m.Reindex(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, report.Zero())

	// The artifact is untouched: generation did not advance
	after, err := m.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, sess.Generation, after.Generation)
}

func TestReindexReportsDeltas(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	before, err := m.Create(ctx, "demo", repo)
	require.NoError(t, err)

	// One added, one changed, one removed
	require.NoError(t, os.WriteFile(filepath.Join(repo, "new.go"), []byte("package main\n\nfunc added() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(repo, "README.md")))

	report, err := m.Reindex(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Removed)

	after, err := m.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, before.Generation+1, after.Generation)

	// The new artifact reflects the new content
	idx, meta, err := OpenArtifact(m.Root(), "demo")
	require.NoError(t, err)
	defer idx.Close()
	defer meta.Close()

	hits, err := idx.Search(ctx, "added", 10, "")
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestReindexMarksVanishedFileStale(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "demo", repo)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(repo, "README.md")))

	report, err := m.Reindex(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	// The inventory keeps a stale record; the chunk rows are gone.
	idx, meta, err := OpenArtifact(m.Root(), "demo")
	require.NoError(t, err)
	defer idx.Close()
	defer meta.Close()

	rec, err := meta.GetFile(ctx, "README.md")
	require.NoError(t, err)
	assert.Equal(t, store.FileStale, rec.Status)
	assert.NotEmpty(t, rec.Reason)

	chunks, err := meta.ChunksForFile(ctx, "README.md")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// A second reindex sees no further change
	again, err := m.Reindex(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, again.Zero())
}

func TestReindexUnknownSession(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Reindex(context.Background(), "ghost")
	assert.Equal(t, sherr.ErrCodeSessionNotFound, sherr.GetCode(err))
}

func TestReindexFailsFastWhenLocked(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "demo", repo)
	require.NoError(t, err)

	// Simulate another mutator holding the session lock
	lock, err := acquireLock(SessionDir(m.Root(), "demo"), "demo")
	require.NoError(t, err)
	defer lock.release()

	_, err = m.Reindex(ctx, "demo")
	assert.Equal(t, sherr.ErrCodeSessionBusy, sherr.GetCode(err))
}

func TestLocksAreSessionScoped(t *testing.T) {
	m := newTestManager(t)
	repoA := newTestRepo(t)
	repoB := newTestRepo(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "alpha", repoA)
	require.NoError(t, err)
	_, err = m.Create(ctx, "beta", repoB)
	require.NoError(t, err)

	// Holding alpha's lock does not block mutations on beta
	lock, err := acquireLock(SessionDir(m.Root(), "alpha"), "alpha")
	require.NoError(t, err)
	defer lock.release()

	_, err = m.Reindex(ctx, "beta")
	require.NoError(t, err)
}

func TestValidateAndUpgrade(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "demo", repo)
	require.NoError(t, err)

	status, err := m.Validate("demo")
	require.NoError(t, err)
	assert.Equal(t, SchemaCurrent, status)

	// Rewind the persisted version to simulate an old session
	sess, err := m.Get("demo")
	require.NoError(t, err)
	sess.SchemaVersion = 1
	require.NoError(t, saveSession(SessionDir(m.Root(), "demo"), sess))

	status, err = m.Validate("demo")
	require.NoError(t, err)
	assert.Equal(t, SchemaUpgradeRequired, status)

	upgraded, err := m.Upgrade(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, upgraded.SchemaVersion)

	// Upgrading a current session is a no-op
	again, err := m.Upgrade(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, upgraded, again)
}

func TestValidateRefusesNewerSchema(t *testing.T) {
	m := newTestManager(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "demo", repo)
	require.NoError(t, err)

	sess, err := m.Get("demo")
	require.NoError(t, err)
	sess.SchemaVersion = CurrentSchemaVersion + 1
	require.NoError(t, saveSession(SessionDir(m.Root(), "demo"), sess))

	status, err := m.Validate("demo")
	require.NoError(t, err)
	assert.Equal(t, SchemaIncompatible, status)

	_, err = m.Upgrade(ctx, "demo")
	assert.Equal(t, sherr.ErrCodeSchemaIncompatible, sherr.GetCode(err))

	_, err = m.Reindex(ctx, "demo")
	assert.Equal(t, sherr.ErrCodeSchemaIncompatible, sherr.GetCode(err))
}

func TestListSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "one", newTestRepo(t))
	require.NoError(t, err)
	_, err = m.Create(ctx, "two", newTestRepo(t))
	require.NoError(t, err)

	sessions, err := m.List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	names := []string{sessions[0].Name, sessions[1].Name}
	assert.ElementsMatch(t, []string{"one", "two"}, names)
}

func TestValidateSessionName(t *testing.T) {
	assert.NoError(t, ValidateName("my-session_2"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("has space"))
	assert.Error(t, ValidateName("path/separator"))
}
