package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with the given arguments and returns
// the captured stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// newCLIEnv isolates home, user config, and session storage, and writes
// a small repository to index.
func newCLIEnv(t *testing.T) (storageRoot, repo string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	storageRoot = filepath.Join(t.TempDir(), "sessions")

	repo = t.TempDir()
	files := map[string]string{
		"main.go":    "package main\n\nfunc main() {\n\trunApp()\n}\n",
		"app/app.go": "package app\n\ntype App struct {\n\tName string\n}\n\nfunc runApp() {}\n",
	}
	for rel, content := range files {
		path := filepath.Join(repo, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return storageRoot, repo
}

func TestCLIIndexAndSessions(t *testing.T) {
	root, repo := newCLIEnv(t)

	out, err := runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 files")

	out, err = runCLI(t, "sessions", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "proj")
	assert.Contains(t, out, repo)

	out, err = runCLI(t, "info", "proj", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Session:        proj")
	assert.Contains(t, out, "Files:          2")
}

func TestCLISearchLocal(t *testing.T) {
	root, repo := newCLIEnv(t)

	_, err := runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	require.NoError(t, err)

	out, err := runCLI(t, "search", "proj", "run", "app", "--local", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, ".go:")
	assert.Contains(t, out, "score")
}

func TestCLIRefsLocal(t *testing.T) {
	root, repo := newCLIEnv(t)

	_, err := runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	require.NoError(t, err)

	out, err := runCLI(t, "refs", "proj", "App", "--local", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "app/app.go")
	assert.Contains(t, out, "type App struct")
}

func TestCLIFilesAndCat(t *testing.T) {
	root, repo := newCLIEnv(t)

	_, err := runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	require.NoError(t, err)

	out, err := runCLI(t, "files", "proj", "*.go", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "app/app.go")
	assert.Contains(t, out, "main.go")

	out, err = runCLI(t, "cat", "proj", "main.go", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "runApp()")

	out, err = runCLI(t, "cat", "proj", "app/app.go", "--line", "3", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "type App struct")
}

func TestCLIReindexNoChanges(t *testing.T) {
	root, repo := newCLIEnv(t)

	_, err := runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	require.NoError(t, err)

	out, err := runCLI(t, "reindex", "proj", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")
}

func TestCLIReindexWithChanges(t *testing.T) {
	root, repo := newCLIEnv(t)

	_, err := runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "extra.go"),
		[]byte("package main\n\nfunc extra() {}\n"), 0o644))

	out, err := runCLI(t, "reindex", "proj", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "1 added")
}

func TestCLIValidateAndUpgrade(t *testing.T) {
	root, repo := newCLIEnv(t)

	_, err := runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	require.NoError(t, err)

	out, err := runCLI(t, "validate", "proj", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "current")

	out, err = runCLI(t, "upgrade", "proj", "--storage-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")
}

func TestCLIIndexDuplicateSession(t *testing.T) {
	root, repo := newCLIEnv(t)

	_, err := runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	require.NoError(t, err)

	_, err = runCLI(t, "index", repo, "--session", "proj", "--storage-root", root)
	assert.Error(t, err)
}

func TestCLIUnknownSession(t *testing.T) {
	root, _ := newCLIEnv(t)

	_, err := runCLI(t, "info", "ghost", "--storage-root", root)
	assert.Error(t, err)
}
