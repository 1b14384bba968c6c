package mcp

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
	"github.com/shebe-search/shebe/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.New()
	cfg.Storage.Root = filepath.Join(t.TempDir(), "sessions")
	cfg.Index.Workers = 2

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(cfg, logger)
	require.NoError(t, err)

	repo := t.TempDir()
	files := map[string]string{
		"main.go":    "package main\n\nfunc main() {\n\trunApp()\n}\n",
		"app/app.go": "package app\n\ntype App struct {\n\tName string\n}\n\nfunc runApp() {}\n",
	}
	for rel, content := range files {
		path := filepath.Join(repo, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	_, err = svc.IndexRepository(context.Background(), repo, "proj")
	require.NoError(t, err)

	srv, err := NewServer(svc, cfg, logger)
	require.NoError(t, err)
	return srv
}

func TestNewServerRequiresService(t *testing.T) {
	_, err := NewServer(nil, config.New(), nil)
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	srv := newTestServer(t)

	tools := srv.ListTools()
	require.Len(t, tools, 7)

	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description, "tool %s has no description", tool.Name)
	}
	for _, want := range []string{
		"search_code", "find_references", "find_file",
		"read_file", "preview_chunk", "list_sessions", "session_info",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestCallToolSearchCode(t *testing.T) {
	srv := newTestServer(t)

	out, err := srv.CallTool(context.Background(), "search_code", map[string]any{
		"session": "proj",
		"query":   "run app",
	})
	require.NoError(t, err)

	res, ok := out.(SearchCodeOutput)
	require.True(t, ok)
	assert.NotEmpty(t, res.Results)
	assert.NotEmpty(t, res.Results[0].Path)
	assert.Greater(t, res.Results[0].Line, 0)
}

func TestCallToolSearchCodeMissingQuery(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "search_code", map[string]any{
		"session": "proj",
	})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallToolFindReferences(t *testing.T) {
	srv := newTestServer(t)

	out, err := srv.CallTool(context.Background(), "find_references", map[string]any{
		"session": "proj",
		"symbol":  "App",
	})
	require.NoError(t, err)

	res, ok := out.(FindReferencesOutput)
	require.True(t, ok)
	require.NotEmpty(t, res.Files)
	for _, f := range res.Files {
		assert.NotEmpty(t, f.References)
		for _, r := range f.References {
			assert.Greater(t, r.Confidence, 0.0)
			assert.NotEmpty(t, r.Category)
		}
	}
}

func TestCallToolFindFile(t *testing.T) {
	srv := newTestServer(t)

	out, err := srv.CallTool(context.Background(), "find_file", map[string]any{
		"session": "proj",
		"glob":    "*.go",
	})
	require.NoError(t, err)

	res, ok := out.(FindFileOutput)
	require.True(t, ok)
	assert.Equal(t, []string{"app/app.go", "main.go"}, res.Paths)
}

func TestCallToolReadFile(t *testing.T) {
	srv := newTestServer(t)

	out, err := srv.CallTool(context.Background(), "read_file", map[string]any{
		"session": "proj",
		"path":    "main.go",
	})
	require.NoError(t, err)

	res, ok := out.(ReadFileOutput)
	require.True(t, ok)
	assert.Contains(t, res.Content, "runApp()")
}

func TestCallToolReadFileUnknownPath(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "read_file", map[string]any{
		"session": "proj",
		"path":    "nope.go",
	})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeFileNotFound, mcpErr.Code)
}

func TestCallToolPreviewChunk(t *testing.T) {
	srv := newTestServer(t)

	out, err := srv.CallTool(context.Background(), "preview_chunk", map[string]any{
		"session": "proj",
		"path":    "app/app.go",
		"line":    float64(3),
	})
	require.NoError(t, err)

	res, ok := out.(PreviewChunkOutput)
	require.True(t, ok)
	assert.LessOrEqual(t, res.StartLine, 3)
	assert.GreaterOrEqual(t, res.EndLine, 3)
	assert.Contains(t, res.Text, "type App struct")
}

func TestCallToolSessions(t *testing.T) {
	srv := newTestServer(t)

	out, err := srv.CallTool(context.Background(), "list_sessions", nil)
	require.NoError(t, err)

	list, ok := out.(ListSessionsOutput)
	require.True(t, ok)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "proj", list.Sessions[0].Name)

	out, err = srv.CallTool(context.Background(), "session_info", map[string]any{
		"session": "proj",
	})
	require.NoError(t, err)

	info, ok := out.(SessionOutput)
	require.True(t, ok)
	assert.Equal(t, 2, info.FileCount)
	assert.Greater(t, info.ChunkCount, 0)
}

func TestCallToolUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "session_info", map[string]any{
		"session": "ghost",
	})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeSessionNotFound, mcpErr.Code)
}

func TestCallToolUnknownTool(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "nope", nil)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestMapErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"session not found", sherr.SessionNotFound("x"), ErrCodeSessionNotFound},
		{"session busy", sherr.SessionBusy("x"), ErrCodeSessionBusy},
		{"schema upgrade", sherr.Newf(sherr.ErrCodeSchemaUpgrade, "upgrade required"), ErrCodeSchemaMismatch},
		{"schema incompatible", sherr.Newf(sherr.ErrCodeSchemaIncompatible, "newer schema"), ErrCodeSchemaMismatch},
		{"file gone", sherr.Newf(sherr.ErrCodeFileGone, "deleted"), ErrCodeFileNotFound},
		{"file not indexed", sherr.Newf(sherr.ErrCodeFileNotFound, "not indexed"), ErrCodeFileNotFound},
		{"corrupt index", sherr.Newf(sherr.ErrCodeCorruptIndex, "bad artifact"), ErrCodeCorruptIndex},
		{"timeout code", sherr.Newf(sherr.ErrCodeTimeout, "budget exceeded"), ErrCodeTimeout},
		{"validation", sherr.InvalidInput("bad"), ErrCodeInvalidParams},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"opaque", assert.AnError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
		})
	}
}

func TestMapErrorKeepsCodeInMessage(t *testing.T) {
	got := MapError(sherr.SessionNotFound("proj"))
	assert.Contains(t, got.Message, sherr.ErrCodeSessionNotFound)
}

func TestMapErrorNil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapErrorPassesThrough(t *testing.T) {
	orig := NewInvalidParamsError("bad arg")
	assert.Same(t, orig, MapError(orig))
}
