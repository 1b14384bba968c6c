package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shebe-search/shebe/internal/config"
	"github.com/shebe-search/shebe/internal/service"
)

// testSocketPath creates a unique socket path. Unix socket paths have a
// tight length limit, so /tmp is used instead of t.TempDir().
func testSocketPath(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join("/tmp", fmt.Sprintf("shebe-daemon-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { os.Remove(socketPath) })
	return socketPath
}

func newTestDaemon(t *testing.T) (*Server, *Client) {
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

	socketPath := testSocketPath(t)
	srv, err := NewServer(socketPath, svc, logger)
	require.NoError(t, err)

	client := NewClient(Config{
		SocketPath: socketPath,
		Timeout:    5 * time.Second,
	})
	return srv, client
}

// startServer runs the server in the background and waits for the socket.
func startServer(t *testing.T, srv *Server) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(srv.socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return cancel
}

func TestNewServerRequiresService(t *testing.T) {
	_, err := NewServer(testSocketPath(t), nil, nil)
	assert.Error(t, err)
}

func TestServerPing(t *testing.T) {
	srv, client := newTestDaemon(t)
	startServer(t, srv)

	require.True(t, client.IsRunning())
	assert.NoError(t, client.Ping(context.Background()))
}

func TestServerSearch(t *testing.T) {
	srv, client := newTestDaemon(t)
	startServer(t, srv)

	results, err := client.Search(context.Background(), SearchParams{
		Session: "proj",
		Query:   "run app",
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.NotEmpty(t, results[0].Path)
	assert.Greater(t, results[0].Line, 0)
	assert.NotEmpty(t, results[0].Text)
}

func TestServerSearchUnknownSession(t *testing.T) {
	srv, client := newTestDaemon(t)
	startServer(t, srv)

	_, err := client.Search(context.Background(), SearchParams{
		Session: "ghost",
		Query:   "anything",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("code: %d", ErrCodeSessionNotFound))
}

func TestServerSearchInvalidParams(t *testing.T) {
	srv, client := newTestDaemon(t)
	startServer(t, srv)

	_, err := client.Search(context.Background(), SearchParams{Session: "proj"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestServerRefs(t *testing.T) {
	srv, client := newTestDaemon(t)
	startServer(t, srv)

	files, err := client.Refs(context.Background(), RefsParams{
		Session: "proj",
		Symbol:  "App",
	})
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		assert.NotEmpty(t, f.References)
		for _, r := range f.References {
			assert.Greater(t, r.Confidence, 0.0)
		}
	}
}

func TestServerSessionsAndStatus(t *testing.T) {
	srv, client := newTestDaemon(t)
	startServer(t, srv)

	sessions, err := client.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "proj", sessions[0].Name)
	assert.Equal(t, 2, sessions[0].FileCount)

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, 1, status.SessionCount)
}

func TestServerUnknownMethod(t *testing.T) {
	srv, client := newTestDaemon(t)
	startServer(t, srv)

	err := client.call(context.Background(), "bogus", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestServerShutdownRemovesSocket(t *testing.T) {
	srv, client := newTestDaemon(t)
	cancel := startServer(t, srv)

	require.True(t, client.IsRunning())

	cancel()
	require.Eventually(t, func() bool {
		_, err := os.Stat(srv.socketPath)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientNotRunning(t *testing.T) {
	client := NewClient(Config{
		SocketPath: testSocketPath(t),
		Timeout:    100 * time.Millisecond,
	})
	assert.False(t, client.IsRunning())
	assert.Error(t, client.Ping(context.Background()))
}
