package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/shebe-search/shebe/internal/engine"
	"github.com/shebe-search/shebe/internal/service"
)

// Server listens on a Unix socket and serves read-only queries against
// published session artifacts.
type Server struct {
	socketPath string
	listener   net.Listener
	svc        *service.Service
	logger     *slog.Logger
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a new server that listens on the given socket path.
func NewServer(socketPath string, svc *service.Service, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		svc:        svc,
		logger:     logger,
	}, nil
}

// ListenAndServe starts the server and blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	s.started = time.Now()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("daemon listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	// Wait for active connections to finish
	s.wg.Wait()

	return ctx.Err()
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		s.logger.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		resp := NewErrorResponse("", ErrCodeParseError, "failed to parse request")
		_ = encoder.Encode(resp)
		return
	}

	resp := s.handleRequest(ctx, req)
	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.getStatus())

	case MethodSessions:
		return s.handleSessions(req)

	case MethodSearch:
		return s.handleSearch(ctx, req)

	case MethodRefs:
		return s.handleRefs(ctx, req)

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	snippets, err := s.svc.SearchCode(ctx, params.Session, params.Query, params.K, engine.Filters{
		Language: params.Language,
		PathGlob: params.PathGlob,
	})
	if err != nil {
		return NewErrorResponse(req.ID, errorCode(err), err.Error())
	}

	results := make([]SearchResult, 0, len(snippets))
	for _, sn := range snippets {
		results = append(results, SearchResult{
			Path:      sn.Path,
			Line:      sn.Line,
			Score:     sn.Score,
			StartLine: sn.StartLine,
			Text:      sn.Text,
		})
	}
	return NewSuccessResponse(req.ID, results)
}

// handleRefs processes a reference-resolution request.
func (s *Server) handleRefs(ctx context.Context, req Request) Response {
	var params RefsParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	files, err := s.svc.FindReferences(ctx, params.Session, params.Symbol, params.K)
	if err != nil {
		return NewErrorResponse(req.ID, errorCode(err), err.Error())
	}

	results := make([]FileRefs, 0, len(files))
	for _, f := range files {
		fr := FileRefs{
			Path:       f.Path,
			Best:       f.Best,
			References: make([]Reference, 0, len(f.Matches)),
		}
		for _, m := range f.Matches {
			fr.References = append(fr.References, Reference{
				Line:       m.Line,
				Text:       m.Text,
				Category:   string(m.Category),
				Confidence: m.Confidence,
			})
		}
		results = append(results, fr)
	}
	return NewSuccessResponse(req.ID, results)
}

// handleSessions lists the known sessions.
func (s *Server) handleSessions(req Request) Response {
	sessions, err := s.svc.ListSessions()
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, err.Error())
	}

	results := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		results = append(results, SessionSummary{
			Name:       sess.Name,
			RepoPath:   sess.RepoPath,
			Generation: sess.Generation,
			FileCount:  sess.FileCount,
			ChunkCount: sess.ChunkCount,
		})
	}
	return NewSuccessResponse(req.ID, results)
}

// getStatus returns the current server status.
func (s *Server) getStatus() StatusResult {
	count := 0
	if sessions, err := s.svc.ListSessions(); err == nil {
		count = len(sessions)
	}

	return StatusResult{
		Running:      true,
		PID:          os.Getpid(),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		StorageRoot:  s.svc.StorageRoot(),
		SessionCount: count,
	}
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// decodeParams re-marshals the generic params into the typed struct.
// Returns an error response and false when decoding fails.
func decodeParams(req Request, out any) (Response, bool) {
	data, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params"), false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	return Response{}, true
}
