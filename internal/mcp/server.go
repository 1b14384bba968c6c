package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shebe-search/shebe/internal/config"
	"github.com/shebe-search/shebe/internal/engine"
	"github.com/shebe-search/shebe/internal/service"
	"github.com/shebe-search/shebe/internal/session"
	"github.com/shebe-search/shebe/pkg/version"
)

// Server is the MCP server for Shebe. It exposes session-scoped code
// search to AI clients over stdio.
type Server struct {
	mcp    *mcp.Server
	svc    *service.Service
	config *config.Config
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// SearchCodeInput defines the input schema for the search_code tool.
type SearchCodeInput struct {
	Session  string `json:"session" jsonschema:"name of the session to search"`
	Query    string `json:"query" jsonschema:"the keyword query to execute"`
	K        int    `json:"k,omitempty" jsonschema:"maximum number of results, default 10"`
	Language string `json:"language,omitempty" jsonschema:"filter by programming language, e.g. go, python"`
	PathGlob string `json:"path_glob,omitempty" jsonschema:"filter results to paths matching this glob"`
}

// SearchCodeOutput defines the output schema for the search_code tool.
type SearchCodeOutput struct {
	Results []SnippetOutput `json:"results" jsonschema:"ranked result snippets"`
}

// SnippetOutput is one ranked search result.
type SnippetOutput struct {
	Path      string  `json:"path" jsonschema:"file path relative to the repository root"`
	Line      int     `json:"line" jsonschema:"line of the best-matching term"`
	Score     float64 `json:"score" jsonschema:"relevance score, higher is better"`
	StartLine int     `json:"start_line" jsonschema:"first line of the snippet text"`
	Text      string  `json:"text" jsonschema:"snippet with surrounding context lines"`
}

// FindReferencesInput defines the input schema for the find_references tool.
type FindReferencesInput struct {
	Session string `json:"session" jsonschema:"name of the session to search"`
	Symbol  string `json:"symbol" jsonschema:"the symbol name to find references for"`
	K       int    `json:"k,omitempty" jsonschema:"maximum number of references, default 10"`
}

// FindReferencesOutput defines the output schema for the find_references tool.
type FindReferencesOutput struct {
	Files []FileReferencesOutput `json:"files" jsonschema:"files with references, best confidence first"`
}

// FileReferencesOutput groups one file's references.
type FileReferencesOutput struct {
	Path       string            `json:"path" jsonschema:"file path relative to the repository root"`
	Best       float64           `json:"best_confidence" jsonschema:"highest confidence among this file's references"`
	References []ReferenceOutput `json:"references" jsonschema:"references in this file, lines ascending"`
}

// ReferenceOutput is one resolved reference.
type ReferenceOutput struct {
	Line       int     `json:"line" jsonschema:"1-based line number"`
	Text       string  `json:"text" jsonschema:"the referencing line"`
	Category   string  `json:"category" jsonschema:"reference kind: type_instantiation, type_annotation, qualified_reference, word_match"`
	Confidence float64 `json:"confidence" jsonschema:"calibrated confidence between 0 and 1"`
}

// FindFileInput defines the input schema for the find_file tool.
type FindFileInput struct {
	Session string `json:"session" jsonschema:"name of the session"`
	Glob    string `json:"glob" jsonschema:"glob pattern to match against indexed paths"`
}

// FindFileOutput defines the output schema for the find_file tool.
type FindFileOutput struct {
	Paths []string `json:"paths" jsonschema:"matching indexed paths, sorted"`
}

// ReadFileInput defines the input schema for the read_file tool.
type ReadFileInput struct {
	Session string `json:"session" jsonschema:"name of the session"`
	Path    string `json:"path" jsonschema:"file path relative to the repository root"`
}

// ReadFileOutput defines the output schema for the read_file tool.
type ReadFileOutput struct {
	Path    string `json:"path" jsonschema:"file path relative to the repository root"`
	Content string `json:"content" jsonschema:"current file content"`
}

// PreviewChunkInput defines the input schema for the preview_chunk tool.
type PreviewChunkInput struct {
	Session string `json:"session" jsonschema:"name of the session"`
	Path    string `json:"path" jsonschema:"file path relative to the repository root"`
	Line    int    `json:"line" jsonschema:"1-based line the preview must cover"`
}

// PreviewChunkOutput defines the output schema for the preview_chunk tool.
type PreviewChunkOutput struct {
	Path      string `json:"path" jsonschema:"file path relative to the repository root"`
	StartLine int    `json:"start_line" jsonschema:"first line of the preview"`
	EndLine   int    `json:"end_line" jsonschema:"last line of the preview"`
	Text      string `json:"text" jsonschema:"indexed chunk text covering the requested line"`
}

// ListSessionsInput defines the input schema for the list_sessions tool.
type ListSessionsInput struct{}

// ListSessionsOutput defines the output schema for the list_sessions tool.
type ListSessionsOutput struct {
	Sessions []SessionOutput `json:"sessions" jsonschema:"known sessions, sorted by name"`
}

// SessionInfoInput defines the input schema for the session_info tool.
type SessionInfoInput struct {
	Session string `json:"session" jsonschema:"name of the session"`
}

// SessionOutput describes one session.
type SessionOutput struct {
	Name          string    `json:"name" jsonschema:"session name"`
	RepoPath      string    `json:"repo_path" jsonschema:"absolute path of the indexed repository"`
	SchemaVersion int       `json:"schema_version" jsonschema:"on-disk schema version"`
	Generation    int       `json:"generation" jsonschema:"published artifact generation"`
	CreatedAt     time.Time `json:"created_at" jsonschema:"session creation time"`
	LastReindexed time.Time `json:"last_reindexed" jsonschema:"time of the last completed reindex"`
	FileCount     int       `json:"file_count" jsonschema:"number of indexed files"`
	ChunkCount    int       `json:"chunk_count" jsonschema:"number of indexed chunks"`
}

// NewServer creates a new MCP server over the service layer.
func NewServer(svc *service.Service, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:    svc,
		config: cfg,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "Shebe",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "Shebe", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "search_code",
			Description: "Keyword search over a session's indexed repository. Splits camelCase and snake_case identifiers so partial names match. Returns ranked snippets with file, line, and surrounding context.",
		},
		{
			Name:        "find_references",
			Description: "Find likely references to a symbol across the session's repository. Classifies each hit (instantiation, annotation, qualified, word match) and reports a calibrated confidence per reference.",
		},
		{
			Name:        "find_file",
			Description: "List indexed file paths matching a glob pattern. Matches the full relative path, the basename, or a directory prefix.",
		},
		{
			Name:        "read_file",
			Description: "Read the current content of an indexed file from disk. Fails if the path was never indexed or the file has been deleted since indexing.",
		},
		{
			Name:        "preview_chunk",
			Description: "Return the indexed chunk covering a specific line of a file, with its line range. Useful for inspecting what the index actually holds.",
		},
		{
			Name:        "list_sessions",
			Description: "List all known sessions with their repository paths and index statistics.",
		},
		{
			Name:        "session_info",
			Description: "Show one session's repository path, schema version, generation, and index statistics.",
		},
	}
}

// CallTool invokes a tool by name with the given arguments. This is the
// transport-independent entry point; the stdio transport dispatches through
// the SDK handlers instead.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_code":
		in := SearchCodeInput{
			Session:  stringArg(args, "session"),
			Query:    stringArg(args, "query"),
			K:        intArg(args, "k"),
			Language: stringArg(args, "language"),
			PathGlob: stringArg(args, "path_glob"),
		}
		_, out, err := s.searchCodeHandler(ctx, nil, in)
		return out, err
	case "find_references":
		in := FindReferencesInput{
			Session: stringArg(args, "session"),
			Symbol:  stringArg(args, "symbol"),
			K:       intArg(args, "k"),
		}
		_, out, err := s.findReferencesHandler(ctx, nil, in)
		return out, err
	case "find_file":
		in := FindFileInput{
			Session: stringArg(args, "session"),
			Glob:    stringArg(args, "glob"),
		}
		_, out, err := s.findFileHandler(ctx, nil, in)
		return out, err
	case "read_file":
		in := ReadFileInput{
			Session: stringArg(args, "session"),
			Path:    stringArg(args, "path"),
		}
		_, out, err := s.readFileHandler(ctx, nil, in)
		return out, err
	case "preview_chunk":
		in := PreviewChunkInput{
			Session: stringArg(args, "session"),
			Path:    stringArg(args, "path"),
			Line:    intArg(args, "line"),
		}
		_, out, err := s.previewChunkHandler(ctx, nil, in)
		return out, err
	case "list_sessions":
		_, out, err := s.listSessionsHandler(ctx, nil, ListSessionsInput{})
		return out, err
	case "session_info":
		in := SessionInfoInput{Session: stringArg(args, "session")}
		_, out, err := s.sessionInfoHandler(ctx, nil, in)
		return out, err
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	tools := s.ListTools()
	byName := make(map[string]string, len(tools))
	for _, t := range tools {
		byName[t.Name] = t.Description
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: byName["search_code"],
	}, s.searchCodeHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_references",
		Description: byName["find_references"],
	}, s.findReferencesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_file",
		Description: byName["find_file"],
	}, s.findFileHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "read_file",
		Description: byName["read_file"],
	}, s.readFileHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "preview_chunk",
		Description: byName["preview_chunk"],
	}, s.previewChunkHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_sessions",
		Description: byName["list_sessions"],
	}, s.listSessionsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_info",
		Description: byName["session_info"],
	}, s.sessionInfoHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(tools)))
}

// searchCodeHandler is the MCP SDK handler for the search_code tool.
func (s *Server) searchCodeHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchCodeInput) (
	*mcp.CallToolResult,
	SearchCodeOutput,
	error,
) {
	if input.Session == "" {
		return nil, SearchCodeOutput{}, NewInvalidParamsError("session parameter is required")
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchCodeOutput{}, NewInvalidParamsError("query parameter is required and must be non-empty")
	}

	start := time.Now()
	snippets, err := s.svc.SearchCode(ctx, input.Session, input.Query, input.K, engine.Filters{
		Language: input.Language,
		PathGlob: input.PathGlob,
	})
	if err != nil {
		s.logger.Error("search_code failed",
			slog.String("session", input.Session),
			slog.String("error", err.Error()))
		return nil, SearchCodeOutput{}, MapError(err)
	}

	s.logger.Info("search_code completed",
		slog.String("session", input.Session),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(snippets)))

	out := SearchCodeOutput{Results: make([]SnippetOutput, 0, len(snippets))}
	for _, sn := range snippets {
		out.Results = append(out.Results, SnippetOutput{
			Path:      sn.Path,
			Line:      sn.Line,
			Score:     sn.Score,
			StartLine: sn.StartLine,
			Text:      sn.Text,
		})
	}
	return nil, out, nil
}

// findReferencesHandler is the MCP SDK handler for the find_references tool.
func (s *Server) findReferencesHandler(ctx context.Context, req *mcp.CallToolRequest, input FindReferencesInput) (
	*mcp.CallToolResult,
	FindReferencesOutput,
	error,
) {
	if input.Session == "" {
		return nil, FindReferencesOutput{}, NewInvalidParamsError("session parameter is required")
	}
	if strings.TrimSpace(input.Symbol) == "" {
		return nil, FindReferencesOutput{}, NewInvalidParamsError("symbol parameter is required and must be non-empty")
	}

	files, err := s.svc.FindReferences(ctx, input.Session, input.Symbol, input.K)
	if err != nil {
		s.logger.Error("find_references failed",
			slog.String("session", input.Session),
			slog.String("symbol", input.Symbol),
			slog.String("error", err.Error()))
		return nil, FindReferencesOutput{}, MapError(err)
	}

	out := FindReferencesOutput{Files: make([]FileReferencesOutput, 0, len(files))}
	for _, f := range files {
		fo := FileReferencesOutput{
			Path:       f.Path,
			Best:       f.Best,
			References: make([]ReferenceOutput, 0, len(f.Matches)),
		}
		for _, m := range f.Matches {
			fo.References = append(fo.References, ReferenceOutput{
				Line:       m.Line,
				Text:       m.Text,
				Category:   string(m.Category),
				Confidence: m.Confidence,
			})
		}
		out.Files = append(out.Files, fo)
	}
	return nil, out, nil
}

// findFileHandler is the MCP SDK handler for the find_file tool.
func (s *Server) findFileHandler(ctx context.Context, req *mcp.CallToolRequest, input FindFileInput) (
	*mcp.CallToolResult,
	FindFileOutput,
	error,
) {
	if input.Session == "" {
		return nil, FindFileOutput{}, NewInvalidParamsError("session parameter is required")
	}

	paths, err := s.svc.FindFile(ctx, input.Session, input.Glob)
	if err != nil {
		return nil, FindFileOutput{}, MapError(err)
	}
	return nil, FindFileOutput{Paths: paths}, nil
}

// readFileHandler is the MCP SDK handler for the read_file tool.
func (s *Server) readFileHandler(ctx context.Context, req *mcp.CallToolRequest, input ReadFileInput) (
	*mcp.CallToolResult,
	ReadFileOutput,
	error,
) {
	if input.Session == "" {
		return nil, ReadFileOutput{}, NewInvalidParamsError("session parameter is required")
	}
	if input.Path == "" {
		return nil, ReadFileOutput{}, NewInvalidParamsError("path parameter is required")
	}

	content, err := s.svc.ReadFile(ctx, input.Session, input.Path)
	if err != nil {
		return nil, ReadFileOutput{}, MapError(err)
	}
	return nil, ReadFileOutput{Path: input.Path, Content: content}, nil
}

// previewChunkHandler is the MCP SDK handler for the preview_chunk tool.
func (s *Server) previewChunkHandler(ctx context.Context, req *mcp.CallToolRequest, input PreviewChunkInput) (
	*mcp.CallToolResult,
	PreviewChunkOutput,
	error,
) {
	if input.Session == "" {
		return nil, PreviewChunkOutput{}, NewInvalidParamsError("session parameter is required")
	}
	if input.Path == "" {
		return nil, PreviewChunkOutput{}, NewInvalidParamsError("path parameter is required")
	}

	p, err := s.svc.PreviewChunk(ctx, input.Session, input.Path, input.Line)
	if err != nil {
		return nil, PreviewChunkOutput{}, MapError(err)
	}
	return nil, PreviewChunkOutput{
		Path:      p.Path,
		StartLine: p.StartLine,
		EndLine:   p.EndLine,
		Text:      p.Text,
	}, nil
}

// listSessionsHandler is the MCP SDK handler for the list_sessions tool.
func (s *Server) listSessionsHandler(ctx context.Context, req *mcp.CallToolRequest, input ListSessionsInput) (
	*mcp.CallToolResult,
	ListSessionsOutput,
	error,
) {
	sessions, err := s.svc.ListSessions()
	if err != nil {
		return nil, ListSessionsOutput{}, MapError(err)
	}

	out := ListSessionsOutput{Sessions: make([]SessionOutput, 0, len(sessions))}
	for _, sess := range sessions {
		out.Sessions = append(out.Sessions, sessionOutput(sess))
	}
	return nil, out, nil
}

// sessionInfoHandler is the MCP SDK handler for the session_info tool.
func (s *Server) sessionInfoHandler(ctx context.Context, req *mcp.CallToolRequest, input SessionInfoInput) (
	*mcp.CallToolResult,
	SessionOutput,
	error,
) {
	if input.Session == "" {
		return nil, SessionOutput{}, NewInvalidParamsError("session parameter is required")
	}

	sess, err := s.svc.GetSessionInfo(input.Session)
	if err != nil {
		return nil, SessionOutput{}, MapError(err)
	}
	return nil, sessionOutput(sess), nil
}

// Serve runs the server on stdio until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

func sessionOutput(sess *session.Session) SessionOutput {
	return SessionOutput{
		Name:          sess.Name,
		RepoPath:      sess.RepoPath,
		SchemaVersion: sess.SchemaVersion,
		Generation:    sess.Generation,
		CreatedAt:     sess.CreatedAt,
		LastReindexed: sess.LastReindexed,
		FileCount:     sess.FileCount,
		ChunkCount:    sess.ChunkCount,
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
