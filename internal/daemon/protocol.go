package daemon

import (
	"errors"
	"fmt"

	sherr "github.com/shebe-search/shebe/internal/errors"
)

// JSON-RPC 2.0 method names.
const (
	MethodSearch   = "search"
	MethodRefs     = "refs"
	MethodSessions = "sessions"
	MethodStatus   = "status"
	MethodPing     = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	ErrCodeSessionNotFound = -32001
	ErrCodeSessionBusy     = -32002
	ErrCodeTimeout         = -32003
	ErrCodeSearchFailed    = -32004
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	// Session is the session to search (required).
	Session string `json:"session"`

	// Query is the keyword query (required).
	Query string `json:"query"`

	// K is the maximum number of results (0 uses the configured default).
	K int `json:"k,omitempty"`

	// Language filters by programming language (optional).
	Language string `json:"language,omitempty"`

	// PathGlob filters results to matching paths (optional).
	PathGlob string `json:"path_glob,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	if p.Session == "" {
		return fmt.Errorf("session is required")
	}
	if p.Query == "" {
		return fmt.Errorf("query is required")
	}
	if p.K < 0 {
		p.K = 0
	}
	return nil
}

// SearchResult represents a single search result.
type SearchResult struct {
	Path      string  `json:"path"`
	Line      int     `json:"line"`
	Score     float64 `json:"score"`
	StartLine int     `json:"start_line"`
	Text      string  `json:"text"`
}

// RefsParams are the parameters for the refs method.
type RefsParams struct {
	// Session is the session to search (required).
	Session string `json:"session"`

	// Symbol is the symbol to resolve references for (required).
	Symbol string `json:"symbol"`

	// K is the maximum number of references (0 uses the configured default).
	K int `json:"k,omitempty"`
}

// Validate checks that required fields are present.
func (p *RefsParams) Validate() error {
	if p.Session == "" {
		return fmt.Errorf("session is required")
	}
	if p.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if p.K < 0 {
		p.K = 0
	}
	return nil
}

// Reference is one resolved reference.
type Reference struct {
	Line       int     `json:"line"`
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// FileRefs groups one file's references, lines ascending.
type FileRefs struct {
	Path       string      `json:"path"`
	Best       float64     `json:"best_confidence"`
	References []Reference `json:"references"`
}

// SessionSummary describes one session in a sessions response.
type SessionSummary struct {
	Name       string `json:"name"`
	RepoPath   string `json:"repo_path"`
	Generation int    `json:"generation"`
	FileCount  int    `json:"file_count"`
	ChunkCount int    `json:"chunk_count"`
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	Uptime       string `json:"uptime"`
	StorageRoot  string `json:"storage_root"`
	SessionCount int    `json:"session_count"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}

// errorCode maps an internal error to a JSON-RPC error code.
func errorCode(err error) int {
	var se *sherr.ShebeError
	if errors.As(err, &se) {
		switch se.Code {
		case sherr.ErrCodeSessionNotFound:
			return ErrCodeSessionNotFound
		case sherr.ErrCodeSessionBusy:
			return ErrCodeSessionBusy
		case sherr.ErrCodeTimeout:
			return ErrCodeTimeout
		}
		if se.Category == sherr.CategoryValidation {
			return ErrCodeInvalidParams
		}
	}
	return ErrCodeSearchFailed
}
