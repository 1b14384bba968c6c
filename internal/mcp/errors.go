// Package mcp implements the Model Context Protocol (MCP) server for Shebe.
package mcp

import (
	"context"
	"errors"
	"fmt"

	sherr "github.com/shebe-search/shebe/internal/errors"
)

// Custom MCP error codes for Shebe.
const (
	// ErrCodeSessionNotFound indicates no session exists with the given name.
	ErrCodeSessionNotFound = -32001

	// ErrCodeSessionBusy indicates another process holds the session lock.
	ErrCodeSessionBusy = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a path is not in the session inventory
	// or no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeSchemaMismatch indicates a schema upgrade is required or the
	// on-disk session is newer than this binary supports.
	ErrCodeSchemaMismatch = -32005

	// ErrCodeCorruptIndex indicates the session artifact is unreadable.
	ErrCodeCorruptIndex = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// MapError converts internal errors to MCP errors. Structured errors keep
// their message so a client sees the ERR_NNN code; everything else becomes
// an opaque internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var se *sherr.ShebeError
	if errors.As(err, &se) {
		return mapShebeError(se)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// mapShebeError converts a ShebeError to an MCPError.
func mapShebeError(se *sherr.ShebeError) *MCPError {
	message := fmt.Sprintf("%s: %s", se.Code, se.Message)

	switch se.Code {
	case sherr.ErrCodeSessionNotFound:
		return &MCPError{Code: ErrCodeSessionNotFound, Message: message}
	case sherr.ErrCodeSessionBusy:
		return &MCPError{Code: ErrCodeSessionBusy, Message: message}
	case sherr.ErrCodeSchemaUpgrade, sherr.ErrCodeSchemaIncompatible:
		return &MCPError{Code: ErrCodeSchemaMismatch, Message: message}
	case sherr.ErrCodeFileNotFound, sherr.ErrCodeFileGone:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case sherr.ErrCodeCorruptIndex:
		return &MCPError{Code: ErrCodeCorruptIndex, Message: message}
	case sherr.ErrCodeTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch se.Category {
	case sherr.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case sherr.CategoryConfig:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	case sherr.CategoryIO:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	case sherr.CategorySession:
		return &MCPError{Code: ErrCodeInvalidRequest, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
