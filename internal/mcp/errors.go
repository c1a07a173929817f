// Package mcp exposes the search orchestrator as a Model Context Protocol
// server.
package mcp

import (
	"context"
	"errors"
	"fmt"

	fserrors "github.com/Aman-CERP/fusesearch/internal/errors"
)

// Server-defined JSON-RPC error codes.
const (
	// ErrCodeTimeout means the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound means a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge means a file is too large to return.
	ErrCodeFileTooLarge = -32005

	// ErrCodeIndexLocked means another process holds the index lock.
	ErrCodeIndexLocked = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an error from the search stack to an MCPError. Invalid
// queries become invalid params; a query on which every backend failed is
// an internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var fe *fserrors.FuseError
	if errors.As(err, &fe) {
		return mapFuseError(fe)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an invalid params error.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for an unknown resource.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapFuseError(fe *fserrors.FuseError) *MCPError {
	message := fe.Message
	if fe.Suggestion != "" {
		message = fmt.Sprintf("%s %s", fe.Message, fe.Suggestion)
	}

	switch fe.Code {
	case fserrors.ErrCodeInvalidQuery:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case fserrors.ErrCodeAllBackendsFailed:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	case fserrors.ErrCodeIndexLocked:
		return &MCPError{Code: ErrCodeIndexLocked, Message: message}
	case fserrors.ErrCodeSourceUnavailable:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case fserrors.ErrCodeBackendTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch fe.Category {
	case fserrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
