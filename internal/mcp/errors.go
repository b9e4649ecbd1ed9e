// Package mcp exposes the service surface as Model Context Protocol
// tools over stdio, for AI clients that drive code search and indexing
// through a conversation.
package mcp

import (
	"context"
	"errors"
	"fmt"

	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
)

// MCP error codes. Negative four-digit codes are protocol-reserved;
// the -320xx range carries MnemoLite-specific conditions.
const (
	// ErrCodeLockHeld means another indexing run owns the repository.
	ErrCodeLockHeld = -32001

	// ErrCodeStoreUnavailable means Postgres cannot be reached.
	ErrCodeStoreUnavailable = -32002

	// ErrCodeTimeout means the request exceeded its budget or was
	// cancelled.
	ErrCodeTimeout = -32003

	// ErrCodePipelineFailed means a file was accepted but a stage
	// errored (parse, chunk, persist).
	ErrCodePipelineFailed = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// MapError converts internal errors to MCP errors. The message carries
// the suggestion when one exists so the client can relay it.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var me *mnemoerrors.MnemoError
	if errors.As(err, &me) {
		message := me.Message
		if me.Suggestion != "" {
			message = me.Message + " " + me.Suggestion
		}
		switch me.Kind() {
		case mnemoerrors.KindInvalidInput:
			return &MCPError{Code: ErrCodeInvalidParams, Message: message}
		case mnemoerrors.KindLockDenied:
			return &MCPError{Code: ErrCodeLockHeld, Message: message}
		case mnemoerrors.KindTimeout:
			return &MCPError{Code: ErrCodeTimeout, Message: message}
		case mnemoerrors.KindPersistError:
			return &MCPError{Code: ErrCodeStoreUnavailable, Message: message}
		case mnemoerrors.KindParseError, mnemoerrors.KindChunkingError,
			mnemoerrors.KindEmbeddingError, mnemoerrors.KindOracleError:
			return &MCPError{Code: ErrCodePipelineFailed, Message: message}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: message}
		}
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
