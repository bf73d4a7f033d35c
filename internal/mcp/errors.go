// Package mcp implements the agent command protocol surface: list_skills,
// search_skills, and execute, exposed over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// JSON-RPC-style codes returned to the agent. The negative range below
// -32000 is reserved for application errors per the JSON-RPC 2.0 spec that
// the MCP wire format follows.
const (
	ErrCodeNotFound          = -32001
	ErrCodeCapabilityDenied  = -32002
	ErrCodeTimeout           = -32003
	ErrCodeSecretUnavailable = -32004
	ErrCodeResourceLimit     = -32005
	ErrCodeSandbox           = -32006
	ErrCodeToolFailed        = -32007

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors raised directly by this package before a call ever
// reaches the executor or search pipeline.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrInvalidParams     = errors.New("invalid parameters")
	ErrResourceNotFound  = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts a skillerr.Error (or a handful of sentinel/context
// errors) into the protocol error shape returned to the agent.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var se *skillerr.Error
	if errors.As(err, &se) {
		return mapSkillError(se)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "request was cancelled"}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "tool not found"}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "invalid parameters"}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "resource not found"}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "internal server error"}
	}
}

func mapSkillError(se *skillerr.Error) *MCPError {
	message := se.Message
	if se.Suggestion != "" {
		message = fmt.Sprintf("%s %s", se.Message, se.Suggestion)
	}

	switch se.Code {
	case skillerr.CodeNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	case skillerr.CodeInvalidArguments, skillerr.CodeParseError, skillerr.CodeValidationError:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case skillerr.CodeCapabilityDenied:
		return &MCPError{Code: ErrCodeCapabilityDenied, Message: message}
	case skillerr.CodeSecretUnavailable:
		return &MCPError{Code: ErrCodeSecretUnavailable, Message: message}
	case skillerr.CodeResourceLimit, skillerr.CodeSearchOverloaded, skillerr.CodeOutputTruncated:
		return &MCPError{Code: ErrCodeResourceLimit, Message: message}
	case skillerr.CodeTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case skillerr.CodeSandboxError, skillerr.CodeRuntimeError:
		return &MCPError{Code: ErrCodeSandbox, Message: message}
	case skillerr.CodeToolError:
		return &MCPError{Code: ErrCodeToolFailed, Message: message}
	case skillerr.CodeCancelled:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool %q not found", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("resource %q not found", uri)}
}
