// Package skillerr provides the structured error type used across the
// skill runtime: execution, discovery, manifest loading, and the agent
// command protocol all report failures through the same Error shape so a
// caller can branch on Code without string-matching messages.
package skillerr

import "fmt"

// Error is the structured error carried through every layer of the runtime.
type Error struct {
	// Code is one of the Code* constants below.
	Code string

	// Message is the human-readable description.
	Message string

	// Category groups Code into the taxonomy in codes.go.
	Category Category

	// Severity indicates how the caller should react.
	Severity Severity

	// Details holds additional key-value context (never secret values).
	Details map[string]string

	// Cause is the wrapped underlying error, if any.
	Cause error

	// Retryable indicates whether retrying the same call might succeed.
	Retryable bool

	// Suggestion is an optional actionable hint for the caller.
	Suggestion string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is comparisons keyed on Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches a key-value pair and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an actionable hint and returns the error for chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New builds an Error whose Category, Severity and Retryable flag are
// derived from code.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap builds an Error from an existing error, reusing its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound builds a CodeNotFound error (skill, instance, or tool lookup miss).
func NotFound(message string, cause error) *Error {
	return New(CodeNotFound, message, cause)
}

// InvalidArguments builds a CodeInvalidArguments error.
func InvalidArguments(message string, cause error) *Error {
	return New(CodeInvalidArguments, message, cause)
}

// ParseError builds a CodeParseError error (manifest or document parsing).
func ParseError(message string, cause error) *Error {
	return New(CodeParseError, message, cause)
}

// ValidationError builds a CodeValidationError error (manifest Validate()).
func ValidationError(message string, cause error) *Error {
	return New(CodeValidationError, message, cause)
}

// CapabilityDenied builds a CodeCapabilityDenied error.
func CapabilityDenied(message string) *Error {
	return New(CodeCapabilityDenied, message, nil)
}

// SecretUnavailable builds a CodeSecretUnavailable error.
func SecretUnavailable(message string, cause error) *Error {
	return New(CodeSecretUnavailable, message, cause)
}

// ResourceLimit builds a CodeResourceLimit error.
func ResourceLimit(message string) *Error {
	return New(CodeResourceLimit, message, nil)
}

// Timeout builds a CodeTimeout error.
func Timeout(message string, cause error) *Error {
	return New(CodeTimeout, message, cause)
}

// SandboxError builds a CodeSandboxError error (assembly or adapter setup failure).
func SandboxError(message string, cause error) *Error {
	return New(CodeSandboxError, message, cause)
}

// RuntimeError builds a CodeRuntimeError error (adapter could not start the skill).
func RuntimeError(message string, cause error) *Error {
	return New(CodeRuntimeError, message, cause)
}

// ToolError builds a CodeToolError error (the tool ran and reported failure).
func ToolError(message string, cause error) *Error {
	return New(CodeToolError, message, cause)
}

// Cancelled builds a CodeCancelled error.
func Cancelled(message string) *Error {
	return New(CodeCancelled, message, nil)
}

// BackendUnavailable builds a CodeBackendUnavailable error (store/index down).
func BackendUnavailable(message string, cause error) *Error {
	return New(CodeBackendUnavailable, message, cause)
}

// IndexCorrupt builds a CodeIndexCorrupt error.
func IndexCorrupt(message string, cause error) *Error {
	return New(CodeIndexCorrupt, message, cause)
}

// SearchOverloaded builds a CodeSearchOverloaded error (inflight-query bound hit).
func SearchOverloaded(message string) *Error {
	return New(CodeSearchOverloaded, message, nil)
}

// Internal builds a CodeInternal error for unexpected failures.
func Internal(message string, cause error) *Error {
	return New(CodeInternal, message, cause)
}

// IsRetryable reports whether err is an *Error with Retryable set.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// IsFatal reports whether err is an *Error with fatal severity.
func IsFatal(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the Code of err, or "" if err is not an *Error.
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// GetCategory extracts the Category of err, or "" if err is not an *Error.
func GetCategory(err error) Category {
	if e, ok := err.(*Error); ok {
		return e.Category
	}
	return ""
}
