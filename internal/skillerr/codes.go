package skillerr

// Category groups related Code values for coarse-grained handling (logging
// level, HTTP status mapping, retry policy).
type Category string

const (
	CategoryInput      Category = "INPUT"
	CategoryPolicy     Category = "POLICY"
	CategoryResource   Category = "RESOURCE"
	CategoryBackend    Category = "BACKEND"
	CategoryOutcome    Category = "OUTCOME"
	CategoryCancelled  Category = "CANCELLED"
)

// Severity indicates how the caller should react to an Error.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Code values, grouped by failure class: input, policy,
// resource, backend, outcome, cancellation.
const (
	// Input errors: the caller's request was malformed or referenced
	// something that does not exist.
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeParseError       = "PARSE_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"

	// Policy errors: the request was well-formed but disallowed by
	// capabilities or secret configuration.
	CodeCapabilityDenied  = "CAPABILITY_DENIED"
	CodeSecretUnavailable = "SECRET_UNAVAILABLE"

	// Resource errors: a limit was hit, not a logic failure.
	CodeResourceLimit    = "RESOURCE_LIMIT"
	CodeTimeout          = "TIMEOUT"
	CodeSearchOverloaded = "SEARCH_OVERLOADED"
	CodeOutputTruncated  = "OUTPUT_TRUNCATED"

	// Backend errors: a dependency of the runtime itself misbehaved.
	CodeSandboxError       = "SANDBOX_ERROR"
	CodeRuntimeError       = "RUNTIME_ERROR"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeIndexCorrupt       = "INDEX_CORRUPT"

	// Outcome: the tool itself ran and reported a failure.
	CodeToolError = "TOOL_ERROR"

	// Cancellation: the caller's context ended before completion.
	CodeCancelled = "CANCELLED"

	// Retained for genuinely-unclassified failures; every new code path
	// should prefer a more specific constant above.
	CodeInternal = "INTERNAL"
)

func categoryFromCode(code string) Category {
	switch code {
	case CodeNotFound, CodeInvalidArguments, CodeParseError, CodeValidationError:
		return CategoryInput
	case CodeCapabilityDenied, CodeSecretUnavailable:
		return CategoryPolicy
	case CodeResourceLimit, CodeTimeout, CodeSearchOverloaded, CodeOutputTruncated:
		return CategoryResource
	case CodeSandboxError, CodeRuntimeError, CodeBackendUnavailable, CodeIndexCorrupt:
		return CategoryBackend
	case CodeToolError:
		return CategoryOutcome
	case CodeCancelled:
		return CategoryCancelled
	default:
		return CategoryBackend
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case CodeIndexCorrupt, CodeBackendUnavailable:
		return SeverityFatal
	case CodeCancelled:
		return SeverityInfo
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case CodeTimeout, CodeSearchOverloaded, CodeBackendUnavailable:
		return true
	default:
		return false
	}
}
