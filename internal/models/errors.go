package models

import (
	"fmt"

	"go.temporal.io/sdk/temporal"
)

// ErrorType categorizes errors for appropriate handling
type ErrorType int

const (
	ErrorTypeTransient        ErrorType = iota // Network, timeout → Temporal retries
	ErrorTypeContextOverflow                   // Context window exceeded → ContinueAsNew
	ErrorTypeAPILimit                          // Rate limit → surface to user
	ErrorTypeToolFailure                       // Individual tool failed → continue workflow
	ErrorTypeFatal                             // Unrecoverable → stop workflow
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeTransient:
		return "Transient"
	case ErrorTypeContextOverflow:
		return "ContextOverflow"
	case ErrorTypeAPILimit:
		return "APILimit"
	case ErrorTypeToolFailure:
		return "ToolFailure"
	case ErrorTypeFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// ActivityError represents an error from a Temporal activity with categorization
type ActivityError struct {
	Type      ErrorType              `json:"type"`
	Retryable bool                   `json:"retryable"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`

	// ResetsInSeconds carries the server-reported rate-limit reset window
	// for APILimit errors, 0 when the provider gave none.
	ResetsInSeconds int `json:"resets_in_seconds,omitempty"`
}

// Error implements the error interface
func (e *ActivityError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// NewTransientError creates a retryable transient error
func NewTransientError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeTransient,
		Retryable: true,
		Message:   message,
	}
}

// NewContextOverflowError creates a context overflow error
func NewContextOverflowError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeContextOverflow,
		Retryable: false,
		Message:   message,
	}
}

// NewAPILimitError creates an API rate limit error
func NewAPILimitError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeAPILimit,
		Retryable: true,
		Message:   message,
	}
}

// NewAPILimitErrorWithReset creates a rate limit error carrying the
// server-reported reset window.
func NewAPILimitErrorWithReset(message string, resetsInSeconds int) *ActivityError {
	return &ActivityError{
		Type:            ErrorTypeAPILimit,
		Retryable:       true,
		Message:         message,
		ResetsInSeconds: resetsInSeconds,
	}
}

// NewToolFailureError creates a tool failure error
func NewToolFailureError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeToolFailure,
		Retryable: false,
		Message:   message,
	}
}

// NewFatalError creates a fatal error
func NewFatalError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeFatal,
		Retryable: false,
		Message:   message,
	}
}

// LLM application error type strings, used on temporal.ApplicationError so
// workflow code can branch on err.(*temporal.ApplicationError).Type().
const (
	LLMErrTypeContextOverflow = "ContextOverflow"
	LLMErrTypeAPILimit        = "APILimit"
	LLMErrTypeFatal           = "Fatal"
	LLMErrTypeTransient       = "Transient"
	LLMErrTypeToolFailure     = "ToolFailure"
)

// WrapActivityError maps an ActivityError to a temporal.ApplicationError,
// preserving retryability and attaching the LLMErrType* string so callers
// in the workflow package can classify the failure without importing models'
// int-based ErrorType.
func WrapActivityError(e *ActivityError) error {
	var errType string
	switch e.Type {
	case ErrorTypeContextOverflow:
		errType = LLMErrTypeContextOverflow
	case ErrorTypeAPILimit:
		errType = LLMErrTypeAPILimit
	case ErrorTypeToolFailure:
		errType = LLMErrTypeToolFailure
	case ErrorTypeFatal:
		errType = LLMErrTypeFatal
	default:
		errType = LLMErrTypeTransient
	}

	if e.Retryable {
		return temporal.NewApplicationError(e.Message, errType)
	}
	return temporal.NewNonRetryableApplicationError(e.Message, errType, e)
}

// ToolErrorDetails carries the reason a tool activity failed, attached to
// the resulting temporal.ApplicationError so workflow code can surface it.
type ToolErrorDetails struct {
	Reason string `json:"reason"`
}

// NewToolNotFoundError builds a non-retryable error for an unregistered tool name.
func NewToolNotFoundError(toolName string) error {
	return temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("tool not found: %s", toolName),
		"ToolNotFound",
		nil,
		ToolErrorDetails{Reason: fmt.Sprintf("no handler registered for %q", toolName)},
	)
}

// NewToolValidationError builds a non-retryable error for bad tool arguments
// or a handler execution failure that won't resolve on retry.
func NewToolValidationError(toolName string, err error) error {
	return temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("tool %s failed: %v", toolName, err),
		"ToolValidation",
		nil,
		ToolErrorDetails{Reason: err.Error()},
	)
}

// NewToolTimeoutError builds a non-retryable error for a tool handler that
// exceeded its deadline.
func NewToolTimeoutError(toolName string, err error) error {
	return temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("tool %s timed out: %v", toolName, err),
		"ToolTimeout",
		nil,
		ToolErrorDetails{Reason: err.Error()},
	)
}
