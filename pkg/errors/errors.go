// Package errors provides the structured error system shared by the counter and renewal backends.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a structured error code surfaced by an adapter.
type ErrorCode string

// Error codes form a closed set; services translate each of them explicitly.
const (
	// Lookup Errors
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"

	// Capacity Errors
	ErrCodeThrottled ErrorCode = "THROTTLED"

	// State Errors
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeConditionFailed ErrorCode = "CONDITION_FAILED"

	// Request Errors
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Backend and Internal Errors
	ErrCodeBackendError ErrorCode = "BACKEND_ERROR"
	ErrCodeUnexpected   ErrorCode = "UNEXPECTED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryLookup   ErrorCategory = "lookup"
	CategoryCapacity ErrorCategory = "capacity"
	CategoryState    ErrorCategory = "state"
	CategoryRequest  ErrorCategory = "request"
	CategoryBackend  ErrorCategory = "backend"
	CategoryInternal ErrorCategory = "internal"
)

// Error represents a structured error with backend context.
type Error struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// BackendCode is the raw error identifier reported by the cloud API, if any.
	BackendCode string `json:"backend_code,omitempty"`
	Cause       error  `json:"-"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *Error) Is(target error) bool {
	if other, ok := target.(*Error); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *Error) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.BackendCode != "" {
		parts = append(parts, fmt.Sprintf("BackendCode=%s", e.BackendCode))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("Error{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error with default category, retry hint and HTTP status.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Details:    make(map[string]interface{}),
		Retryable:  code == ErrCodeThrottled,
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Errorf creates a new error with a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeResourceNotFound, ErrCodeInstanceNotFound:
		return CategoryLookup
	case ErrCodeThrottled:
		return CategoryCapacity
	case ErrCodeInvalidState, ErrCodeConditionFailed:
		return CategoryState
	case ErrCodeValidationFailed:
		return CategoryRequest
	case ErrCodeBackendError:
		return CategoryBackend
	default:
		return CategoryInternal
	}
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeResourceNotFound: 404,
		ErrCodeInstanceNotFound: 404,
		ErrCodeThrottled:        429,
		ErrCodeInvalidState:     400,
		ErrCodeConditionFailed:  400,
		ErrCodeValidationFailed: 400,
		ErrCodeBackendError:     500,
		ErrCodeUnexpected:       500,
	}

	if status, ok := statusMap[code]; ok {
		return status
	}
	return 500
}

// CodeOf returns the code of the first *Error in err's chain, or ErrCodeUnexpected.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnexpected
}

// As is a typed shortcut over errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}

// WithDetail adds detailed information to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithBackendCode records the raw backend error identifier.
func (e *Error) WithBackendCode(code string) *Error {
	e.BackendCode = code
	if retryableBackendCodes[code] {
		e.Retryable = true
	}
	return e
}
