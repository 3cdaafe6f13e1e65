package errors

import (
	"context"
	stderrors "errors"

	"github.com/aws/smithy-go"
)

// backendCodes maps AWS API error codes to error codes. Anything absent
// classifies as ErrCodeBackendError.
var backendCodes = map[string]ErrorCode{
	// DynamoDB
	"ResourceNotFoundException":              ErrCodeResourceNotFound,
	"ProvisionedThroughputExceededException": ErrCodeThrottled,
	"RequestLimitExceeded":                   ErrCodeThrottled,
	"ThrottlingException":                    ErrCodeThrottled,
	"ConditionalCheckFailedException":        ErrCodeConditionFailed,
	"ValidationException":                    ErrCodeValidationFailed,

	// EC2
	"InvalidInstanceID.NotFound":  ErrCodeInstanceNotFound,
	"InvalidInstanceID.Malformed": ErrCodeInstanceNotFound,
	"IncorrectInstanceState":      ErrCodeInvalidState,
	"Throttling":                  ErrCodeThrottled,
}

var retryableBackendCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"Throttling":                             true,
	"ServiceUnavailable":                     true,
	"InternalServerError":                    true,
}

// Classify maps a backend error identifier to an error code.
func Classify(backendCode string) ErrorCode {
	if code, ok := backendCodes[backendCode]; ok {
		return code
	}
	return ErrCodeBackendError
}

// FromBackend converts an error returned by an AWS client into an *Error.
// Errors that are already *Error pass through unchanged; errors carrying no
// API code become ErrCodeBackendError with the cause attached.
func FromBackend(err error, component, operation string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		code := Classify(apiErr.ErrorCode())
		return NewError(code, apiErr.ErrorMessage()).
			WithBackendCode(apiErr.ErrorCode()).
			WithComponent(component).
			WithOperation(operation).
			WithCause(err)
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return NewError(ErrCodeBackendError, "backend call did not complete").
			WithBackendCode("RequestCanceled").
			WithComponent(component).
			WithOperation(operation).
			WithCause(err)
	}

	return NewError(ErrCodeBackendError, "unexpected backend error occurred").
		WithComponent(component).
		WithOperation(operation).
		WithCause(err)
}

// IsRetryable reports whether err carries a transient backend condition.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return retryableBackendCodes[apiErr.ErrorCode()]
	}
	return false
}

// Restrict narrows e to the codes an adapter is allowed to report. Any other
// classification becomes ErrCodeBackendError; the backend code, message and
// cause are kept.
func Restrict(e *Error, allowed ...ErrorCode) *Error {
	if e == nil || e.Code == ErrCodeBackendError {
		return e
	}
	for _, code := range allowed {
		if e.Code == code {
			return e
		}
	}
	narrowed := NewError(ErrCodeBackendError, e.Message).
		WithBackendCode(e.BackendCode).
		WithComponent(e.Component).
		WithOperation(e.Operation)
	if e.Cause != nil {
		narrowed = narrowed.WithCause(e.Cause)
	}
	return narrowed
}
