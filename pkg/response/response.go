// Package response builds the HTTP-style responses returned by every route:
// status code, the fixed CORS and security headers, and a JSON body that
// always carries a message.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/sitewatch/visitorfn/pkg/errors"
)

// RetryAfterSeconds is the retry hint attached to throttled responses.
const RetryAfterSeconds = 30

// CORSHeaders are sent on every response.
var CORSHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
	"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
}

// SecurityHeaders are sent on every response.
var SecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000",
}

// SupportedMethods is listed by 405 responses.
var SupportedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}

// Body is a JSON object body.
type Body map[string]interface{}

// Response is the status/headers/body triple handed back to the caller.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Create serializes body and applies CORS, security and any extra headers.
func Create(statusCode int, body interface{}, extra ...map[string]string) Response {
	headers := make(map[string]string, len(CORSHeaders)+len(SecurityHeaders))
	for k, v := range CORSHeaders {
		headers[k] = v
	}
	for k, v := range SecurityHeaders {
		headers[k] = v
	}
	for _, h := range extra {
		for k, v := range h {
			headers[k] = v
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		statusCode = http.StatusInternalServerError
		data = []byte(`{"message":"Internal server error occurred"}`)
	}

	return Response{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(data),
	}
}

// Success returns a 200 whose body merges message with data.
func Success(data Body, message string) Response {
	if message == "" {
		message = "Operation completed successfully"
	}
	body := make(Body, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["message"] = message
	return Create(http.StatusOK, body)
}

// Error returns an error response. details is omitted when nil or empty;
// includeRetry adds retry and retryAfter.
func Error(statusCode int, message string, details interface{}, includeRetry bool) Response {
	body := Body{"message": message}
	if !isEmpty(details) {
		body["details"] = details
	}
	if includeRetry {
		body["retry"] = true
		body["retryAfter"] = RetryAfterSeconds
	}
	return Create(statusCode, body)
}

// CORSPreflight answers an OPTIONS request.
func CORSPreflight() Response {
	return Create(http.StatusOK, Body{"message": "CORS preflight successful"})
}

// MethodNotAllowed answers a method the route does not support.
func MethodNotAllowed(method string) Response {
	return Error(http.StatusMethodNotAllowed,
		fmt.Sprintf("Method %s not allowed", method),
		Body{"supportedMethods": SupportedMethods}, false)
}

// ValidationFailed answers a request that failed validation.
func ValidationFailed(validationErrors []string) Response {
	return Error(http.StatusBadRequest, "Request validation failed",
		Body{"validationErrors": validationErrors}, false)
}

// Throttled answers when the backend is over capacity.
func Throttled() Response {
	return Error(http.StatusTooManyRequests, "Service temporarily busy, please try again", nil, true)
}

// ResourceNotFound answers when a named resource is missing.
func ResourceNotFound(resource string) Response {
	return Error(http.StatusNotFound, fmt.Sprintf("%s not found or not initialized", resource), nil, false)
}

// InternalServerError is the fixed generic 500. It never carries diagnostics.
func InternalServerError() Response {
	return Error(http.StatusInternalServerError, "Internal server error occurred", nil, false)
}

// Backend names used in backend error messages.
const (
	BackendDatabase = "Database"
	BackendEC2      = "EC2"
)

// FromError translates an adapter error into a response. resource names the
// thing that was looked up, for 404s; backend names the failing service in
// the 500 message ("Database service error"). Anything that is not a
// classified error becomes the generic 500.
func FromError(err error, resource, backend string) Response {
	e, ok := apperrors.As(err)
	if !ok {
		return InternalServerError()
	}

	switch e.Code {
	case apperrors.ErrCodeResourceNotFound, apperrors.ErrCodeInstanceNotFound:
		return ResourceNotFound(resource)
	case apperrors.ErrCodeThrottled:
		return Throttled()
	case apperrors.ErrCodeInvalidState:
		return Error(http.StatusBadRequest, "Operation not allowed in current state",
			Body{"reason": e.Message}, false)
	case apperrors.ErrCodeValidationFailed:
		return Error(http.StatusBadRequest, "Invalid request format",
			Body{"backendError": e.Message}, false)
	case apperrors.ErrCodeConditionFailed:
		return Error(http.StatusBadRequest, "Operation condition not met",
			Body{"reason": e.Message}, false)
	case apperrors.ErrCodeBackendError:
		var details interface{}
		if e.BackendCode != "" {
			details = Body{"errorCode": e.BackendCode}
		}
		if backend == "" {
			backend = "Backend"
		}
		return Error(http.StatusInternalServerError, backend+" service error", details, false)
	default:
		return InternalServerError()
	}
}

// Decode parses a response body. Numbers decode as json.Number so integer
// values survive the round trip exactly.
func Decode(r Response) (Body, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(r.Body)))
	dec.UseNumber()
	var body Body
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return body, nil
}

// Header returns the response headers as an http.Header.
func (r Response) Header() http.Header {
	h := make(http.Header, len(r.Headers))
	for k, v := range r.Headers {
		h.Set(k, v)
	}
	return h
}

func isEmpty(v interface{}) bool {
	switch d := v.(type) {
	case nil:
		return true
	case string:
		return d == ""
	case Body:
		return len(d) == 0
	case map[string]interface{}:
		return len(d) == 0
	case []string:
		return len(d) == 0
	default:
		return false
	}
}
