// Package response provides the standardized HTTP response envelope for the
// tracklight API. Every JSON endpoint returns {data, error}; streaming
// endpoints use their own framing.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/tracklight/tracklight/pkg/errors"
)

// Response is the envelope returned by all JSON endpoints.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error carries an API error code and message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) Response {
	return Response{Data: data}
}

// Fail creates an error response.
func Fail(code, message, details string) Response {
	return Response{Error: &Error{Code: code, Message: message, Details: details}}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes a successful response with 200 status.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// Accepted writes a successful response with 202 status.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, Success(data))
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail("BAD_REQUEST", message, details))
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusUnauthorized, Fail("UNAUTHORIZED", message, details))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message string) {
	JSON(w, http.StatusNotFound, Fail("NOT_FOUND", message, ""))
}

// MethodNotAllowed writes a 405 error response.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	JSON(w, http.StatusMethodNotAllowed, Fail(
		"METHOD_NOT_ALLOWED",
		"Method not allowed",
		"Method "+method+" is not supported for this endpoint",
	))
}

// RateLimited writes a 429 error response.
func RateLimited(w http.ResponseWriter, message string) {
	JSON(w, http.StatusTooManyRequests, Fail("RATE_LIMITED", "Rate limit exceeded", message))
}

// InternalError writes a 500 error response without exposing the cause.
func InternalError(w http.ResponseWriter, _ error) {
	JSON(w, http.StatusInternalServerError, Fail(
		"INTERNAL_ERROR",
		"Internal server error",
		"An unexpected error occurred",
	))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	JSON(w, http.StatusServiceUnavailable, Fail("SERVICE_UNAVAILABLE", "Service unavailable", message))
}

// FromError maps hub errors onto HTTP responses.
func FromError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsUnknownEventType(err):
		JSON(w, http.StatusBadRequest, Fail("UNKNOWN_EVENT_TYPE", err.Error(), ""))
	case errors.IsValidationError(err):
		BadRequest(w, err.Error(), "")
	case errors.IsConnectionClosed(err):
		JSON(w, http.StatusGone, Fail("CONNECTION_CLOSED", err.Error(), ""))
	default:
		InternalError(w, err)
	}
}
