package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Canonical error codes shared by every service.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeConflict    = "conflict"
	CodeNotAllowed  = "method_not_allowed"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)

// ErrorResponse represents the canonical error envelope returned by the platform APIs.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Error is a request-path domain error carrying a code and, for validation failures, the offending field.
type Error struct {
	Code    string
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors by code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code == e.Code && other.Message == "" && other.Field == ""
}

var (
	// ErrValidation matches any validation error.
	ErrValidation = &Error{Code: CodeBadRequest}
	// ErrNotFound matches any not-found error.
	ErrNotFound = &Error{Code: CodeNotFound}
	// ErrConflict matches any conflict error.
	ErrConflict = &Error{Code: CodeConflict}
)

// Validation reports a malformed or disallowed field.
func Validation(field, message string) *Error {
	return &Error{Code: CodeBadRequest, Message: message, Field: field}
}

// NotFound reports a missing entity.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// Conflict reports a uniqueness violation. It belongs to the validation family and names the field.
func Conflict(field, message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Field: field}
}

// NotAllowed reports an operation the resource does not support.
func NotAllowed(message string) *Error {
	return &Error{Code: CodeNotAllowed, Message: message}
}

// Unavailable reports a dependency that could not be reached.
func Unavailable(message string) *Error {
	return &Error{Code: CodeUnavailable, Message: message}
}

// ToStatusCode maps a domain specific error code to an HTTP status for default responses.
func ToStatusCode(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Response converts any error into the envelope and status code written to clients.
// Errors that are not *Error never leak their text.
func Response(err error) (int, ErrorResponse) {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return ToStatusCode(domainErr.Code), ErrorResponse{
			Code:    domainErr.Code,
			Message: domainErr.Message,
			Field:   domainErr.Field,
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "internal server error"}
}
