// Package errors provides structured error handling with context propagation and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates a session or user absent (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeUnauthorized indicates the actor is not the creator for an owner-only operation (HTTP 403)
	TypeUnauthorized ErrorType = "unauthorized"
	// TypeAlreadyMember indicates the actor already sits on the roster (HTTP 409)
	TypeAlreadyMember ErrorType = "already_member"
	// TypeAlreadyRequested indicates a join request is already pending (HTTP 409)
	TypeAlreadyRequested ErrorType = "already_requested"
	// TypeNoSuchRequest indicates the target has no pending join request (HTTP 404)
	TypeNoSuchRequest ErrorType = "no_such_request"
	// TypeSessionFull indicates the roster is at capacity (HTTP 409)
	TypeSessionFull ErrorType = "session_full"
	// TypeCannotRemoveCreator indicates an attempt to kick the session creator (HTTP 400)
	TypeCannotRemoveCreator ErrorType = "cannot_remove_creator"
	// TypeNotAParticipant indicates the target is not on the roster (HTTP 404)
	TypeNotAParticipant ErrorType = "not_a_participant"
	// TypeExpired indicates the session is past its scheduled end (HTTP 410)
	TypeExpired ErrorType = "expired"
	// TypeConflict indicates an optimistic-concurrency collision exhausted its retry budget (HTTP 409)
	TypeConflict ErrorType = "conflict"
	// TypeCorrupt indicates a stored record failed validation at the adapter boundary (HTTP 500)
	TypeCorrupt ErrorType = "corrupt_record"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeExternal indicates external service error (HTTP 502)
	TypeExternal ErrorType = "external"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation, TypeCannotRemoveCreator:
		return http.StatusBadRequest
	case TypeNotFound, TypeNoSuchRequest, TypeNotAParticipant:
		return http.StatusNotFound
	case TypeUnauthorized:
		return http.StatusForbidden
	case TypeAlreadyMember, TypeAlreadyRequested, TypeSessionFull, TypeConflict:
		return http.StatusConflict
	case TypeExpired:
		return http.StatusGone
	case TypeExternal:
		return http.StatusBadGateway
	case TypeCorrupt, TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Expected reports whether the error is a recoverable-by-the-caller outcome
// rather than an unexpected failure. Expected errors log at info level.
func (e *Error) Expected() bool {
	switch e.Type {
	case TypeCorrupt, TypeInternal, TypeExternal:
		return false
	default:
		return true
	}
}

func newError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message, Context: make(map[string]any)}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error { return newError(TypeValidation, message) }

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error { return newError(TypeNotFound, message) }

// UnauthorizedError creates a new unauthorized error (HTTP 403).
func UnauthorizedError(message string) *Error { return newError(TypeUnauthorized, message) }

// AlreadyMemberError creates a new already-member error (HTTP 409).
func AlreadyMemberError(message string) *Error { return newError(TypeAlreadyMember, message) }

// AlreadyRequestedError creates a new already-requested error (HTTP 409).
func AlreadyRequestedError(message string) *Error { return newError(TypeAlreadyRequested, message) }

// NoSuchRequestError creates a new no-such-request error (HTTP 404).
func NoSuchRequestError(message string) *Error { return newError(TypeNoSuchRequest, message) }

// SessionFullError creates a new session-full error (HTTP 409).
func SessionFullError(message string) *Error { return newError(TypeSessionFull, message) }

// CannotRemoveCreatorError creates a new cannot-remove-creator error (HTTP 400).
func CannotRemoveCreatorError(message string) *Error {
	return newError(TypeCannotRemoveCreator, message)
}

// NotAParticipantError creates a new not-a-participant error (HTTP 404).
func NotAParticipantError(message string) *Error { return newError(TypeNotAParticipant, message) }

// ExpiredError creates a new expired error (HTTP 410).
func ExpiredError(message string) *Error { return newError(TypeExpired, message) }

// ConflictError creates a new conflict error (HTTP 409).
func ConflictError(message string) *Error { return newError(TypeConflict, message) }

// CorruptRecordError creates a new corrupt-record error (HTTP 500).
func CorruptRecordError(message string, cause error) *Error {
	err := newError(TypeCorrupt, message)
	err.Cause = cause
	return err
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	err := newError(TypeInternal, message)
	err.Cause = cause
	return err
}

// ExternalError creates a new external service error (HTTP 502).
func ExternalError(message string, cause error) *Error {
	err := newError(TypeExternal, message)
	err.Cause = cause
	return err
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithField is an alias for WithContext (chainable).
func (e *Error) WithField(key string, value any) *Error {
	return e.WithContext(key, value)
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
