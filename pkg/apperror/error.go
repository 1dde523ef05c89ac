package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// Is matches another *Error by code, so errors.Is(err, ErrNotFound) works for
// any not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	c := *e
	c.Internal = err
	return &c
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	c := *e
	c.Details = details
	return &c
}

func (e *Error) body() map[string]any {
	errBody := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		errBody["details"] = e.Details
	}
	return map[string]any{"error": errBody}
}

// New creates a new application error
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

var (
	ErrNotFound           = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrConflict           = New(http.StatusConflict, "conflict", "Resource already exists")
	ErrDependencyNotFound = New(http.StatusUnprocessableEntity, "dependency_not_found", "Referenced resource does not exist")

	ErrBadRequest = New(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrValidation = New(http.StatusUnprocessableEntity, "validation_error", "Validation failed")

	ErrInternal = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
	ErrDatabase = New(http.StatusInternalServerError, "database_error", "Database operation failed")
)

// ToHTTPError converts an error to a status code and response body.
// Wrapped *Error values are unwrapped; anything else becomes a 500.
func ToHTTPError(err error) (int, map[string]any) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus, appErr.body()
	}
	return http.StatusInternalServerError, ErrInternal.body()
}

// NewBadRequest creates a bad request error with a custom message
func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// NewNotFound creates a not found error for a resource type and ID
func NewNotFound(resourceType, id string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s '%s' not found", resourceType, id))
}

// NewConflict creates a conflict error with a custom message
func NewConflict(message string) *Error {
	return ErrConflict.WithMessage(message)
}

// NewValidation creates a validation error with a custom message
func NewValidation(message string) *Error {
	return ErrValidation.WithMessage(message)
}

// NewDependencyNotFound reports that a referenced resource is missing.
func NewDependencyNotFound(resourceType, id string) *Error {
	return ErrDependencyNotFound.WithMessage(fmt.Sprintf("%s '%s' does not exist", resourceType, id))
}

// NewInternal creates an internal error with a message and optional wrapped error
func NewInternal(message string, err error) *Error {
	return ErrInternal.WithMessage(message).WithInternal(err)
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool           { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool         { return errors.Is(err, ErrValidation) }
func IsDependencyNotFound(err error) bool { return errors.Is(err, ErrDependencyNotFound) }
