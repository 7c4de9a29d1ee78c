// Package apperror defines the application's error taxonomy.
//
// Services raise these errors close to where a failure is detected; the HTTP
// layer translates them to status codes in one place (handler/response.go).
// The sentinel errors below are the "tags" — callers test them with
// errors.Is, which walks the wrap chain, so services are free to add context
// with fmt.Errorf("...: %w", err) without breaking classification.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure class. The HTTP layer maps them to
// 400, 401, 403, 404 and 429 respectively; anything that matches none of
// them is treated as an infrastructure failure and collapsed to a generic
// 500 so internals never leak to clients.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
)

// AppError carries a sentinel (for classification) together with the exact
// message a client should see. The message is part of the API contract —
// the mobile client matches on some of them — so constructors take it
// verbatim rather than composing it from parts.
type AppError struct {
	Err     error  // one of the sentinels above
	Message string // user-visible message
	Field   string // optional: the input field that caused a validation error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ValidationFailed reports malformed or unacceptable input.
// field may be empty when the error concerns the request as a whole.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthenticated reports a missing, invalid, or expired credential.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Forbidden reports a valid identity with insufficient permission.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// RateLimited reports that a client exceeded a request window.
func RateLimited(message string) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: message,
	}
}
