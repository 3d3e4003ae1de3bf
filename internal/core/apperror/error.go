// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every failure the ledger surfaces to a caller is an AppError so that transports can
// render it consistently.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"foodledger/internal/core/types"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "UNAVAILABLE"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (422)
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeInvalidAdjustment = "INVALID_ADJUSTMENT"
	CodeInvalidState      = "INVALID_STATE"

	// Authentication (401)
	CodeUnauthorized = "UNAUTHORIZED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeAlreadyExists          = "ALREADY_EXISTS"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Throttling (429)
	CodeRateLimited = "RATE_LIMITED"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (sku, quantities, inventory id, ...)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewAlreadyExists is returned when a create collides with an active record (409).
func NewAlreadyExists(entity, key string) *AppError {
	return &AppError{
		Code:       CodeAlreadyExists,
		Message:    fmt.Sprintf("%s %s already exists", entity, key),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "key": key},
	}
}

// NewInsufficientStock creates a stock shortage error. The message carries both
// quantities so callers can render it without reading details.
func NewInsufficientStock(sku string, requested, available types.Quantity) *AppError {
	return &AppError{
		Code: CodeInsufficientStock,
		Message: fmt.Sprintf("Insufficient stock for %s: available %s, requested %s",
			sku, available.String(), requested.String()),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"sku":       sku,
			"requested": requested,
			"available": available,
		},
	}
}

// NewInvalidAdjustment is returned when an adjustment would break a quantity invariant (422).
func NewInvalidAdjustment(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidAdjustment,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInvalidState is returned when the record is not in a state that allows the operation (409).
func NewInvalidState(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified concurrently. Please retry the operation.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewUnavailable wraps a storage or transport failure (503). Callers may retry.
func NewUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    "Service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewRateLimited creates a throttling error (429)
func NewRateLimited() *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    "Too many requests",
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool { return HasCode(err, CodeConcurrentModification) }

// IsInsufficientStock checks if error is CodeInsufficientStock
func IsInsufficientStock(err error) bool { return HasCode(err, CodeInsufficientStock) }
