package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mcare/mcare-backend/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("resource conflict")
	ErrInternal          = errors.New("internal server error")
	ErrValidation        = errors.New("validation error")
	ErrLifecycle         = errors.New("lifecycle transition not permitted")
	ErrPaymentRequired   = errors.New("payment required")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnavailable       = errors.New("dependency unavailable")
)

// AppError represents an application error with context.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"`
	Params     map[string]string `json:"-"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message.
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// WithDetails adds details to an AppError.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors. Status codes and Code strings match §7 of
// the platform's error handling design.

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "unauthenticated",
		Message:    message,
		MessageKey: "errors.unauthenticated",
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "forbidden",
		Message:    message,
		MessageKey: "errors.forbidden",
		StatusCode: http.StatusForbidden,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "validation",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "validation",
		Message:    message,
		MessageKey: "errors.bad_request",
		StatusCode: http.StatusBadRequest,
	}
}

func Lifecycle(message string) *AppError {
	return &AppError{
		Err:        ErrLifecycle,
		Code:       "conflict/lifecycle",
		Message:    message,
		MessageKey: "errors.lifecycle",
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "conflict",
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
	}
}

func PaymentRequired(message string) *AppError {
	return &AppError{
		Err:        ErrPaymentRequired,
		Code:       "payment_required",
		Message:    message,
		MessageKey: "errors.payment_required",
		StatusCode: http.StatusPaymentRequired,
	}
}

func RateLimited(message string) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Code:       "rate_limited",
		Message:    message,
		MessageKey: "errors.rate_limited",
		StatusCode: http.StatusTooManyRequests,
	}
}

func Unavailable(message string) *AppError {
	return &AppError{
		Err:        ErrUnavailable,
		Code:       "unavailable",
		Message:    message,
		MessageKey: "errors.unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "internal",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

// Is checks if the error matches a target error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type.
func As(err error, target any) bool {
	return errors.As(err, target)
}
