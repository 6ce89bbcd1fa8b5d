package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents a structured application error with context
type AppError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	HTTPCode int    `json:"-"`
	Cause    error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports a match on the error code, so sentinel AppErrors can be
// compared with errors.Is after being wrapped with a different cause.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Common error codes
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeConfigError      = "CONFIG_ERROR"
	CodeInvalidRequest   = "INVALID_REQUEST"

	// Token-specific error codes
	CodeDuplicateToken = "DUPLICATE_TOKEN"
	CodeTokenExpired   = "TOKEN_EXPIRED"
	CodeTokenInactive  = "TOKEN_INACTIVE"
	CodeEmptyToken     = "EMPTY_TOKEN"

	// Raised when the surrounding server lacks a capability the gate needs
	CodeMisconfigured = "MISCONFIGURED"

	// Cache-specific error codes
	CodeCacheError       = "CACHE_ERROR"
	CodeCacheUnavailable = "CACHE_UNAVAILABLE"

	// Session-specific error codes
	CodeSessionNotFound = "SESSION_NOT_FOUND"
)

// Error constructors
func ValidationError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeValidationFailed,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func NotFoundError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeNotFound,
		Message:  message,
		HTTPCode: http.StatusNotFound,
		Cause:    cause,
	}
}

func UnauthorizedError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeUnauthorized,
		Message:  message,
		HTTPCode: http.StatusUnauthorized,
		Cause:    cause,
	}
}

func InternalError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInternalError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeDatabaseError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func ConfigError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeConfigError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func InvalidRequestError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidRequest,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

// Token-specific error constructors
func DuplicateTokenError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeDuplicateToken,
		Message:  message,
		HTTPCode: http.StatusConflict,
		Cause:    cause,
	}
}

func TokenExpiredError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeTokenExpired,
		Message:  message,
		HTTPCode: http.StatusForbidden,
		Cause:    cause,
	}
}

func TokenInactiveError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeTokenInactive,
		Message:  message,
		HTTPCode: http.StatusForbidden,
		Cause:    cause,
	}
}

func EmptyTokenError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeEmptyToken,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func MisconfiguredError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeMisconfigured,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// Cache-specific error constructors
func CacheError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeCacheError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func CacheUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeCacheUnavailable,
		Message:  message,
		HTTPCode: http.StatusServiceUnavailable,
		Cause:    cause,
	}
}

func SessionNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeSessionNotFound,
		Message:  message,
		HTTPCode: http.StatusUnauthorized,
		Cause:    cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code, message string) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the original code but update message
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Message:  fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPCode: appErr.HTTPCode,
			Cause:    appErr.Cause,
		}
	}

	// Determine HTTP code based on error code
	httpCode := http.StatusInternalServerError
	switch code {
	case CodeValidationFailed, CodeInvalidRequest:
		httpCode = http.StatusBadRequest
	case CodeNotFound:
		httpCode = http.StatusNotFound
	case CodeUnauthorized, CodeSessionNotFound:
		httpCode = http.StatusUnauthorized
	case CodeTokenExpired, CodeTokenInactive:
		httpCode = http.StatusForbidden
	case CodeDuplicateToken:
		httpCode = http.StatusConflict
	case CodeCacheUnavailable:
		httpCode = http.StatusServiceUnavailable
	}

	return &AppError{
		Code:     code,
		Message:  message,
		HTTPCode: httpCode,
		Cause:    err,
	}
}

// IsType checks if an error is of a specific type/code
func IsType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetHTTPCode extracts the HTTP status code from an error
func GetHTTPCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}
