package response

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
)

type APIResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Redirect writes a redirect with no body. Callers pick the status; the
// gate uses 302.
func Redirect(w http.ResponseWriter, status int, url string) {
	w.Header().Set("Location", url)
	w.WriteHeader(status)
}

func JSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// ErrorResponse writes err as a JSON error. Errors that are not AppErrors,
// and internal ones, are reported without their details.
func ErrorResponse(ctx context.Context, w http.ResponseWriter, err error, logger *slog.Logger) {
	appErr := classify(ctx, err, logger)

	JSONResponse(w, appErr.HTTPCode, APIResponse{
		Code:    appErr.HTTPCode,
		Status:  "error",
		Message: appErr.Message,
		Data: map[string]string{
			"error_code": appErr.Code,
		},
	})
}

// PlainErrorResponse is ErrorResponse for browser-facing routes.
func PlainErrorResponse(ctx context.Context, w http.ResponseWriter, err error, logger *slog.Logger) {
	appErr := classify(ctx, err, logger)
	http.Error(w, http.StatusText(appErr.HTTPCode), appErr.HTTPCode)
}

func classify(ctx context.Context, err error, logger *slog.Logger) *apperrors.AppError {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.HTTPCode >= http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(ctx, "Internal server error", slog.String("error", err.Error()))
		}
		code := apperrors.CodeInternalError
		if appErr != nil {
			code = appErr.Code
		}
		return &apperrors.AppError{
			Code:     code,
			Message:  "An internal error occurred",
			HTTPCode: http.StatusInternalServerError,
		}
	}

	if logger != nil {
		logger.WarnContext(ctx, "Application error occurred",
			slog.String("code", appErr.Code),
			slog.String("message", appErr.Message))
	}
	return appErr
}

func SuccessResponse(w http.ResponseWriter, status int, data any) {
	JSONResponse(w, status, APIResponse{
		Code:   status,
		Status: "success",
		Data:   data,
	})
}

func ValidationErrorResponse(ctx context.Context, w http.ResponseWriter, message string, details map[string]string, logger *slog.Logger) {
	if logger != nil {
		logger.WarnContext(ctx, "Validation error",
			slog.String("message", message),
			slog.Any("details", details))
	}

	JSONResponse(w, http.StatusBadRequest, APIResponse{
		Code:    http.StatusBadRequest,
		Status:  "error",
		Message: message,
		Data: map[string]any{
			"error_code": apperrors.CodeValidationFailed,
			"details":    details,
		},
	})
}
