package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type APIResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type pageDTO[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{Status: statusSuccess, Data: data})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Status:  statusError,
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: details,
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// MapDomainError picks the AppError for err. Unknown errors map to
// ErrInternalError.
func MapDomainError(err error) *AppError {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return ErrForbidden
	case errors.Is(err, domain.ErrInconsistent):
		return ErrDataIntegrity
	case errors.Is(err, domain.ErrTransient),
		errors.Is(err, domain.ErrVersionConflict):
		return ErrServiceUnavailable
	case errors.Is(err, domain.ErrDuplicateEmail):
		return ErrDuplicateEmail
	case errors.Is(err, domain.ErrInvalidReferralCode):
		return ErrInvalidReferralCode
	case errors.Is(err, domain.ErrCodeGenerationExhausted):
		return ErrCodeGenerationExhausted
	case errors.Is(err, domain.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, domain.ErrNotFound):
		return ErrResourceNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, domain.ErrInvalidAmount):
		return ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, domain.ErrInvalidRequest):
		return ErrInvalidRequest
	default:
		return ErrInternalError
	}
}

func RespondDomainError(w http.ResponseWriter, err error) {
	appErr := MapDomainError(err)

	switch appErr {
	case ErrDataIntegrity:
		slog.Error("data integrity violation", "error", err)
	case ErrInternalError:
		slog.Error("unhandled domain error", "error", err)
	case ErrServiceUnavailable:
		slog.Warn("transient failure", "error", err)
	}

	var details any
	if appErr == ErrInvalidRequest {
		details = err.Error()
	}
	RespondAppError(w, appErr, details)
}
