package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrForbidden          = &AppError{http.StatusForbidden, "UNAUTHORIZED", "You are not allowed to perform this operation"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrRateLimited        = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrDuplicateEmail          = &AppError{http.StatusConflict, "DUPLICATE_EMAIL", "An account with this email already exists"}
	ErrInvalidReferralCode     = &AppError{http.StatusUnprocessableEntity, "INVALID_REFERRAL_CODE", "Referral code does not match any account"}
	ErrCodeGenerationExhausted = &AppError{http.StatusServiceUnavailable, "CODE_GENERATION_EXHAUSTED", "Could not assign a referral code, please try again"}
	ErrAccountNotFound         = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrInsufficientBalance     = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", "Adjustment would make the balance negative"}
	ErrInvalidAmount           = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a non-zero value with at most two decimal places"}
	ErrServiceUnavailable      = &AppError{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "The service is temporarily unavailable, please retry"}
	ErrDataIntegrity           = &AppError{http.StatusInternalServerError, "DATA_INTEGRITY_ERROR", "A data integrity problem was detected and has been reported"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrIdempotencyInProgress = &AppError{http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "A request with this idempotency key is still being processed, retry shortly"}
)
