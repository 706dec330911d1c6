package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrDuplicateEmail          = errors.New("email already registered")
	ErrInvalidReferralCode     = errors.New("invalid referral code")
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidAmount           = errors.New("amount must be non-zero")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrVersionConflict         = errors.New("optimistic lock conflict")
	ErrDuplicateReferralCode   = errors.New("referral code already taken")

	// ErrTransient marks storage or network failures the caller may retry.
	ErrTransient = errors.New("service temporarily unavailable")

	// ErrInconsistent marks a broken data-integrity invariant. Never retry it.
	ErrInconsistent = errors.New("data integrity violation")
)
