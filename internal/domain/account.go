package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const ReferralCodeLength = 6

type Account struct {
	ID              uuid.UUID
	DisplayName     string
	Email           string
	PasswordHash    string
	Balance         int64
	Version         int64
	ReferralCode    string
	ReferredBy      *string
	Referrals       []uuid.UUID
	IsActivated     bool
	IsAdmin         bool
	ProfileImageURL *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

func (a *Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// HasReferred reports whether id appears in the account's referrals.
func (a *Account) HasReferred(id uuid.UUID) bool {
	for _, r := range a.Referrals {
		if r == id {
			return true
		}
	}
	return false
}

// NormalizeReferralCode trims and upper-cases user input. Codes are
// generated upper-case.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
