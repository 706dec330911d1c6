package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/money"
)

type accountDTO struct {
	ID               uuid.UUID   `json:"id"`
	DisplayName      string      `json:"display_name"`
	Email            string      `json:"email"`
	Balance          int64       `json:"balance"`
	BalanceFormatted string      `json:"balance_formatted"`
	ReferralCode     string      `json:"referral_code"`
	ReferredBy       *string     `json:"referred_by"`
	Referrals        []uuid.UUID `json:"referrals"`
	IsActivated      bool        `json:"is_activated"`
	IsAdmin          bool        `json:"is_admin"`
	ProfileImageURL  *string     `json:"profile_image_url"`
	CreatedAt        time.Time   `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	referrals := a.Referrals
	if referrals == nil {
		referrals = []uuid.UUID{}
	}
	return accountDTO{
		ID:               a.ID,
		DisplayName:      a.DisplayName,
		Email:            a.Email,
		Balance:          a.Balance,
		BalanceFormatted: money.FormatMinor(a.Balance),
		ReferralCode:     a.ReferralCode,
		ReferredBy:       a.ReferredBy,
		Referrals:        referrals,
		IsActivated:      a.IsActivated,
		IsAdmin:          a.IsAdmin,
		ProfileImageURL:  a.ProfileImageURL,
		CreatedAt:        a.CreatedAt,
	}
}

func toAccountDTOs(accounts []domain.Account) []accountDTO {
	dtos := make([]accountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}
	return dtos
}

type referralDTO struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	IsActivated bool      `json:"is_activated"`
	Deleted     bool      `json:"deleted"`
	JoinedAt    time.Time `json:"joined_at"`
}

func toReferralDTOs(accounts []domain.Account) []referralDTO {
	dtos := make([]referralDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = referralDTO{
			ID:          a.ID,
			DisplayName: a.DisplayName,
			IsActivated: a.IsActivated,
			Deleted:     a.IsDeleted(),
			JoinedAt:    a.CreatedAt,
		}
	}
	return dtos
}

type ledgerEntryDTO struct {
	ID             uuid.UUID `json:"id"`
	AccountID      uuid.UUID `json:"account_id"`
	Delta          int64     `json:"delta"`
	DeltaFormatted string    `json:"delta_formatted"`
	BalanceBefore  int64     `json:"balance_before"`
	BalanceAfter   int64     `json:"balance_after"`
	ActorID        uuid.UUID `json:"actor_id"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

func toLedgerEntryDTO(e *domain.LedgerEntry) ledgerEntryDTO {
	return ledgerEntryDTO{
		ID:             e.ID,
		AccountID:      e.AccountID,
		Delta:          e.Delta,
		DeltaFormatted: money.FormatMinor(e.Delta),
		BalanceBefore:  e.BalanceBefore,
		BalanceAfter:   e.BalanceAfter,
		ActorID:        e.ActorID,
		Reason:         e.Reason,
		CreatedAt:      e.CreatedAt,
	}
}
