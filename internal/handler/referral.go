package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

type referrerResolver interface {
	ResolveReferrer(ctx context.Context, code string) (*domain.Account, error)
}

type ReferralHandler struct {
	referrals referrerResolver
}

func NewReferralHandler(referrals referrerResolver) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

type referrerPreviewDTO struct {
	ReferralCode string `json:"referral_code"`
	DisplayName  string `json:"display_name"`
}

// Preview lets the registration page confirm a ?ref= code before submit.
func (h *ReferralHandler) Preview(w http.ResponseWriter, r *http.Request) {
	a, err := h.referrals.ResolveReferrer(r.Context(), r.PathValue("code"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			RespondAppError(w, ErrInvalidReferralCode, nil)
			return
		}
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, referrerPreviewDTO{
		ReferralCode: a.ReferralCode,
		DisplayName:  a.DisplayName,
	})
}
