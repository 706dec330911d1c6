package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/service/account"
)

type selfService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateProfile(ctx context.Context, accountID uuid.UUID, req account.UpdateProfileRequest) (*domain.Account, error)
}

type referralLister interface {
	ReferredAccounts(ctx context.Context, accountID uuid.UUID) ([]domain.Account, error)
}

type MeHandler struct {
	accounts  selfService
	referrals referralLister
	baseURL   string
}

func NewMeHandler(accounts selfService, referrals referralLister, baseURL string) *MeHandler {
	return &MeHandler{accounts: accounts, referrals: referrals, baseURL: baseURL}
}

type dashboardDTO struct {
	accountDTO
	ReferralLink   string `json:"referral_link"`
	TotalReferrals int    `json:"total_referrals"`
}

func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	a, err := h.accounts.GetByID(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, dashboardDTO{
		accountDTO:     toAccountDTO(a),
		ReferralLink:   ReferralLink(h.baseURL, a.ReferralCode),
		TotalReferrals: len(a.Referrals),
	})
}

type updateProfileRequest struct {
	DisplayName     *string `json:"display_name"`
	ProfileImageURL *string `json:"profile_image_url"`
}

func (r updateProfileRequest) Validate() []FieldError {
	var errs []FieldError
	if r.DisplayName == nil && r.ProfileImageURL == nil {
		errs = append(errs, FieldError{Field: "body", Message: "display_name or profile_image_url required"})
	}
	if r.DisplayName != nil && strings.TrimSpace(*r.DisplayName) == "" {
		errs = append(errs, FieldError{Field: "display_name", Message: "must not be empty"})
	}
	if r.ProfileImageURL != nil && *r.ProfileImageURL != "" && !isURL(*r.ProfileImageURL) {
		errs = append(errs, FieldError{Field: "profile_image_url", Message: "must be a URL"})
	}
	return errs
}

func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	a, err := h.accounts.UpdateProfile(r.Context(), userID, account.UpdateProfileRequest{
		DisplayName:     req.DisplayName,
		ProfileImageURL: req.ProfileImageURL,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to update profile", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(a))
}

func (h *MeHandler) Referrals(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	referred, err := h.referrals.ReferredAccounts(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toReferralDTOs(referred))
}

// ReferralLink appends ?ref=code to base. An unparsable base falls back to
// plain concatenation.
func ReferralLink(base, code string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?ref=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set("ref", code)
	u.RawQuery = q.Encode()
	return u.String()
}
