package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/money"
	"github.com/josh-kwaku/valorpoint/internal/service"
)

type adminAccounts interface {
	Search(ctx context.Context, actor auth.Claims, term string, limit, offset int) ([]domain.Account, int, error)
	GetForAdmin(ctx context.Context, actor auth.Claims, id uuid.UUID) (*domain.Account, error)
	ToggleActivation(ctx context.Context, actor auth.Claims, accountID uuid.UUID, target bool) (*domain.Account, error)
	Delete(ctx context.Context, actor auth.Claims, accountID uuid.UUID) error
}

type adminLedger interface {
	AdjustBalance(ctx context.Context, actor auth.Claims, accountID uuid.UUID, delta int64, reason string) (*domain.LedgerEntry, error)
	History(ctx context.Context, actor auth.Claims, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type integrityChecker interface {
	CheckAccount(ctx context.Context, actor auth.Claims, accountID uuid.UUID) (*service.IntegrityReport, error)
}

type AdminHandler struct {
	accounts   adminAccounts
	ledger     adminLedger
	referrals  referralLister
	reconciler integrityChecker
}

func NewAdminHandler(accounts adminAccounts, ledger adminLedger, referrals referralLister, reconciler integrityChecker) *AdminHandler {
	return &AdminHandler{
		accounts:   accounts,
		ledger:     ledger,
		referrals:  referrals,
		reconciler: reconciler,
	}
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	limit, offset, fields := pagination(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	accounts, total, err := h.accounts.Search(r.Context(), actor, r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, pageDTO[accountDTO]{
		Items:  toAccountDTOs(accounts),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

type adminAccountDTO struct {
	accountDTO
	ReferredAccounts []referralDTO `json:"referred_accounts"`
}

func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := adminTarget(w, r)
	if !ok {
		return
	}

	a, err := h.accounts.GetForAdmin(r.Context(), actor, id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	referred, err := h.referrals.ReferredAccounts(r.Context(), a.ID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, adminAccountDTO{
		accountDTO:       toAccountDTO(a),
		ReferredAccounts: toReferralDTOs(referred),
	})
}

type adjustBalanceRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func (r adjustBalanceRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Amount) == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}
	return errs
}

func (h *AdminHandler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := adminTarget(w, r)
	if !ok {
		return
	}

	var req adjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	delta, err := money.ParseMajor(req.Amount)
	if err != nil || delta == 0 {
		RespondAppError(w, ErrInvalidAmount, nil)
		return
	}

	entry, err := h.ledger.AdjustBalance(r.Context(), actor, id, delta, req.Reason)
	if err != nil {
		logging.FromContext(r.Context()).Warn("balance adjustment rejected",
			"account_id", id,
			"delta", delta,
			"error", err,
		)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toLedgerEntryDTO(entry))
}

type activationRequest struct {
	Activate *bool `json:"activate"`
}

func (h *AdminHandler) SetActivation(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := adminTarget(w, r)
	if !ok {
		return
	}

	var req activationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Activate == nil {
		RespondValidationError(w, []FieldError{{Field: "activate", Message: "required"}})
		return
	}

	a, err := h.accounts.ToggleActivation(r.Context(), actor, id, *req.Activate)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(a))
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := adminTarget(w, r)
	if !ok {
		return
	}

	if err := h.accounts.Delete(r.Context(), actor, id); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (h *AdminHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := adminTarget(w, r)
	if !ok {
		return
	}

	limit, offset, fields := pagination(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entries, total, err := h.ledger.History(r.Context(), actor, id, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]ledgerEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toLedgerEntryDTO(&entries[i])
	}
	RespondSuccess(w, http.StatusOK, pageDTO[ledgerEntryDTO]{
		Items:  dtos,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *AdminHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := adminTarget(w, r)
	if !ok {
		return
	}

	report, err := h.reconciler.CheckAccount(r.Context(), actor, id)
	if err != nil {
		if errors.Is(err, domain.ErrInconsistent) && report != nil {
			logging.FromContext(r.Context()).Error("integrity check failed", "account_id", id, "error", err)
			RespondAppError(w, ErrDataIntegrity, report)
			return
		}
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, report)
}

func adminTarget(w http.ResponseWriter, r *http.Request) (auth.Claims, uuid.UUID, bool) {
	actor, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return auth.Claims{}, uuid.Nil, false
	}

	id, appErr := accountIDFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return auth.Claims{}, uuid.Nil, false
	}
	return actor, id, true
}
