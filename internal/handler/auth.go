package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/service/account"
)

type registrar interface {
	Register(ctx context.Context, req account.RegisterRequest) (*domain.Account, error)
	Authenticate(ctx context.Context, email, password string) (*domain.Account, error)
}

type AuthHandler struct {
	accounts  registrar
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(accounts registrar, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		accounts:  accounts,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

type registerRequest struct {
	DisplayName  string `json:"display_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code"`
}

func (r registerRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.DisplayName) == "" {
		errs = append(errs, FieldError{Field: "display_name", Message: "required"})
	}
	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	} else if !isEmail(strings.TrimSpace(r.Email)) {
		errs = append(errs, FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(r.Password) < account.MinPasswordLength {
		errs = append(errs, FieldError{Field: "password", Message: "must be at least 6 characters"})
	} else if len(r.Password) > account.MaxPasswordLength {
		errs = append(errs, FieldError{Field: "password", Message: "must be at most 72 bytes"})
	}
	return errs
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type tokenResponse struct {
	Token   string     `json:"token"`
	Account accountDTO `json:"account"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	a, err := h.accounts.Register(r.Context(), account.RegisterRequest{
		DisplayName:    req.DisplayName,
		Email:          req.Email,
		Password:       req.Password,
		ReferredByCode: req.ReferralCode,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("registration failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	h.respondToken(w, r, http.StatusCreated, a)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	a, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	h.respondToken(w, r, http.StatusOK, a)
}

func (h *AuthHandler) respondToken(w http.ResponseWriter, r *http.Request, status int, a *domain.Account) {
	token, err := auth.GenerateToken(auth.Claims{
		UserID:  a.ID,
		Email:   a.Email,
		IsAdmin: a.IsAdmin,
	}, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to sign token", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, status, tokenResponse{Token: token, Account: toAccountDTO(a)})
}
