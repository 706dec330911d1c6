package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/repository"
)

const (
	MinPasswordLength = 6
	// bcrypt only accepts passwords up to this many bytes.
	MaxPasswordLength = 72
)

type RegisterRequest struct {
	DisplayName    string
	Email          string
	Password       string
	ReferredByCode string
}

func (r *RegisterRequest) normalize() {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Email = domain.NormalizeEmail(r.Email)
	r.ReferredByCode = domain.NormalizeReferralCode(r.ReferredByCode)
}

func (s *Service) validateRegister(req RegisterRequest) error {
	if req.DisplayName == "" {
		return fmt.Errorf("%w: display name is required", domain.ErrInvalidRequest)
	}
	if err := s.validate.Var(req.Email, "required,email"); err != nil {
		return fmt.Errorf("%w: email is invalid", domain.ErrInvalidRequest)
	}
	if len(req.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidRequest, MinPasswordLength)
	}
	if len(req.Password) > MaxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", domain.ErrInvalidRequest, MaxPasswordLength)
	}
	return nil
}

// Register creates an inactive account with a fresh referral code. When a
// referral code is supplied the referrer's row is locked and the referral
// edge is written in the same transaction as the new account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	req.normalize()
	if err := s.validateRegister(req); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.accounts.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, fmt.Errorf("Register: %w", domain.ErrDuplicateEmail)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("Register: check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, fmt.Errorf("Register: %w: password too long", domain.ErrInvalidRequest)
	}
	if err != nil {
		return nil, fmt.Errorf("Register: hash password: %w", err)
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("Register: %w", err)
		}

		taken, err := s.accounts.ReferralCodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("Register: check code: %w", err)
		}
		if taken {
			log.Debug("referral code collision", "attempt", attempt)
			continue
		}

		account, err := s.create(ctx, req, string(hash), code)
		if errors.Is(err, domain.ErrDuplicateReferralCode) {
			log.Debug("referral code taken concurrently", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("Register: %w", err)
		}

		log.Info("account registered",
			"account_id", account.ID,
			"referred_by", req.ReferredByCode,
		)
		return account, nil
	}

	return nil, fmt.Errorf("Register: after %d attempts: %w", s.attempts, domain.ErrCodeGenerationExhausted)
}

func (s *Service) create(ctx context.Context, req RegisterRequest, hash, code string) (*domain.Account, error) {
	now := time.Now().UTC()
	account := &domain.Account{
		ID:           uuid.New(),
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		PasswordHash: hash,
		Balance:      0,
		Version:      1,
		ReferralCode: code,
		Referrals:    []uuid.UUID{},
		IsActivated:  false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var referrer *domain.Account
		if req.ReferredByCode != "" {
			r, err := s.accounts.GetByReferralCodeForUpdate(ctx, tx, req.ReferredByCode)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("create: %w", domain.ErrInvalidReferralCode)
			}
			if err != nil {
				return fmt.Errorf("create: resolve referrer: %w", err)
			}
			if r.IsDeleted() {
				return fmt.Errorf("create: referrer deleted: %w", domain.ErrInvalidReferralCode)
			}
			referrer = r
			account.ReferredBy = &r.ReferralCode
		}

		if err := s.accounts.Create(ctx, tx, account); err != nil {
			return fmt.Errorf("create: %w", err)
		}

		if referrer != nil {
			if err := s.referrals.CreateEdge(ctx, tx, referrer.ID, account.ID, now); err != nil {
				return fmt.Errorf("create: referral edge: %w", err)
			}
		}

		payload, _ := json.Marshal(map[string]any{
			"email":         account.Email,
			"referral_code": account.ReferralCode,
			"referred_by":   account.ReferredBy,
		})
		return s.events.Create(ctx, tx, &domain.AccountEvent{
			ID:        uuid.New(),
			AccountID: account.ID,
			EventType: domain.AccountEventRegistered,
			Actor:     domain.ActorUser(account.ID),
			Payload:   payload,
			Status:    domain.AccountEventStatusPending,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
