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

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/repository"
)

// ToggleActivation sets the activation flag to target. Setting the current
// value again succeeds without writing anything.
func (s *Service) ToggleActivation(ctx context.Context, actor auth.Claims, accountID uuid.UUID, target bool) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if err := s.gate.Authorize(ctx, actor, auth.OpToggleActivation); err != nil {
		return nil, fmt.Errorf("ToggleActivation: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		result  *domain.Account
		changed bool
	)
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := s.lockLive(ctx, tx, accountID)
		if err != nil {
			return err
		}
		result = a
		if a.IsActivated == target {
			return nil
		}

		now := time.Now().UTC()
		a.IsActivated = target
		a.Version++
		a.UpdatedAt = now
		if err := s.accounts.Update(ctx, tx, a); err != nil {
			return err
		}
		changed = true

		payload, _ := json.Marshal(map[string]bool{"is_activated": target})
		return s.events.Create(ctx, tx, &domain.AccountEvent{
			ID:        uuid.New(),
			AccountID: a.ID,
			EventType: domain.AccountEventActivationChanged,
			Actor:     domain.ActorAdmin(actor.UserID),
			Payload:   payload,
			Status:    domain.AccountEventStatusPending,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ToggleActivation: %w", err)
	}

	if changed {
		log.Info("account activation changed",
			"account_id", accountID,
			"actor_id", actor.UserID,
			"is_activated", target,
		)
	}
	return result, nil
}

// Delete tombstones the account. Its referral edges and ledger history stay
// in place; its referral code stops resolving.
func (s *Service) Delete(ctx context.Context, actor auth.Claims, accountID uuid.UUID) error {
	log := logging.FromContext(ctx)

	if err := s.gate.Authorize(ctx, actor, auth.OpDeleteAccount); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := s.lockLive(ctx, tx, accountID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		a.DeletedAt = &now
		a.Version++
		a.UpdatedAt = now
		if err := s.accounts.Update(ctx, tx, a); err != nil {
			return err
		}

		return s.events.Create(ctx, tx, &domain.AccountEvent{
			ID:        uuid.New(),
			AccountID: a.ID,
			EventType: domain.AccountEventDeleted,
			Actor:     domain.ActorAdmin(actor.UserID),
			Status:    domain.AccountEventStatusPending,
			CreatedAt: now,
		})
	})
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	log.Info("account deleted", "account_id", accountID, "actor_id", actor.UserID)
	return nil
}

type UpdateProfileRequest struct {
	DisplayName     *string
	ProfileImageURL *string
}

// UpdateProfile applies self-service settings changes. An empty
// ProfileImageURL clears the image.
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, req UpdateProfileRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if req.DisplayName == nil && req.ProfileImageURL == nil {
		return nil, fmt.Errorf("UpdateProfile: %w: nothing to update", domain.ErrInvalidRequest)
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("UpdateProfile: %w: display name is required", domain.ErrInvalidRequest)
		}
		req.DisplayName = &name
	}
	if req.ProfileImageURL != nil && *req.ProfileImageURL != "" {
		if err := s.validate.Var(*req.ProfileImageURL, "url"); err != nil {
			return nil, fmt.Errorf("UpdateProfile: %w: profile image must be a URL", domain.ErrInvalidRequest)
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		result  *domain.Account
		changed bool
	)
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := s.lockLive(ctx, tx, accountID)
		if err != nil {
			return err
		}

		changes := map[string]any{}
		if req.DisplayName != nil && *req.DisplayName != a.DisplayName {
			a.DisplayName = *req.DisplayName
			changes["display_name"] = a.DisplayName
		}
		if req.ProfileImageURL != nil {
			var img *string
			if *req.ProfileImageURL != "" {
				img = req.ProfileImageURL
			}
			if !sameImage(a.ProfileImageURL, img) {
				a.ProfileImageURL = img
				changes["profile_image_url"] = img
			}
		}
		result = a
		if len(changes) == 0 {
			return nil
		}
		changed = true

		now := time.Now().UTC()
		a.Version++
		a.UpdatedAt = now
		if err := s.accounts.Update(ctx, tx, a); err != nil {
			return err
		}

		payload, _ := json.Marshal(changes)
		return s.events.Create(ctx, tx, &domain.AccountEvent{
			ID:        uuid.New(),
			AccountID: a.ID,
			EventType: domain.AccountEventProfileUpdated,
			Actor:     domain.ActorUser(a.ID),
			Payload:   payload,
			Status:    domain.AccountEventStatusPending,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("UpdateProfile: %w", err)
	}

	if !changed {
		log.Debug("profile update changed nothing", "account_id", accountID)
		return result, nil
	}
	log.Info("profile updated", "account_id", accountID)
	return result, nil
}

func sameImage(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Authenticate checks an email and password pair. Unknown, deleted and
// mismatched credentials are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.accounts.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}
	if a.IsDeleted() {
		return nil, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
	}
	return a, nil
}

func (s *Service) lockLive(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	a, err := s.accounts.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, notFoundAsAccount(err)
	}
	if a.IsDeleted() {
		return nil, fmt.Errorf("lockLive: %w", domain.ErrAccountNotFound)
	}
	return a, nil
}
