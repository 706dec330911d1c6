package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

type referralAccounts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*domain.Account, error)
}

type referralEdges interface {
	ReferralsOf(ctx context.Context, referrerID uuid.UUID) ([]domain.Account, error)
}

// ReferralIndex is the read side of the referral graph. Edges are only
// written by registration.
type ReferralIndex struct {
	accounts referralAccounts
	edges    referralEdges
}

func NewReferralIndex(accounts referralAccounts, edges referralEdges) *ReferralIndex {
	return &ReferralIndex{accounts: accounts, edges: edges}
}

// ReferralsOf returns the ids the account referred, in registration order.
func (x *ReferralIndex) ReferralsOf(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	a, err := x.liveAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("ReferralsOf: %w", err)
	}
	return a.Referrals, nil
}

// ReferredAccounts returns the accounts a live account referred, including
// tombstoned ones.
func (x *ReferralIndex) ReferredAccounts(ctx context.Context, accountID uuid.UUID) ([]domain.Account, error) {
	if _, err := x.liveAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("ReferredAccounts: %w", err)
	}

	accounts, err := x.edges.ReferralsOf(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("ReferredAccounts: %w", err)
	}
	return accounts, nil
}

func (x *ReferralIndex) liveAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := x.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	if a.IsDeleted() {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

// ResolveReferrer returns the live account owning code.
func (x *ReferralIndex) ResolveReferrer(ctx context.Context, code string) (*domain.Account, error) {
	code = domain.NormalizeReferralCode(code)
	if len(code) != domain.ReferralCodeLength {
		return nil, fmt.Errorf("ResolveReferrer: %w", domain.ErrNotFound)
	}

	a, err := x.accounts.GetByReferralCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("ResolveReferrer: %w", err)
	}
	if a.IsDeleted() {
		return nil, fmt.Errorf("ResolveReferrer: %w", domain.ErrNotFound)
	}
	return a, nil
}
