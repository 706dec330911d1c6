package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

type noEdges struct{}

func (noEdges) ReferralsOf(ctx context.Context, referrerID uuid.UUID) ([]domain.Account, error) {
	return []domain.Account{}, nil
}

func TestReferralIndex_ReferralsOf(t *testing.T) {
	jane, bob := referralPair()
	idx := NewReferralIndex(newFakeAccountStore(jane, bob), noEdges{})

	got, err := idx.ReferralsOf(context.Background(), jane.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob.ID}, got)

	got, err = idx.ReferralsOf(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = idx.ReferralsOf(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

type countingEdges struct {
	calls int
}

func (e *countingEdges) ReferralsOf(ctx context.Context, referrerID uuid.UUID) ([]domain.Account, error) {
	e.calls++
	return []domain.Account{{ID: uuid.New()}}, nil
}

func TestReferralIndex_ReferredAccounts(t *testing.T) {
	jane, bob := referralPair()
	deletedAt := time.Now()
	bob.DeletedAt = &deletedAt
	edges := &countingEdges{}
	idx := NewReferralIndex(newFakeAccountStore(jane, bob), edges)

	got, err := idx.ReferredAccounts(context.Background(), jane.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = idx.ReferredAccounts(context.Background(), bob.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound, "tombstoned accounts cannot list referrals")

	_, err = idx.ReferredAccounts(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.Equal(t, 1, edges.calls)
}

func TestReferralIndex_ResolveReferrer(t *testing.T) {
	jane, bob := referralPair()
	deletedAt := time.Now()
	bob.DeletedAt = &deletedAt
	idx := NewReferralIndex(newFakeAccountStore(jane, bob), noEdges{})

	got, err := idx.ResolveReferrer(context.Background(), " jane01 ")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, got.ID)

	_, err = idx.ResolveReferrer(context.Background(), bob.ReferralCode)
	assert.ErrorIs(t, err, domain.ErrNotFound, "tombstoned codes do not resolve")

	_, err = idx.ResolveReferrer(context.Background(), "NOPE99")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = idx.ResolveReferrer(context.Background(), "TOO-LONG-CODE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
