package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/domain"
)

type fakeAccountStore struct {
	byID   map[uuid.UUID]*domain.Account
	byCode map[string]*domain.Account
}

func newFakeAccountStore(accounts ...*domain.Account) *fakeAccountStore {
	s := &fakeAccountStore{byID: map[uuid.UUID]*domain.Account{}, byCode: map[string]*domain.Account{}}
	for _, a := range accounts {
		s.byID[a.ID] = a
		s.byCode[a.ReferralCode] = a
	}
	return s
}

func (s *fakeAccountStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if a, ok := s.byID[id]; ok {
		return a, nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeAccountStore) GetByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	if a, ok := s.byCode[code]; ok {
		return a, nil
	}
	return nil, domain.ErrNotFound
}

type fakeEdges struct {
	referrerOf map[uuid.UUID]uuid.UUID
	count      map[uuid.UUID]int
}

func (f *fakeEdges) CountEdgesForReferred(ctx context.Context, referredID uuid.UUID) (int, error) {
	return f.count[referredID], nil
}

func (f *fakeEdges) ReferrerOf(ctx context.Context, referredID uuid.UUID) (uuid.UUID, error) {
	id, ok := f.referrerOf[referredID]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	return id, nil
}

type fakeLedgerSums map[uuid.UUID]int64

func (f fakeLedgerSums) SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, int, error) {
	sum, ok := f[accountID]
	if !ok {
		return 0, 0, nil
	}
	return sum, 1, nil
}

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, actor auth.Claims, op auth.Operation) error {
	return nil
}

type denyGate struct{}

func (denyGate) Authorize(ctx context.Context, actor auth.Claims, op auth.Operation) error {
	return domain.ErrUnauthorized
}

func referralPair() (*domain.Account, *domain.Account) {
	jane := &domain.Account{ID: uuid.New(), ReferralCode: "JANE01"}
	bob := &domain.Account{ID: uuid.New(), ReferralCode: "BOB001"}
	code := jane.ReferralCode
	bob.ReferredBy = &code
	jane.Referrals = []uuid.UUID{bob.ID}
	return jane, bob
}

func TestReconciler_Consistent(t *testing.T) {
	jane, bob := referralPair()
	jane.Balance = 5000
	edges := &fakeEdges{
		referrerOf: map[uuid.UUID]uuid.UUID{bob.ID: jane.ID},
		count:      map[uuid.UUID]int{bob.ID: 1},
	}
	r := NewReconciler(newFakeAccountStore(jane, bob), edges, fakeLedgerSums{jane.ID: 5000}, allowAll{})

	for _, a := range []*domain.Account{jane, bob} {
		report, err := r.CheckAccount(context.Background(), auth.Claims{}, a.ID)
		require.NoError(t, err)
		assert.True(t, report.Consistent())
	}
}

func TestReconciler_Findings(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*fakeAccountStore, *fakeEdges, fakeLedgerSums, uuid.UUID)
		want  string
	}{
		{
			name: "ledger drift",
			build: func() (*fakeAccountStore, *fakeEdges, fakeLedgerSums, uuid.UUID) {
				a := &domain.Account{ID: uuid.New(), ReferralCode: "AAAAAA", Balance: 700}
				return newFakeAccountStore(a), &fakeEdges{}, fakeLedgerSums{a.ID: 500}, a.ID
			},
			want: "ledger deltas sum to 500 but balance is 700",
		},
		{
			name: "duplicate referral",
			build: func() (*fakeAccountStore, *fakeEdges, fakeLedgerSums, uuid.UUID) {
				jane, bob := referralPair()
				jane.Referrals = append(jane.Referrals, bob.ID)
				return newFakeAccountStore(jane, bob), &fakeEdges{}, fakeLedgerSums{}, jane.ID
			},
			want: "listed more than once",
		},
		{
			name: "missing edge",
			build: func() (*fakeAccountStore, *fakeEdges, fakeLedgerSums, uuid.UUID) {
				jane, bob := referralPair()
				jane.Referrals = nil
				return newFakeAccountStore(jane, bob), &fakeEdges{}, fakeLedgerSums{}, bob.ID
			},
			want: "expected one referral edge, found 0",
		},
		{
			name: "dangling referred_by",
			build: func() (*fakeAccountStore, *fakeEdges, fakeLedgerSums, uuid.UUID) {
				_, bob := referralPair()
				return newFakeAccountStore(bob), &fakeEdges{}, fakeLedgerSums{}, bob.ID
			},
			want: "does not resolve",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts, edges, sums, id := tt.build()
			r := NewReconciler(accounts, edges, sums, allowAll{})

			report, err := r.CheckAccount(context.Background(), auth.Claims{}, id)
			assert.ErrorIs(t, err, domain.ErrInconsistent)
			require.NotNil(t, report)
			assert.False(t, report.Consistent())
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReconciler_RequiresAdmin(t *testing.T) {
	a := &domain.Account{ID: uuid.New(), ReferralCode: "AAAAAA"}
	r := NewReconciler(newFakeAccountStore(a), &fakeEdges{}, fakeLedgerSums{}, denyGate{})

	_, err := r.CheckAccount(context.Background(), auth.Claims{UserID: a.ID}, a.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestReconciler_UnknownAccount(t *testing.T) {
	r := NewReconciler(newFakeAccountStore(), &fakeEdges{}, fakeLedgerSums{}, allowAll{})

	_, err := r.CheckAccount(context.Background(), auth.Claims{}, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
