package ledger

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/config"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/repository"
	"github.com/josh-kwaku/valorpoint/internal/testutil"
)

func setupLedger(t *testing.T, db *sql.DB) *Service {
	t.Helper()

	accounts := repository.NewAccountRepository(db)
	return NewService(
		accounts,
		repository.NewLedgerRepository(db),
		repository.NewAccountEventRepository(db),
		auth.NewGate(accounts),
		db,
		&config.Config{OperationTimeout: 5 * time.Second},
	)
}

func seedAdmin(t *testing.T, db *sql.DB) auth.Claims {
	t.Helper()
	admin := testutil.SeedAccount(t, db, "admin@test.com", "Admin", testutil.WithAdmin())
	return auth.Claims{UserID: admin.ID, Email: admin.Email, IsAdmin: true}
}

func TestAdjustBalance_CreditThenOverdraw(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupLedger(t, db)
	admin := seedAdmin(t, db)

	jane := testutil.SeedAccount(t, db, "jane@x.com", "Jane")

	entry, err := svc.AdjustBalance(ctx, admin, jane.ID, 5000, "welcome bonus")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.BalanceBefore)
	assert.Equal(t, int64(5000), entry.BalanceAfter)
	assert.Equal(t, admin.UserID, entry.ActorID)
	assert.Equal(t, int64(5000), testutil.GetAccountBalance(t, db, jane.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, jane.ID))

	_, err = svc.AdjustBalance(ctx, admin, jane.ID, -10000, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, int64(5000), testutil.GetAccountBalance(t, db, jane.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, jane.ID))
	assert.Equal(t, 1, testutil.CountAccountEvents(t, db, jane.ID, domain.AccountEventBalanceAdjusted))
}

func TestAdjustBalance_Rejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupLedger(t, db)
	admin := seedAdmin(t, db)

	jane := testutil.SeedAccount(t, db, "jane@x.com", "Jane")
	user := auth.Claims{UserID: jane.ID, Email: jane.Email}

	tests := []struct {
		name    string
		actor   auth.Claims
		account uuid.UUID
		delta   int64
		want    error
	}{
		{"non-admin", user, jane.ID, 100, domain.ErrUnauthorized},
		{"forged admin claim", auth.Claims{UserID: jane.ID, IsAdmin: true}, jane.ID, 100, domain.ErrUnauthorized},
		{"zero delta", admin, jane.ID, 0, domain.ErrInvalidAmount},
		{"unknown account", admin, uuid.New(), 100, domain.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AdjustBalance(ctx, tt.actor, tt.account, tt.delta, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, int64(0), testutil.GetAccountBalance(t, db, jane.ID))
	assert.Zero(t, testutil.CountLedgerEntries(t, db, jane.ID))
}

func TestAdjustBalance_ConcurrentAdjustmentsDoNotLoseUpdates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupLedger(t, db)
	admin := seedAdmin(t, db)

	jane := testutil.SeedAccount(t, db, "jane@x.com", "Jane")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AdjustBalance(ctx, admin, jane.ID, 100, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(workers*100), testutil.GetAccountBalance(t, db, jane.ID))
	assert.Equal(t, workers, testutil.CountLedgerEntries(t, db, jane.ID))
}

func TestAdjustBalance_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupLedger(t, db)
	admin := seedAdmin(t, db)

	jane := testutil.SeedAccount(t, db, "jane@x.com", "Jane")
	_, err := svc.AdjustBalance(ctx, admin, jane.ID, 500, "")
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AdjustBalance(ctx, admin, jane.ID, -100, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, domain.ErrInsufficientBalance):
			insufficient++
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 5, insufficient)
	assert.Equal(t, int64(0), testutil.GetAccountBalance(t, db, jane.ID))
}

func TestHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	svc := setupLedger(t, db)
	admin := seedAdmin(t, db)

	jane := testutil.SeedAccount(t, db, "jane@x.com", "Jane")
	for _, d := range []int64{100, 250, -50} {
		_, err := svc.AdjustBalance(ctx, admin, jane.ID, d, "")
		require.NoError(t, err)
	}

	entries, total, err := svc.History(ctx, admin, jane.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(300), entries[0].BalanceAfter)

	_, _, err = svc.History(ctx, auth.Claims{UserID: jane.ID}, jane.ID, 10, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
