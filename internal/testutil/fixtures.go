package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

const TestPassword = "password123"

var codeSeq atomic.Int64

// SeedOption adjusts an account before it is inserted.
type SeedOption func(*domain.Account)

func WithBalance(balance int64) SeedOption {
	return func(a *domain.Account) { a.Balance = balance }
}

func WithAdmin() SeedOption {
	return func(a *domain.Account) { a.IsAdmin = true }
}

func WithActivated() SeedOption {
	return func(a *domain.Account) { a.IsActivated = true }
}

func WithReferralCode(code string) SeedOption {
	return func(a *domain.Account) { a.ReferralCode = code }
}

// SeedAccount inserts an account directly. Seeded balances get no ledger
// entries, so reconciliation tests should seed with a zero balance.
func SeedAccount(t *testing.T, db *sql.DB, email, name string, opts ...SeedOption) *domain.Account {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	a := &domain.Account{
		ID:           uuid.New(),
		DisplayName:  name,
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		Version:      1,
		ReferralCode: fmt.Sprintf("T%05d", codeSeq.Add(1)),
		Referrals:    []uuid.UUID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, opt := range opts {
		opt(a)
	}

	_, err = db.Exec(
		`INSERT INTO accounts (id, display_name, email, password_hash, balance, version,
			referral_code, is_activated, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.DisplayName, a.Email, a.PasswordHash, a.Balance, a.Version,
		a.ReferralCode, a.IsActivated, a.IsAdmin, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", email, err)
	}
	return a
}

// SeedReferral links referred to referrer the way registration does.
func SeedReferral(t *testing.T, db *sql.DB, referrer, referred *domain.Account) {
	t.Helper()

	if _, err := db.Exec(`UPDATE accounts SET referred_by = $1 WHERE id = $2`, referrer.ReferralCode, referred.ID); err != nil {
		t.Fatalf("seed referred_by: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO referral_edges (referrer_id, referred_id) VALUES ($1, $2)`, referrer.ID, referred.ID); err != nil {
		t.Fatalf("seed referral edge: %v", err)
	}
	code := referrer.ReferralCode
	referred.ReferredBy = &code
	referrer.Referrals = append(referrer.Referrals, referred.ID)
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func CountLedgerEntries(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for account %s: %v", accountID, err)
	}
	return count
}

func CountAccountEvents(t *testing.T, db *sql.DB, accountID uuid.UUID, eventType domain.AccountEventType) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM account_events WHERE account_id = $1 AND event_type = $2`,
		accountID, eventType,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count %s events for account %s: %v", eventType, accountID, err)
	}
	return count
}

func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
