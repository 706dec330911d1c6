package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

// Referrals are materialised from referral_edges in append order.
const accountSelect = `SELECT a.id, a.display_name, a.email, a.password_hash, a.balance, a.version,
	a.referral_code, a.referred_by, a.is_activated, a.is_admin, a.profile_image_url,
	a.created_at, a.updated_at, a.deleted_at,
	COALESCE((SELECT array_agg(e.referred_id::text ORDER BY e.seq)
		FROM referral_edges e WHERE e.referrer_id = a.id), '{}') AS referrals
	FROM accounts a`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, accountSelect+` WHERE a.id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", classify(err))
	}
	return a, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, accountSelect+` WHERE a.email = $1`, email)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByEmail: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByEmail: %w", classify(err))
	}
	return a, nil
}

func (r *AccountRepository) GetByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, accountSelect+` WHERE a.referral_code = $1`, code)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReferralCode: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReferralCode: %w", classify(err))
	}
	return a, nil
}

func (r *AccountRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE referral_code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ReferralCodeExists: %w", classify(err))
	}
	return exists, nil
}

// List returns live accounts, oldest first, and the total live count.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]domain.Account, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE deleted_at IS NULL`,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", classify(err))
	}

	accounts, err := r.query(ctx,
		accountSelect+` WHERE a.deleted_at IS NULL ORDER BY a.created_at, a.id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return accounts, total, nil
}

// Search matches live accounts whose email equals term or whose display name
// equals term case-insensitively. term must already be lower-cased.
func (r *AccountRepository) Search(ctx context.Context, term string, limit, offset int) ([]domain.Account, int, error) {
	const where = ` WHERE a.deleted_at IS NULL AND (a.email = $1 OR lower(a.display_name) = $1)`

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts a`+where, term,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("Search: count: %w", classify(err))
	}

	accounts, err := r.query(ctx,
		accountSelect+where+` ORDER BY a.created_at, a.id LIMIT $2 OFFSET $3`,
		term, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("Search: %w", err)
	}
	return accounts, total, nil
}

func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, a *domain.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (
			id, display_name, email, password_hash, balance, version,
			referral_code, referred_by, is_activated, is_admin, profile_image_url,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.DisplayName, a.Email, a.PasswordHash, a.Balance, a.Version,
		a.ReferralCode, a.ReferredBy, a.IsActivated, a.IsAdmin, a.ProfileImageURL,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", classify(err))
	}
	return nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx, accountSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", classify(err))
	}
	return a, nil
}

func (r *AccountRepository) GetByReferralCodeForUpdate(ctx context.Context, tx *sql.Tx, code string) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx, accountSelect+` WHERE a.referral_code = $1 FOR UPDATE OF a`, code)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReferralCodeForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReferralCodeForUpdate: %w", classify(err))
	}
	return a, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2, updated_at = now()
		WHERE id = $3 AND version = $4`,
		newBalance, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", classify(err))
	}
	return checkVersioned(res, "UpdateBalance")
}

// Update writes the mutable, non-balance fields of a. a.Version must already
// be incremented; the write only applies over a.Version-1.
func (r *AccountRepository) Update(ctx context.Context, tx *sql.Tx, a *domain.Account) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET display_name = $1, is_activated = $2, profile_image_url = $3,
			deleted_at = $4, updated_at = $5, version = $6
		WHERE id = $7 AND version = $8`,
		a.DisplayName, a.IsActivated, a.ProfileImageURL,
		a.DeletedAt, a.UpdatedAt, a.Version,
		a.ID, a.Version-1,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", classify(err))
	}
	return checkVersioned(res, "Update")
}

func (r *AccountRepository) SetAdmin(ctx context.Context, email string, isAdmin bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_admin = $1, version = version + 1, updated_at = $2
		WHERE email = $3 AND deleted_at IS NULL`,
		isAdmin, time.Now().UTC(), email,
	)
	if err != nil {
		return fmt.Errorf("SetAdmin: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetAdmin: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SetAdmin: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) query(ctx context.Context, q string, args ...any) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", classify(err))
	}
	return accounts, nil
}

func checkVersioned(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrVersionConflict)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		a         domain.Account
		referrals []string
	)
	err := s.Scan(
		&a.ID, &a.DisplayName, &a.Email, &a.PasswordHash, &a.Balance, &a.Version,
		&a.ReferralCode, &a.ReferredBy, &a.IsActivated, &a.IsAdmin, &a.ProfileImageURL,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
		pq.Array(&referrals),
	)
	if err != nil {
		return nil, err
	}

	a.Referrals = make([]uuid.UUID, 0, len(referrals))
	for _, raw := range referrals {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("scanAccount: referral id %q: %w", raw, err)
		}
		a.Referrals = append(a.Referrals, id)
	}
	return &a, nil
}
