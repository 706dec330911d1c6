package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

type ReferralRepository struct {
	db *sql.DB
}

func NewReferralRepository(db *sql.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// CreateEdge appends referred to referrer's referrals. A second edge for the
// same referred account is rejected by referral_edges_referred_id_key.
func (r *ReferralRepository) CreateEdge(ctx context.Context, tx *sql.Tx, referrerID, referredID uuid.UUID, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO referral_edges (referrer_id, referred_id, created_at) VALUES ($1, $2, $3)`,
		referrerID, referredID, at,
	)
	if err != nil {
		return fmt.Errorf("CreateEdge: %w", classify(err))
	}
	return nil
}

// ReferralsOf returns the accounts referred by referrerID in append order.
// Tombstoned referrals are included.
func (r *ReferralRepository) ReferralsOf(ctx context.Context, referrerID uuid.UUID) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		accountSelect+` JOIN referral_edges re ON re.referred_id = a.id
		WHERE re.referrer_id = $1 ORDER BY re.seq`,
		referrerID,
	)
	if err != nil {
		return nil, fmt.Errorf("ReferralsOf: %w", classify(err))
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ReferralsOf: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ReferralsOf: rows: %w", classify(err))
	}
	return accounts, nil
}

func (r *ReferralRepository) CountEdgesForReferred(ctx context.Context, referredID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM referral_edges WHERE referred_id = $1`, referredID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountEdgesForReferred: %w", classify(err))
	}
	return n, nil
}

// ReferrerOf returns the id of the account that referred referredID.
func (r *ReferralRepository) ReferrerOf(ctx context.Context, referredID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`SELECT referrer_id FROM referral_edges WHERE referred_id = $1`, referredID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("ReferrerOf: %w", domain.ErrNotFound)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("ReferrerOf: %w", classify(err))
	}
	return id, nil
}
