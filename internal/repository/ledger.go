package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

const ledgerColumns = `id, account_id, delta, balance_before, balance_after,
	actor_id, reason, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.AccountID, entry.Delta, entry.BalanceBefore, entry.BalanceAfter,
		entry.ActorID, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", classify(err))
	}
	return nil
}

// GetByAccountID returns newest entries first along with the total count.
func (r *LedgerRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: count: %w", classify(err))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE account_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: %w", classify(err))
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("GetByAccountID: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: rows: %w", classify(err))
	}
	return entries, total, nil
}

// SumDeltas returns the sum of all deltas recorded for the account and the
// number of entries.
func (r *LedgerRepository) SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, int, error) {
	var (
		sum   int64
		count int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0), COUNT(*) FROM ledger_entries WHERE account_id = $1`,
		accountID,
	).Scan(&sum, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("SumDeltas: %w", classify(err))
	}
	return sum, count, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.AccountID, &e.Delta, &e.BalanceBefore, &e.BalanceAfter,
		&e.ActorID, &e.Reason, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
