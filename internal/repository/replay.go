package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Replay is the stored outcome of a mutating request, keyed by the caller and
// the Idempotency-Key they sent. A pending replay holds the key for a request
// that has not finished yet and carries no response.
type Replay struct {
	UserID      uuid.UUID
	Key         string
	Fingerprint string
	Pending     bool
	StatusCode  int
	Body        []byte
	StoredAt    time.Time
	ExpiresAt   time.Time
}

type ReplayRepository struct {
	db *sql.DB
}

func NewReplayRepository(db *sql.DB) *ReplayRepository {
	return &ReplayRepository{db: db}
}

// Lookup returns nil, nil when the caller has no live replay under key.
func (r *ReplayRepository) Lookup(ctx context.Context, userID uuid.UUID, key string) (*Replay, error) {
	var (
		rp     Replay
		status sql.NullInt32
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, idempotency_key, fingerprint, status_code, response_body, stored_at, expires_at
		FROM request_replays
		WHERE user_id = $1 AND idempotency_key = $2 AND expires_at > now()`,
		userID, key,
	).Scan(&rp.UserID, &rp.Key, &rp.Fingerprint, &status, &rp.Body, &rp.StoredAt, &rp.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Lookup: %w", classify(err))
	}
	rp.Pending = !status.Valid
	rp.StatusCode = int(status.Int32)
	return &rp, nil
}

// Reserve claims key for the request identified by fingerprint until
// expiresAt. reserved is false when a live row, pending or complete, already
// holds the key. An expired row is taken over.
func (r *ReplayRepository) Reserve(ctx context.Context, userID uuid.UUID, key, fingerprint string, now, expiresAt time.Time) (reserved bool, err error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO request_replays (user_id, idempotency_key, fingerprint, status_code, response_body, stored_at, expires_at)
		VALUES ($1, $2, $3, NULL, NULL, $4, $5)
		ON CONFLICT (user_id, idempotency_key) DO UPDATE
			SET fingerprint = EXCLUDED.fingerprint,
				status_code = NULL,
				response_body = NULL,
				stored_at = EXCLUDED.stored_at,
				expires_at = EXCLUDED.expires_at
			WHERE request_replays.expires_at <= EXCLUDED.stored_at`,
		userID, key, fingerprint, now, expiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("Reserve: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Reserve: rows affected: %w", err)
	}
	return n == 1, nil
}

// Complete attaches the response to a pending reservation. stored is false
// when the reservation expired and was taken by another request.
func (r *ReplayRepository) Complete(ctx context.Context, rp *Replay) (stored bool, err error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE request_replays
		SET status_code = $4, response_body = $5, stored_at = $6, expires_at = $7
		WHERE user_id = $1 AND idempotency_key = $2 AND fingerprint = $3 AND status_code IS NULL`,
		rp.UserID, rp.Key, rp.Fingerprint, rp.StatusCode, rp.Body, rp.StoredAt, rp.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("Complete: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Complete: rows affected: %w", err)
	}
	return n == 1, nil
}

// Release drops a pending reservation so the key can be retried.
func (r *ReplayRepository) Release(ctx context.Context, userID uuid.UUID, key, fingerprint string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM request_replays
		WHERE user_id = $1 AND idempotency_key = $2 AND fingerprint = $3 AND status_code IS NULL`,
		userID, key, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("Release: %w", classify(err))
	}
	return nil
}

// PurgeExpired deletes replays that expired before now, batch rows at a time
// so a large backlog does not hold one long lock.
func (r *ReplayRepository) PurgeExpired(ctx context.Context, now time.Time, batch int) (int64, error) {
	var total int64
	for {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM request_replays
			WHERE ctid IN (
				SELECT ctid FROM request_replays WHERE expires_at <= $1 LIMIT $2
			)`,
			now, batch,
		)
		if err != nil {
			return total, fmt.Errorf("PurgeExpired: %w", classify(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("PurgeExpired: rows affected: %w", err)
		}
		total += n
		if n < int64(batch) {
			return total, nil
		}
	}
}
