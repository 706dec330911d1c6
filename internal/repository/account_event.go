package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

const accountEventColumns = `id, account_id, event_type, actor, payload,
	status, attempts, last_attempt, created_at`

type AccountEventRepository struct {
	db *sql.DB
}

func NewAccountEventRepository(db *sql.DB) *AccountEventRepository {
	return &AccountEventRepository{db: db}
}

func (r *AccountEventRepository) Create(ctx context.Context, tx *sql.Tx, ev *domain.AccountEvent) error {
	var payload any
	if len(ev.Payload) > 0 {
		payload = []byte(ev.Payload)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO account_events (`+accountEventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.AccountID, ev.EventType, ev.Actor, payload,
		ev.Status, ev.Attempts, ev.LastAttempt, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", classify(err))
	}
	return nil
}

func (r *AccountEventRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.AccountEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountEventColumns+` FROM account_events
		WHERE account_id = $1 ORDER BY created_at, id`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByAccountID: %w", classify(err))
	}
	defer rows.Close()

	events, err := scanAccountEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("GetByAccountID: %w", err)
	}
	return events, nil
}

// ClaimPending locks up to limit pending events, oldest first. Rows locked by
// another dispatcher are skipped.
func (r *AccountEventRepository) ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.AccountEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+accountEventColumns+` FROM account_events
		WHERE status = $1 ORDER BY created_at, id LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		domain.AccountEventStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", classify(err))
	}
	defer rows.Close()

	events, err := scanAccountEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	return events, nil
}

// UpdateStatus records a dispatch attempt.
func (r *AccountEventRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.AccountEventStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE account_events SET status = $1, attempts = attempts + 1, last_attempt = $2
		WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", classify(err))
	}
	return nil
}

func scanAccountEvents(rows *sql.Rows) ([]domain.AccountEvent, error) {
	events := []domain.AccountEvent{}
	for rows.Next() {
		var (
			ev      domain.AccountEvent
			payload []byte
		)
		err := rows.Scan(
			&ev.ID, &ev.AccountID, &ev.EventType, &ev.Actor, &payload,
			&ev.Status, &ev.Attempts, &ev.LastAttempt, &ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", classify(err))
	}
	return events, nil
}
