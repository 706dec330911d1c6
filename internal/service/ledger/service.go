package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/config"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/repository"
)

const maxReasonLength = 280

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, ev *domain.AccountEvent) error
}

type authorizer interface {
	Authorize(ctx context.Context, actor auth.Claims, op auth.Operation) error
}

type Service struct {
	accounts accountRepo
	ledger   ledgerRepo
	events   eventRepo
	gate     authorizer
	db       *sql.DB
	timeout  time.Duration
}

func NewService(
	accounts accountRepo,
	ledger ledgerRepo,
	events eventRepo,
	gate authorizer,
	db *sql.DB,
	cfg *config.Config,
) *Service {
	return &Service{
		accounts: accounts,
		ledger:   ledger,
		events:   events,
		gate:     gate,
		db:       db,
		timeout:  cfg.OperationTimeout,
	}
}

// AdjustBalance applies a signed delta to the account under a row lock and
// records the ledger entry in the same transaction. The returned entry's
// BalanceAfter is the new balance.
func (s *Service) AdjustBalance(ctx context.Context, actor auth.Claims, accountID uuid.UUID, delta int64, reason string) (*domain.LedgerEntry, error) {
	log := logging.FromContext(ctx)

	if err := s.gate.Authorize(ctx, actor, auth.OpAdjustBalance); err != nil {
		return nil, fmt.Errorf("AdjustBalance: %w", err)
	}
	if delta == 0 {
		return nil, fmt.Errorf("AdjustBalance: %w", domain.ErrInvalidAmount)
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, fmt.Errorf("AdjustBalance: %w: reason exceeds %d characters", domain.ErrInvalidRequest, maxReasonLength)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var entry *domain.LedgerEntry
	err := repository.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		acct, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: %w", domain.ErrAccountNotFound, err)
			}
			return err
		}
		if acct.IsDeleted() {
			return domain.ErrAccountNotFound
		}

		newBalance := acct.Balance + delta
		if newBalance < 0 {
			return fmt.Errorf("%w: balance %d, delta %d", domain.ErrInsufficientBalance, acct.Balance, delta)
		}

		if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, newBalance, acct.Version+1); err != nil {
			return err
		}

		now := time.Now().UTC()
		entry = &domain.LedgerEntry{
			ID:            uuid.New(),
			AccountID:     acct.ID,
			Delta:         delta,
			BalanceBefore: acct.Balance,
			BalanceAfter:  newBalance,
			ActorID:       actor.UserID,
			Reason:        reason,
			CreatedAt:     now,
		}
		if err := s.ledger.Create(ctx, tx, entry); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]any{
			"ledger_entry_id": entry.ID,
			"delta":           delta,
			"balance_after":   newBalance,
		})
		return s.events.Create(ctx, tx, &domain.AccountEvent{
			ID:        uuid.New(),
			AccountID: acct.ID,
			EventType: domain.AccountEventBalanceAdjusted,
			Actor:     domain.ActorAdmin(actor.UserID),
			Payload:   payload,
			Status:    domain.AccountEventStatusPending,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("AdjustBalance: %w", err)
	}

	log.Info("balance adjusted",
		"account_id", accountID,
		"actor_id", actor.UserID,
		"delta", delta,
		"balance_after", entry.BalanceAfter,
	)
	return entry, nil
}

// History returns the account's ledger entries, newest first.
func (s *Service) History(ctx context.Context, actor auth.Claims, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	if err := s.gate.Authorize(ctx, actor, auth.OpViewLedger); err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, fmt.Errorf("History: %w", domain.ErrAccountNotFound)
		}
		return nil, 0, fmt.Errorf("History: %w", err)
	}

	entries, total, err := s.ledger.GetByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}
	return entries, total, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
