package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/valorpoint/internal/domain"
)

type Operation string

const (
	OpAdjustBalance    Operation = "adjust_balance"
	OpToggleActivation Operation = "toggle_activation"
	OpDeleteAccount    Operation = "delete_account"
	OpViewAccounts     Operation = "view_accounts"
	OpViewLedger       Operation = "view_ledger"
	OpReconcile        Operation = "reconcile"
)

type privilegeSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

// Gate decides whether an actor may perform a privileged operation. A token
// claim alone is not enough: the actor's account must still exist and still
// hold the admin privilege.
type Gate struct {
	accounts privilegeSource
}

func NewGate(accounts privilegeSource) *Gate {
	return &Gate{accounts: accounts}
}

func (g *Gate) Authorize(ctx context.Context, actor Claims, op Operation) error {
	if !actor.IsAdmin || actor.UserID == uuid.Nil {
		return fmt.Errorf("Authorize %s: %w", op, domain.ErrUnauthorized)
	}

	acct, err := g.accounts.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("Authorize %s: actor unknown: %w", op, domain.ErrUnauthorized)
		}
		return fmt.Errorf("Authorize %s: %w", op, err)
	}

	if acct.IsDeleted() || !acct.IsAdmin {
		return fmt.Errorf("Authorize %s: privilege revoked: %w", op, domain.ErrUnauthorized)
	}
	return nil
}
