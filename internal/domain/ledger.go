package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry records one balance delta. BalanceAfter is the resulting balance.
type LedgerEntry struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	Delta         int64
	BalanceBefore int64
	BalanceAfter  int64
	ActorID       uuid.UUID
	Reason        string
	CreatedAt     time.Time
}
