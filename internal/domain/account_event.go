package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AccountEventType string

const (
	AccountEventRegistered        AccountEventType = "registered"
	AccountEventActivationChanged AccountEventType = "activation_changed"
	AccountEventBalanceAdjusted   AccountEventType = "balance_adjusted"
	AccountEventProfileUpdated    AccountEventType = "profile_updated"
	AccountEventDeleted           AccountEventType = "deleted"
)

type AccountEventStatus string

const (
	AccountEventStatusPending    AccountEventStatus = "pending"
	AccountEventStatusDispatched AccountEventStatus = "dispatched"
	AccountEventStatusFailed     AccountEventStatus = "failed"
)

type AccountEvent struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	EventType   AccountEventType
	Actor       string
	Payload     json.RawMessage
	Status      AccountEventStatus
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}

// RoutingKey is the topic the event is published under.
func (e AccountEvent) RoutingKey() string {
	return "account." + string(e.EventType)
}

func ActorUser(id uuid.UUID) string {
	return "user:" + id.String()
}

func ActorAdmin(id uuid.UUID) string {
	return "admin:" + id.String()
}
