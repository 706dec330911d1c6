package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/events"
	"github.com/josh-kwaku/valorpoint/internal/repository"
)

// MaxDispatchAttempts is how often an event is offered to the broker before
// it is parked as failed.
const MaxDispatchAttempts = 5

type outboxRepo interface {
	ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.AccountEvent, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.AccountEventStatus) error
}

// OutboxDispatcher forwards committed account events to the message broker.
type OutboxDispatcher struct {
	events         outboxRepo
	publisher      events.Publisher
	db             *sql.DB
	logger         *slog.Logger
	interval       time.Duration
	batchSize      int
	publishTimeout time.Duration
}

func NewOutboxDispatcher(
	outbox outboxRepo,
	publisher events.Publisher,
	db *sql.DB,
	logger *slog.Logger,
	interval time.Duration,
	batchSize int,
	publishTimeout time.Duration,
) *OutboxDispatcher {
	return &OutboxDispatcher{
		events:         outbox,
		publisher:      publisher,
		db:             db,
		logger:         logger,
		interval:       interval,
		batchSize:      batchSize,
		publishTimeout: publishTimeout,
	}
}

func (d *OutboxDispatcher) Start(ctx context.Context) {
	d.logger.Info("outbox dispatcher started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchBatch(ctx); err != nil {
				d.logger.Error("outbox dispatch failed", "error", err)
			}
		}
	}
}

type eventMessage struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  uuid.UUID       `json:"account_id"`
	Type       string          `json:"type"`
	Actor      string          `json:"actor"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// DispatchBatch publishes one batch of pending events and reports how many
// were delivered.
func (d *OutboxDispatcher) DispatchBatch(ctx context.Context) (int, error) {
	delivered := 0
	err := repository.RunInTx(ctx, d.db, func(tx *sql.Tx) error {
		pending, err := d.events.ClaimPending(ctx, tx, d.batchSize)
		if err != nil {
			return err
		}

		for _, ev := range pending {
			status := d.dispatch(ctx, ev)
			if err := d.events.UpdateStatus(ctx, tx, ev.ID, status); err != nil {
				return err
			}
			if status == domain.AccountEventStatusDispatched {
				delivered++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("DispatchBatch: %w", err)
	}
	return delivered, nil
}

func (d *OutboxDispatcher) dispatch(ctx context.Context, ev domain.AccountEvent) domain.AccountEventStatus {
	body, err := json.Marshal(eventMessage{
		ID:         ev.ID,
		AccountID:  ev.AccountID,
		Type:       string(ev.EventType),
		Actor:      ev.Actor,
		Payload:    ev.Payload,
		OccurredAt: ev.CreatedAt,
	})
	if err != nil {
		d.logger.Error("malformed account event", "event_id", ev.ID, "error", err)
		return domain.AccountEventStatusFailed
	}

	// The claimed rows stay locked until every publish in the batch returns.
	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, ev.RoutingKey(), ev.ID.String(), body); err != nil {
		if ev.Attempts+1 >= MaxDispatchAttempts {
			d.logger.Error("account event parked after repeated failures",
				"event_id", ev.ID,
				"attempts", ev.Attempts+1,
				"error", err,
			)
			return domain.AccountEventStatusFailed
		}
		d.logger.Warn("account event publish failed, will retry",
			"event_id", ev.ID,
			"attempts", ev.Attempts+1,
			"error", err,
		)
		return domain.AccountEventStatusPending
	}

	d.logger.Debug("account event dispatched", "event_id", ev.ID, "routing_key", ev.RoutingKey())
	return domain.AccountEventStatusDispatched
}
