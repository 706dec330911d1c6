package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type replayPurger interface {
	PurgeExpired(ctx context.Context, now time.Time, batch int) (int64, error)
}

const replayPurgeBatch = 500

// Maintenance runs periodic housekeeping on a cron schedule. Jobs never
// overlap: a run still in progress when the next tick fires is skipped.
type Maintenance struct {
	cron     *cron.Cron
	replays  replayPurger
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
	now      func() time.Time
}

func NewMaintenance(replays replayPurger, logger *slog.Logger, schedule string) *Maintenance {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Maintenance{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		replays:  replays,
		logger:   logger,
		schedule: schedule,
		timeout:  time.Minute,
		now:      time.Now,
	}
}

func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc(m.schedule, m.PurgeReplays); err != nil {
		return fmt.Errorf("Maintenance.Start: schedule %q: %w", m.schedule, err)
	}
	m.logger.Info("scheduled replay purge", "schedule", m.schedule)
	m.cron.Start()
	return nil
}

// Stop returns a context that is done once running jobs have finished.
func (m *Maintenance) Stop() context.Context {
	return m.cron.Stop()
}

// PurgeReplays removes expired idempotency replays.
func (m *Maintenance) PurgeReplays() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	start := m.now()
	n, err := m.replays.PurgeExpired(ctx, start.UTC(), replayPurgeBatch)
	if err != nil {
		m.logger.Error("replay purge failed", "error", err, "deleted", n)
		return
	}
	m.logger.Info("replay purge complete", "deleted", n, "duration_ms", time.Since(start).Milliseconds())
}
