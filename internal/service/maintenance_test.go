package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePurger struct {
	calls int
	now   time.Time
	batch int
	err   error
}

func (f *fakePurger) PurgeExpired(ctx context.Context, now time.Time, batch int) (int64, error) {
	f.calls++
	f.now, f.batch = now, batch
	return 3, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMaintenance_InvalidSchedule(t *testing.T) {
	m := NewMaintenance(&fakePurger{}, discardLogger(), "not a schedule")
	assert.Error(t, m.Start())
}

func TestMaintenance_PurgeReplays(t *testing.T) {
	purger := &fakePurger{}
	m := NewMaintenance(purger, discardLogger(), "@every 1h")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("WAT", 3600))
	m.now = func() time.Time { return fixed }

	m.PurgeReplays()
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, replayPurgeBatch, purger.batch)
	assert.Equal(t, time.UTC, purger.now.Location())
	assert.True(t, purger.now.Equal(fixed))

	purger.err = errors.New("boom")
	m.PurgeReplays()
	assert.Equal(t, 2, purger.calls)
}

func TestMaintenance_StartStop(t *testing.T) {
	m := NewMaintenance(&fakePurger{}, discardLogger(), "@every 1h")
	assert.NoError(t, m.Start())
	<-m.Stop().Done()
}
