package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/logging"
)

type countingCleaner struct {
	calls   int
	maxIdle time.Duration
}

func (c *countingCleaner) Cleanup(maxIdle time.Duration) int {
	c.calls++
	c.maxIdle = maxIdle
	return 1
}

type failingPurger struct{ calls int }

func (f *failingPurger) Purge(context.Context, time.Time) (int, error) {
	f.calls++
	return 0, errors.New("unavailable")
}

func TestRunOncePurgesExpiredRevocations(t *testing.T) {
	ctx := context.Background()
	revs := auth.NewMemoryRevocations()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, revs.Revoke(ctx, "old", now.Add(-time.Minute)))
	require.NoError(t, revs.Revoke(ctx, "fresh", now.Add(time.Hour)))

	cleaner := &countingCleaner{}
	h, err := NewHousekeeper("@every 1m", revs, cleaner, logging.Discard())
	require.NoError(t, err)
	h.now = func() time.Time { return now }

	h.RunOnce(ctx)

	assert.Equal(t, 1, revs.Len())
	revoked, err := revs.IsRevoked(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, 10*time.Minute, cleaner.maxIdle)
}

func TestRunOnceContinuesAfterPurgeFailure(t *testing.T) {
	purger := &failingPurger{}
	cleaner := &countingCleaner{}
	h, err := NewHousekeeper("", purger, cleaner, logging.Discard())
	require.NoError(t, err)

	h.RunOnce(context.Background())

	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, 1, cleaner.calls)
}

func TestNewHousekeeperRejectsBadSchedule(t *testing.T) {
	_, err := NewHousekeeper("every tuesday", nil, nil, logging.Discard())
	require.Error(t, err)
}

func TestStartStop(t *testing.T) {
	h, err := NewHousekeeper("@every 1h", nil, nil, logging.Discard())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Stop(ctx))
	require.NoError(t, h.Stop(ctx))
}
