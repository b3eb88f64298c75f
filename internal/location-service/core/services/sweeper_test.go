package services

import (
	"context"
	"testing"
	"time"

	"bus-tracker/internal/location-service/adapters/driven/memory"
	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/mylogger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAt(t *testing.T, store *memory.PositionStore, tripID, driverID string, at time.Time) {
	t.Helper()
	_, err := store.Upsert(context.Background(), model.PositionWrite{
		TripID:    tripID,
		DriverID:  driverID,
		Latitude:  23.78,
		Longitude: 90.40,
		At:        at,
	})
	require.NoError(t, err)
}

func TestSweepOnce(t *testing.T) {
	store := memory.NewPositionStore()
	c := &clock{now: t0}
	seedAt(t, store, "fresh", "d1", t0.Add(-time.Minute))
	seedAt(t, store, "stale", "d1", t0.Add(-11*time.Minute))
	seedAt(t, store, "expired", "d2", t0.Add(-25*time.Hour))

	sw := NewSweeper(mylogger.Discard(), store, time.Minute, 10*time.Minute, 24*time.Hour).WithClock(c.Now)

	res, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Demoted: 2, Purged: 1}, res)

	fresh, err := store.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, fresh.Status)

	stale, err := store.Get(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, stale.Status)

	_, err = store.Get(context.Background(), "expired")
	assert.ErrorIs(t, err, myerrors.ErrPositionNotFound)

	res, err = sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res, "a second pass finds nothing new")
}

func TestSweepPurgesWhenDemotionFails(t *testing.T) {
	store := memory.NewPositionStore()
	seedAt(t, store, "expired", "d1", t0.Add(-48*time.Hour))
	flaky := &flakyStore{PositionStore: store, failDemote: true}

	sw := NewSweeper(mylogger.Discard(), flaky, time.Minute, 10*time.Minute, 24*time.Hour).
		WithClock(func() time.Time { return t0 })

	res, err := sw.SweepOnce(context.Background())
	require.ErrorIs(t, err, myerrors.ErrStoreUnavailable)
	assert.Equal(t, int64(1), res.Purged)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	store := memory.NewPositionStore()
	seedAt(t, store, "stale", "d1", time.Now().Add(-time.Hour))
	sw := NewSweeper(mylogger.Discard(), store, 5*time.Millisecond, 10*time.Minute, 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		p, err := store.Get(context.Background(), "stale")
		return err == nil && p.Status == model.StatusInactive
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
