// Package storetest holds the behavioural contract every PositionStore
// implementation must satisfy.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/geo"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) driven.PositionStore

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func write(trip, driver string, lat, lon, speed float64, at time.Time) model.PositionWrite {
	return model.PositionWrite{
		TripID:    trip,
		DriverID:  driver,
		Latitude:  lat,
		Longitude: lon,
		Heading:   90,
		Speed:     speed,
		IsMoving:  model.IsMoving(speed),
		At:        at,
	}
}

// Run executes the whole contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(t *testing.T, s driven.PositionStore){
		"UpsertCreatesThenUpdatesInPlace": testUpsertCreatesThenUpdates,
		"UpsertRejectsOtherDriver":        testUpsertRejectsOtherDriver,
		"UpsertSequence":                  testUpsertSequence,
		"UpsertKeepsPassengers":           testUpsertKeepsPassengers,
		"UpsertRevivesOffline":            testUpsertRevivesOffline,
		"TripStatus":                      testTripStatus,
		"Delete":                          testDelete,
		"ListUpdatedSince":                testListUpdatedSince,
		"ListInBox":                       testListInBox,
		"MarkDriverOffline":               testMarkDriverOffline,
		"DemoteAndPurge":                  testDemoteAndPurge,
		"ConcurrentUpsertsSingleRecord":   testConcurrentUpserts,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func testUpsertCreatesThenUpdates(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	first, err := s.Upsert(ctx, write("t1", "d1", 23.78, 90.40, 40, base))
	require.NoError(t, err)
	assert.Equal(t, "t1", first.TripID)
	assert.Equal(t, "d1", first.DriverID)
	assert.True(t, first.IsMoving)
	assert.Equal(t, model.StatusActive, first.Status)
	assert.Equal(t, model.TripNotStarted, first.TripStatus)
	assert.True(t, first.LastUpdated.Equal(base))

	second, err := s.Upsert(ctx, write("t1", "d1", 23.78, 90.40, 40, base.Add(time.Second)))
	require.NoError(t, err)
	assert.True(t, second.LastUpdated.Equal(base.Add(time.Second)))

	second.LastUpdated = first.LastUpdated
	assert.Equal(t, first, second, "only lastUpdated may differ")

	third, err := s.Upsert(ctx, write("t1", "d1", 23.79, 90.41, 0, base.Add(2*time.Second)))
	require.NoError(t, err)
	assert.False(t, third.IsMoving)
	assert.Equal(t, 23.79, third.Latitude)

	all, err := s.ListUpdatedSince(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testUpsertRejectsOtherDriver(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	_, err := s.Upsert(ctx, write("t1", "d1", 1, 1, 10, base))
	require.NoError(t, err)

	_, err = s.Upsert(ctx, write("t1", "d2", 2, 2, 20, base.Add(time.Second)))
	assert.ErrorIs(t, err, myerrors.ErrNotOwner)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.DriverID)
	assert.Equal(t, 1.0, got.Latitude)
	assert.True(t, got.LastUpdated.Equal(base))
}

func testUpsertSequence(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	w := write("t1", "d1", 1, 1, 10, base)
	w.Sequence = 5
	_, err := s.Upsert(ctx, w)
	require.NoError(t, err)

	stale := write("t1", "d1", 9, 9, 10, base.Add(time.Second))
	stale.Sequence = 4
	_, err = s.Upsert(ctx, stale)
	assert.ErrorIs(t, err, myerrors.ErrStaleSequence)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Latitude)
	assert.EqualValues(t, 5, got.Sequence)

	same := write("t1", "d1", 2, 2, 10, base.Add(2*time.Second))
	same.Sequence = 5
	got, err = s.Upsert(ctx, same)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Latitude)

	unsequenced := write("t1", "d1", 3, 3, 10, base.Add(3*time.Second))
	got, err = s.Upsert(ctx, unsequenced)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Latitude)
	assert.EqualValues(t, 5, got.Sequence, "an unsequenced write keeps the stored sequence")
}

func testUpsertKeepsPassengers(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	w := write("t1", "d1", 1, 1, 10, base)
	w.PassengerCount = intPtr(12)
	got, err := s.Upsert(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 12, got.PassengerCount)

	got, err = s.Upsert(ctx, write("t1", "d1", 1, 1, 10, base.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, 12, got.PassengerCount)

	w = write("t1", "d1", 1, 1, 10, base.Add(2*time.Second))
	w.PassengerCount = intPtr(0)
	got, err = s.Upsert(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 0, got.PassengerCount)
}

func testUpsertRevivesOffline(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	_, err := s.Upsert(ctx, write("t1", "d1", 1, 1, 10, base))
	require.NoError(t, err)
	_, err = s.MarkDriverOffline(ctx, "d1")
	require.NoError(t, err)

	got, err := s.Upsert(ctx, write("t1", "d1", 1, 1, 10, base.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
}

func testTripStatus(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()
	eta := base.Add(5 * time.Minute)

	_, err := s.UpdateTripStatus(ctx, model.TripStatusWrite{TripID: "t1", DriverID: "d1", Status: model.TripInTransit, At: base})
	assert.ErrorIs(t, err, myerrors.ErrPositionNotFound, "no implicit creation")

	_, err = s.Upsert(ctx, write("t1", "d1", 1, 1, 10, base))
	require.NoError(t, err)

	_, err = s.UpdateTripStatus(ctx, model.TripStatusWrite{TripID: "t1", DriverID: "d2", Status: model.TripCancelled, At: base})
	assert.ErrorIs(t, err, myerrors.ErrNotOwner)

	got, err := s.UpdateTripStatus(ctx, model.TripStatusWrite{
		TripID:   "t1",
		DriverID: "d1",
		Status:   model.TripAtStop,
		NearestStop: &model.NearestStop{
			StopID:           "s1",
			StopName:         "Main Gate",
			DistanceMeters:   120,
			EstimatedArrival: &eta,
		},
		At: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, model.TripAtStop, got.TripStatus)
	require.NotNil(t, got.NearestStop)
	assert.Equal(t, "Main Gate", got.NearestStop.StopName)
	require.NotNil(t, got.NearestStop.EstimatedArrival)
	assert.True(t, got.NearestStop.EstimatedArrival.Equal(eta))
	assert.True(t, got.LastUpdated.Equal(base.Add(time.Minute)))
	assert.Equal(t, 1.0, got.Latitude)

	got, err = s.UpdateTripStatus(ctx, model.TripStatusWrite{TripID: "t1", DriverID: "d1", Status: model.TripInTransit, At: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.NotNil(t, got.NearestStop, "nearest stop is kept when not supplied")
}

func testDelete(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	assert.ErrorIs(t, s.Delete(ctx, "t1", "d1"), myerrors.ErrPositionNotFound)

	_, err := s.Upsert(ctx, write("t1", "d1", 1, 1, 10, base))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, "t1", "d2"), myerrors.ErrNotOwner)
	_, err = s.Get(ctx, "t1")
	require.NoError(t, err, "record untouched by a foreign delete")

	require.NoError(t, s.Delete(ctx, "t1", "d1"))
	_, err = s.Get(ctx, "t1")
	assert.ErrorIs(t, err, myerrors.ErrPositionNotFound)
}

func testListUpdatedSince(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	_, err := s.Upsert(ctx, write("old", "d1", 1, 1, 10, base.Add(-6*time.Minute)))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("edge", "d2", 1, 1, 10, base.Add(-5*time.Minute)))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("new", "d3", 1, 1, 10, base))
	require.NoError(t, err)

	got, err := s.ListUpdatedSince(ctx, base.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"edge", "new"}, tripIDs(got))
}

func testListInBox(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	_, err := s.Upsert(ctx, write("inside", "d1", 23.780, 90.400, 10, base))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("outside", "d2", 24.500, 90.400, 10, base))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("stale", "d3", 23.781, 90.401, 10, base.Add(-10*time.Minute)))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("offline", "d4", 23.782, 90.402, 10, base))
	require.NoError(t, err)
	_, err = s.MarkDriverOffline(ctx, "d4")
	require.NoError(t, err)

	box := geo.BoundingBox(23.78, 90.40, 2000)
	got, err := s.ListInBox(ctx, box, base.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"inside"}, tripIDs(got))

	// Antimeridian-crossing box.
	_, err = s.Upsert(ctx, write("east", "d5", 0, 179.99, 10, base))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("west", "d6", 0, -179.99, 10, base))
	require.NoError(t, err)
	got, err = s.ListInBox(ctx, geo.BoundingBox(0, 180, 5000), base.Add(-time.Minute))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"east", "west"}, tripIDs(got))
}

func testMarkDriverOffline(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()

	_, err := s.Upsert(ctx, write("t1", "d1", 1, 1, 10, base))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("t2", "d1", 1, 1, 10, base))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("t3", "d2", 1, 1, 10, base))
	require.NoError(t, err)

	n, err := s.MarkDriverOffline(ctx, "d1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, id := range []string{"t1", "t2"} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOffline, got.Status)
		assert.True(t, got.LastUpdated.Equal(base), "demotion does not refresh lastUpdated")
	}
	got, err := s.Get(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
}

func testDemoteAndPurge(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()
	now := base

	_, err := s.Upsert(ctx, write("fresh", "d1", 1, 1, 10, now.Add(-time.Minute)))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("stale", "d2", 1, 1, 10, now.Add(-11*time.Minute)))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("offline", "d3", 1, 1, 10, now.Add(-11*time.Minute)))
	require.NoError(t, err)
	_, err = s.MarkDriverOffline(ctx, "d3")
	require.NoError(t, err)
	_, err = s.Upsert(ctx, write("expired", "d4", 1, 1, 10, now.Add(-25*time.Hour)))
	require.NoError(t, err)

	demoted, err := s.DemoteStale(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, demoted, "stale and expired were active")

	got, err := s.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, got.Status)
	got, err = s.Get(ctx, "offline")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOffline, got.Status, "only active records are demoted")
	got, err = s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)

	purged, err := s.PurgeExpired(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
	_, err = s.Get(ctx, "expired")
	assert.ErrorIs(t, err, myerrors.ErrPositionNotFound)
}

func testConcurrentUpserts(t *testing.T, s driven.PositionStore) {
	ctx := context.Background()
	const writers = 16

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Upsert(ctx, write("t1", "d1", float64(i), 1, 10, base.Add(time.Duration(i)*time.Millisecond)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.ListUpdatedSince(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 1, fmt.Sprintf("got %v", tripIDs(all)))
}

func tripIDs(ps []model.LivePosition) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.TripID)
	}
	return out
}
