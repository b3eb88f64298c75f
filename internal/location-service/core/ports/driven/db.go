package driven

import (
	"context"
	"time"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/geo"
)

// PositionStore holds at most one LivePosition per trip. Every method is
// atomic per call.
type PositionStore interface {
	// Upsert creates the record for w.TripID or updates it in place. It
	// fails with ErrNotOwner when the record belongs to another driver
	// and ErrStaleSequence when w carries an older sequence; in both cases
	// the record is left untouched.
	Upsert(ctx context.Context, w model.PositionWrite) (model.LivePosition, error)
	// UpdateTripStatus requires an existing record owned by w.DriverID.
	UpdateTripStatus(ctx context.Context, w model.TripStatusWrite) (model.LivePosition, error)
	Get(ctx context.Context, tripID string) (model.LivePosition, error)
	// Delete removes the record for tripID if driverID owns it.
	Delete(ctx context.Context, tripID, driverID string) error
	ListUpdatedSince(ctx context.Context, since time.Time) ([]model.LivePosition, error)
	// ListInBox returns active records updated since that fall in box.
	ListInBox(ctx context.Context, box geo.Box, since time.Time) ([]model.LivePosition, error)
	// MarkDriverOffline demotes every record owned by driverID to offline.
	MarkDriverOffline(ctx context.Context, driverID string) (int64, error)
	// DemoteStale moves active records last updated before cutoff to inactive.
	DemoteStale(ctx context.Context, cutoff time.Time) (int64, error)
	// PurgeExpired deletes records last updated before cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// TripDirectory answers ownership questions about trips owned by the
// scheduling system.
type TripDirectory interface {
	Trip(ctx context.Context, tripID string) (model.Trip, error)
}

type UserDirectory interface {
	User(ctx context.Context, userID string) (model.User, error)
}

type Directory interface {
	TripDirectory
	UserDirectory
}
