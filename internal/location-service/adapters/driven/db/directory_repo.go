package db

import (
	"context"
	"errors"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"

	"github.com/jackc/pgx/v5"
)

// DirectoryRepository reads the users and trips tables owned by the
// account and scheduling systems.
type DirectoryRepository struct {
	db *DataBase
}

var _ driven.Directory = (*DirectoryRepository)(nil)

func NewDirectoryRepository(db *DataBase) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) User(ctx context.Context, userID string) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, role, is_approved, is_active
		FROM users
		WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Name, &role, &u.IsApproved, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, myerrors.ErrUnknownUser
	}
	if err != nil {
		return model.User{}, myerrors.StoreUnavailable("load user", err)
	}
	u.Role = model.Role(role)
	return u, nil
}

func (r *DirectoryRepository) Trip(ctx context.Context, tripID string) (model.Trip, error) {
	var t model.Trip
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, driver_id, bus_number, route_name, is_active
		FROM trips
		WHERE id = $1`, tripID,
	).Scan(&t.ID, &t.DriverID, &t.BusNumber, &t.RouteName, &t.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Trip{}, myerrors.ErrTripNotFound
	}
	if err != nil {
		return model.Trip{}, myerrors.StoreUnavailable("load trip", err)
	}
	return t, nil
}

// PutUser inserts or replaces a user row. Used by seeding and tests.
func (r *DirectoryRepository) PutUser(ctx context.Context, u model.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (id, name, role, is_approved, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			is_approved = EXCLUDED.is_approved,
			is_active = EXCLUDED.is_active`,
		u.ID, u.Name, string(u.Role), u.IsApproved, u.IsActive,
	)
	if err != nil {
		return myerrors.StoreUnavailable("put user", err)
	}
	return nil
}

// PutTrip inserts or replaces a trip row. Used by seeding and tests.
func (r *DirectoryRepository) PutTrip(ctx context.Context, t model.Trip) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO trips (id, driver_id, bus_number, route_name, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			bus_number = EXCLUDED.bus_number,
			route_name = EXCLUDED.route_name,
			is_active = EXCLUDED.is_active`,
		t.ID, t.DriverID, t.BusNumber, t.RouteName, t.IsActive,
	)
	if err != nil {
		return myerrors.StoreUnavailable("put trip", err)
	}
	return nil
}
