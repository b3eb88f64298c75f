package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/geo"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"

	"github.com/jackc/pgx/v5"
)

const positionColumns = `trip_id, driver_id, latitude, longitude, heading, speed, is_moving,
	passenger_count, trip_status, nearest_stop, status, sequence, last_updated`

type PositionRepository struct {
	db *DataBase
}

var _ driven.PositionStore = (*PositionRepository)(nil)

func NewPositionRepository(db *DataBase) *PositionRepository {
	return &PositionRepository{db: db}
}

func scanPosition(row pgx.Row) (model.LivePosition, error) {
	var (
		p           model.LivePosition
		tripStatus  string
		status      string
		nearestStop []byte
	)
	err := row.Scan(&p.TripID, &p.DriverID, &p.Latitude, &p.Longitude, &p.Heading, &p.Speed, &p.IsMoving,
		&p.PassengerCount, &tripStatus, &nearestStop, &status, &p.Sequence, &p.LastUpdated)
	if err != nil {
		return model.LivePosition{}, err
	}
	p.TripStatus = model.TripStatus(tripStatus)
	p.Status = model.LifecycleStatus(status)
	p.LastUpdated = p.LastUpdated.UTC()
	if len(nearestStop) > 0 {
		var stop model.NearestStop
		if err := json.Unmarshal(nearestStop, &stop); err != nil {
			return model.LivePosition{}, fmt.Errorf("decode nearest stop: %w", err)
		}
		p.NearestStop = &stop
	}
	return p, nil
}

func (r *PositionRepository) Upsert(ctx context.Context, w model.PositionWrite) (model.LivePosition, error) {
	query := `
		INSERT INTO live_positions (trip_id, driver_id, latitude, longitude, heading, speed, is_moving,
			passenger_count, sequence, status, trip_status, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::int, 0), $9, 'active', 'not-started', $10)
		ON CONFLICT (trip_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			heading = EXCLUDED.heading,
			speed = EXCLUDED.speed,
			is_moving = EXCLUDED.is_moving,
			passenger_count = COALESCE($8::int, live_positions.passenger_count),
			sequence = CASE WHEN EXCLUDED.sequence > 0 THEN EXCLUDED.sequence ELSE live_positions.sequence END,
			status = 'active',
			last_updated = EXCLUDED.last_updated
		WHERE live_positions.driver_id = EXCLUDED.driver_id
			AND (EXCLUDED.sequence = 0 OR EXCLUDED.sequence >= live_positions.sequence)
		RETURNING ` + positionColumns

	row := r.db.pool.QueryRow(ctx, query,
		w.TripID, w.DriverID, w.Latitude, w.Longitude, w.Heading, w.Speed, w.IsMoving,
		w.PassengerCount, w.Sequence, w.At,
	)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LivePosition{}, r.rejection(ctx, w.TripID, w.DriverID)
	}
	if err != nil {
		return model.LivePosition{}, myerrors.StoreUnavailable("upsert position", err)
	}
	return p, nil
}

// rejection explains why a conditional write matched no row.
func (r *PositionRepository) rejection(ctx context.Context, tripID, driverID string) error {
	var owner string
	err := r.db.pool.QueryRow(ctx, `SELECT driver_id FROM live_positions WHERE trip_id = $1`, tripID).Scan(&owner)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return myerrors.ErrPositionNotFound
	case err != nil:
		return myerrors.StoreUnavailable("classify rejected write", err)
	case owner != driverID:
		return myerrors.ErrNotOwner
	}
	return myerrors.ErrStaleSequence
}

func (r *PositionRepository) UpdateTripStatus(ctx context.Context, w model.TripStatusWrite) (model.LivePosition, error) {
	var stop []byte
	if w.NearestStop != nil {
		b, err := json.Marshal(w.NearestStop)
		if err != nil {
			return model.LivePosition{}, fmt.Errorf("encode nearest stop: %w", err)
		}
		stop = b
	}

	query := `
		UPDATE live_positions
		SET trip_status = $1,
			nearest_stop = COALESCE($2::jsonb, nearest_stop),
			last_updated = $3
		WHERE trip_id = $4 AND driver_id = $5
		RETURNING ` + positionColumns

	p, err := scanPosition(r.db.pool.QueryRow(ctx, query, string(w.Status), stop, w.At, w.TripID, w.DriverID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LivePosition{}, r.rejection(ctx, w.TripID, w.DriverID)
	}
	if err != nil {
		return model.LivePosition{}, myerrors.StoreUnavailable("update trip status", err)
	}
	return p, nil
}

func (r *PositionRepository) Get(ctx context.Context, tripID string) (model.LivePosition, error) {
	p, err := scanPosition(r.db.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM live_positions WHERE trip_id = $1`, tripID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LivePosition{}, myerrors.ErrPositionNotFound
	}
	if err != nil {
		return model.LivePosition{}, myerrors.StoreUnavailable("get position", err)
	}
	return p, nil
}

func (r *PositionRepository) Delete(ctx context.Context, tripID, driverID string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM live_positions WHERE trip_id = $1 AND driver_id = $2`, tripID, driverID)
	if err != nil {
		return myerrors.StoreUnavailable("delete position", err)
	}
	if tag.RowsAffected() == 0 {
		return r.rejection(ctx, tripID, driverID)
	}
	return nil
}

func (r *PositionRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]model.LivePosition, error) {
	return r.list(ctx, `SELECT `+positionColumns+` FROM live_positions
		WHERE last_updated >= $1 ORDER BY last_updated DESC`, since)
}

func (r *PositionRepository) ListInBox(ctx context.Context, box geo.Box, since time.Time) ([]model.LivePosition, error) {
	lonClause := `longitude BETWEEN $4 AND $5`
	if box.Wraps() {
		lonClause = `(longitude >= $4 OR longitude <= $5)`
	}
	query := `SELECT ` + positionColumns + ` FROM live_positions
		WHERE status = 'active' AND last_updated >= $1
			AND latitude BETWEEN $2 AND $3
			AND ` + lonClause + `
		ORDER BY last_updated DESC`
	return r.list(ctx, query, since, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
}

func (r *PositionRepository) MarkDriverOffline(ctx context.Context, driverID string) (int64, error) {
	return r.exec(ctx, "mark driver offline", `UPDATE live_positions SET status = 'offline' WHERE driver_id = $1`, driverID)
}

func (r *PositionRepository) DemoteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "demote stale", `UPDATE live_positions SET status = 'inactive'
		WHERE status = 'active' AND last_updated < $1`, cutoff)
}

func (r *PositionRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "purge expired", `DELETE FROM live_positions WHERE last_updated < $1`, cutoff)
}

func (r *PositionRepository) Ping(ctx context.Context) error {
	if err := r.db.IsAlive(ctx); err != nil {
		return myerrors.StoreUnavailable("ping", err)
	}
	return nil
}

func (r *PositionRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, myerrors.StoreUnavailable(op, err)
	}
	return tag.RowsAffected(), nil
}

func (r *PositionRepository) list(ctx context.Context, query string, args ...any) ([]model.LivePosition, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, myerrors.StoreUnavailable("list positions", err)
	}
	defer rows.Close()

	var out []model.LivePosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, myerrors.StoreUnavailable("scan position", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, myerrors.StoreUnavailable("iterate positions", err)
	}
	return out, nil
}
