package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/geo"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"
)

const positionColumns = `trip_id, driver_id, latitude, longitude, heading, speed, is_moving,
	passenger_count, trip_status, nearest_stop, status, sequence, last_updated`

type PositionRepository struct {
	db *DB
}

var _ driven.PositionStore = (*PositionRepository)(nil)

func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (model.LivePosition, error) {
	var (
		p           model.LivePosition
		tripStatus  string
		status      string
		nearestStop sql.NullString
		lastUpdated int64
	)
	err := row.Scan(&p.TripID, &p.DriverID, &p.Latitude, &p.Longitude, &p.Heading, &p.Speed, &p.IsMoving,
		&p.PassengerCount, &tripStatus, &nearestStop, &status, &p.Sequence, &lastUpdated)
	if err != nil {
		return model.LivePosition{}, err
	}
	p.TripStatus = model.TripStatus(tripStatus)
	p.Status = model.LifecycleStatus(status)
	p.LastUpdated = time.UnixMilli(lastUpdated).UTC()
	if nearestStop.Valid && nearestStop.String != "" {
		var stop model.NearestStop
		if err := json.Unmarshal([]byte(nearestStop.String), &stop); err != nil {
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
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, COALESCE(?8, 0), ?9, 'active', 'not-started', ?10)
		ON CONFLICT (trip_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			heading = excluded.heading,
			speed = excluded.speed,
			is_moving = excluded.is_moving,
			passenger_count = COALESCE(?8, live_positions.passenger_count),
			sequence = CASE WHEN excluded.sequence > 0 THEN excluded.sequence ELSE live_positions.sequence END,
			status = 'active',
			last_updated = excluded.last_updated
		WHERE live_positions.driver_id = excluded.driver_id
			AND (excluded.sequence = 0 OR excluded.sequence >= live_positions.sequence)
		RETURNING ` + positionColumns

	var passengers any
	if w.PassengerCount != nil {
		passengers = int64(*w.PassengerCount)
	}

	r.db.writeMu.Lock()
	defer r.db.writeMu.Unlock()

	row := r.db.conn.QueryRowContext(ctx, query,
		w.TripID, w.DriverID, w.Latitude, w.Longitude, w.Heading, w.Speed, w.IsMoving,
		passengers, w.Sequence, w.At.UnixMilli(),
	)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := r.db.conn.QueryRowContext(ctx, `SELECT driver_id FROM live_positions WHERE trip_id = ?`, tripID).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return myerrors.ErrPositionNotFound
	case err != nil:
		return myerrors.StoreUnavailable("classify rejected write", err)
	case owner != driverID:
		return myerrors.ErrNotOwner
	}
	return myerrors.ErrStaleSequence
}

func (r *PositionRepository) UpdateTripStatus(ctx context.Context, w model.TripStatusWrite) (model.LivePosition, error) {
	var stop any
	if w.NearestStop != nil {
		b, err := json.Marshal(w.NearestStop)
		if err != nil {
			return model.LivePosition{}, fmt.Errorf("encode nearest stop: %w", err)
		}
		stop = string(b)
	}

	query := `
		UPDATE live_positions
		SET trip_status = ?1,
			nearest_stop = COALESCE(?2, nearest_stop),
			last_updated = ?3
		WHERE trip_id = ?4 AND driver_id = ?5
		RETURNING ` + positionColumns

	r.db.writeMu.Lock()
	defer r.db.writeMu.Unlock()

	p, err := scanPosition(r.db.conn.QueryRowContext(ctx, query, string(w.Status), stop, w.At.UnixMilli(), w.TripID, w.DriverID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.LivePosition{}, r.rejection(ctx, w.TripID, w.DriverID)
	}
	if err != nil {
		return model.LivePosition{}, myerrors.StoreUnavailable("update trip status", err)
	}
	return p, nil
}

func (r *PositionRepository) Get(ctx context.Context, tripID string) (model.LivePosition, error) {
	row := r.db.conn.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM live_positions WHERE trip_id = ?`, tripID)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LivePosition{}, myerrors.ErrPositionNotFound
	}
	if err != nil {
		return model.LivePosition{}, myerrors.StoreUnavailable("get position", err)
	}
	return p, nil
}

func (r *PositionRepository) Delete(ctx context.Context, tripID, driverID string) error {
	r.db.writeMu.Lock()
	defer r.db.writeMu.Unlock()

	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM live_positions WHERE trip_id = ? AND driver_id = ?`, tripID, driverID)
	if err != nil {
		return myerrors.StoreUnavailable("delete position", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.rejection(ctx, tripID, driverID)
	}
	return nil
}

func (r *PositionRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]model.LivePosition, error) {
	return r.list(ctx, `SELECT `+positionColumns+` FROM live_positions
		WHERE last_updated >= ? ORDER BY last_updated DESC`, since.UnixMilli())
}

func (r *PositionRepository) ListInBox(ctx context.Context, box geo.Box, since time.Time) ([]model.LivePosition, error) {
	lonClause := `longitude BETWEEN ? AND ?`
	if box.Wraps() {
		lonClause = `(longitude >= ? OR longitude <= ?)`
	}
	query := `SELECT ` + positionColumns + ` FROM live_positions
		WHERE status = 'active' AND last_updated >= ?
			AND latitude BETWEEN ? AND ?
			AND ` + lonClause + `
		ORDER BY last_updated DESC`
	return r.list(ctx, query, since.UnixMilli(), box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
}

func (r *PositionRepository) MarkDriverOffline(ctx context.Context, driverID string) (int64, error) {
	return r.exec(ctx, "mark driver offline", `UPDATE live_positions SET status = 'offline' WHERE driver_id = ?`, driverID)
}

func (r *PositionRepository) DemoteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "demote stale", `UPDATE live_positions SET status = 'inactive'
		WHERE status = 'active' AND last_updated < ?`, cutoff.UnixMilli())
}

func (r *PositionRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "purge expired", `DELETE FROM live_positions WHERE last_updated < ?`, cutoff.UnixMilli())
}

func (r *PositionRepository) Ping(ctx context.Context) error {
	if err := r.db.IsAlive(ctx); err != nil {
		return myerrors.StoreUnavailable("ping", err)
	}
	return nil
}

func (r *PositionRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	r.db.writeMu.Lock()
	defer r.db.writeMu.Unlock()

	res, err := r.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, myerrors.StoreUnavailable(op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *PositionRepository) list(ctx context.Context, query string, args ...any) ([]model.LivePosition, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
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
