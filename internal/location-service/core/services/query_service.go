package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/geo"
	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/mylogger"
)

// QueryService serves reads. Lifecycle status is evaluated at read time,
// so a record the sweeper has not reached yet still reads as inactive once
// it is past the demotion threshold.
type QueryService struct {
	log          mylogger.Logger
	store        driven.PositionStore
	dir          driven.Directory
	activeWindow time.Duration
	demoteAfter  time.Duration
	now          func() time.Time
}

func NewQueryService(log mylogger.Logger, store driven.PositionStore, dir driven.Directory, activeWindow, demoteAfter time.Duration) *QueryService {
	return &QueryService{
		log:          log,
		store:        store,
		dir:          dir,
		activeWindow: activeWindow,
		demoteAfter:  demoteAfter,
		now:          time.Now,
	}
}

func (q *QueryService) WithClock(now func() time.Time) *QueryService {
	q.now = now
	return q
}

// ActiveLocations returns every record updated within the active window,
// whatever its lifecycle status.
func (q *QueryService) ActiveLocations(ctx context.Context) ([]dto.LocationView, error) {
	return q.recent(ctx, "active_locations", false)
}

// ActiveBuses is ActiveLocations restricted to records that are still
// active, so a bus whose driver went offline drops out immediately.
func (q *QueryService) ActiveBuses(ctx context.Context) ([]dto.LocationView, error) {
	return q.recent(ctx, "active_buses", true)
}

func (q *QueryService) recent(ctx context.Context, action string, activeOnly bool) ([]dto.LocationView, error) {
	now := q.now().UTC()
	positions, err := q.store.ListUpdatedSince(ctx, now.Add(-q.activeWindow))
	if err != nil {
		q.log.Action(action).Error("list failed", err)
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	e := q.enricher()
	views := make([]dto.LocationView, 0, len(positions))
	for _, p := range positions {
		p = p.At(now, q.demoteAfter)
		if activeOnly && p.Status != model.StatusActive {
			continue
		}
		views = append(views, e.view(ctx, p))
	}
	return views, nil
}

func (q *QueryService) Location(ctx context.Context, tripID string) (dto.LocationView, error) {
	if err := requireField("tripId", tripID); err != nil {
		return dto.LocationView{}, err
	}
	p, err := q.store.Get(ctx, tripID)
	if err != nil {
		return dto.LocationView{}, fmt.Errorf("location %s: %w", tripID, err)
	}
	return q.enricher().view(ctx, p.At(q.now().UTC(), q.demoteAfter)), nil
}

// FindNearby narrows candidates with a bounding box, then keeps records
// within the exact great-circle radius. Only active records inside the
// active window qualify. Results are sorted nearest first.
func (q *QueryService) FindNearby(ctx context.Context, query dto.NearbyQuery) ([]dto.NearbyLocation, error) {
	if err := validateStruct(query); err != nil {
		return nil, err
	}
	lat, lon := *query.Latitude, *query.Longitude
	now := q.now().UTC()

	box := geo.BoundingBox(lat, lon, query.Radius)
	candidates, err := q.store.ListInBox(ctx, box, now.Add(-q.activeWindow))
	if err != nil {
		q.log.Action("find_nearby").Error("box scan failed", err)
		return nil, fmt.Errorf("find nearby: %w", err)
	}

	e := q.enricher()
	out := make([]dto.NearbyLocation, 0, len(candidates))
	for _, p := range candidates {
		p = p.At(now, q.demoteAfter)
		if p.Status != model.StatusActive {
			continue
		}
		d := geo.Haversine(lat, lon, p.Latitude, p.Longitude)
		if d > query.Radius {
			continue
		}
		out = append(out, dto.NearbyLocation{
			LocationView:   e.view(ctx, p),
			DistanceMeters: d,
			BearingDegrees: geo.Bearing(lat, lon, p.Latitude, p.Longitude),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	return out, nil
}

// enricher resolves display names once per request.
type enricher struct {
	log   mylogger.Logger
	dir   driven.Directory
	users map[string]model.User
	trips map[string]model.Trip
}

func (q *QueryService) enricher() *enricher {
	return &enricher{
		log:   q.log,
		dir:   q.dir,
		users: map[string]model.User{},
		trips: map[string]model.Trip{},
	}
}

func (e *enricher) view(ctx context.Context, p model.LivePosition) dto.LocationView {
	v := dto.LocationView{LivePosition: p}
	if e.dir == nil {
		return v
	}

	user, ok := e.users[p.DriverID]
	if !ok {
		u, err := e.dir.User(ctx, p.DriverID)
		if err != nil {
			e.log.Debug("driver lookup failed", "driver_id", p.DriverID, "err", err.Error())
		}
		user = u
		e.users[p.DriverID] = u
	}
	trip, ok := e.trips[p.TripID]
	if !ok {
		t, err := e.dir.Trip(ctx, p.TripID)
		if err != nil {
			e.log.Debug("trip lookup failed", "trip_id", p.TripID, "err", err.Error())
		}
		trip = t
		e.trips[p.TripID] = t
	}

	v.DriverName = user.Name
	v.BusNumber = trip.BusNumber
	v.RouteName = trip.RouteName
	return v
}
