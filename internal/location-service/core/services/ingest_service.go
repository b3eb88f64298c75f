package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/mylogger"
)

const defaultEmergencyMessage = "Emergency reported"

// IngestService applies driver reports to the position store and hands
// the results to the fan-out engine. Both transports call into it.
type IngestService struct {
	log    mylogger.Logger
	store  driven.PositionStore
	trips  driven.TripDirectory
	fanout *Broadcaster
	now    func() time.Time
}

func NewIngestService(log mylogger.Logger, store driven.PositionStore, trips driven.TripDirectory, fanout *Broadcaster) *IngestService {
	return &IngestService{
		log:    log,
		store:  store,
		trips:  trips,
		fanout: fanout,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *IngestService) WithClock(now func() time.Time) *IngestService {
	s.now = now
	return s
}

func (s *IngestService) ReportPosition(ctx context.Context, id model.Identity, req dto.LocationUpdateRequest) (dto.LocationView, error) {
	if id.Role != model.RoleDriver {
		return dto.LocationView{}, myerrors.ErrDriverOnly
	}
	if err := validateStruct(req); err != nil {
		return dto.LocationView{}, err
	}

	trip, err := s.ownedTrip(ctx, id, req.TripID, false)
	if err != nil {
		return dto.LocationView{}, err
	}

	var heading, speed float64
	if req.Heading != nil {
		heading = *req.Heading
	}
	if req.Speed != nil {
		speed = *req.Speed
	}

	pos, err := s.store.Upsert(ctx, model.PositionWrite{
		TripID:         req.TripID,
		DriverID:       id.UserID,
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
		Heading:        heading,
		Speed:          speed,
		IsMoving:       model.IsMoving(speed),
		PassengerCount: req.Passengers,
		Sequence:       req.Sequence,
		At:             s.now().UTC(),
	})
	if err != nil {
		s.logStoreError("report_position", err, "trip_id", req.TripID)
		return dto.LocationView{}, fmt.Errorf("report position: %w", err)
	}

	view := dto.LocationView{
		LivePosition: pos,
		DriverName:   id.Name,
		BusNumber:    trip.BusNumber,
		RouteName:    trip.RouteName,
	}
	s.fanout.PositionUpdated(view)
	return view, nil
}

func (s *IngestService) ReportTripStatus(ctx context.Context, id model.Identity, req dto.TripStatusRequest) (dto.LocationView, error) {
	if id.Role != model.RoleDriver {
		return dto.LocationView{}, myerrors.ErrDriverOnly
	}
	if err := validateStruct(req); err != nil {
		return dto.LocationView{}, err
	}

	// A trip deactivated mid-run may still close out its own record.
	trip, err := s.ownedTrip(ctx, id, req.TripID, true)
	if err != nil {
		return dto.LocationView{}, err
	}

	pos, err := s.store.UpdateTripStatus(ctx, model.TripStatusWrite{
		TripID:      req.TripID,
		DriverID:    id.UserID,
		Status:      req.Status,
		NearestStop: req.NearestStop.Model(),
		At:          s.now().UTC(),
	})
	if err != nil {
		s.logStoreError("report_trip_status", err, "trip_id", req.TripID)
		return dto.LocationView{}, fmt.Errorf("report trip status: %w", err)
	}

	s.fanout.TripStatusChanged(pos)
	return dto.LocationView{
		LivePosition: pos,
		DriverName:   id.Name,
		BusNumber:    trip.BusNumber,
		RouteName:    trip.RouteName,
	}, nil
}

func (s *IngestService) StopTracking(ctx context.Context, id model.Identity, tripID string) error {
	if id.Role != model.RoleDriver {
		return myerrors.ErrDriverOnly
	}
	if err := requireField("tripId", tripID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, tripID, id.UserID); err != nil {
		s.logStoreError("stop_tracking", err, "trip_id", tripID)
		return fmt.Errorf("stop tracking: %w", err)
	}

	s.fanout.TrackingStopped(tripID)
	return nil
}

// RaiseEmergency broadcasts the alert as given. It does not touch the store
// so a store outage cannot block it.
func (s *IngestService) RaiseEmergency(ctx context.Context, id model.Identity, req dto.EmergencyAlertRequest) (websocketdto.EmergencyAlert, error) {
	if id.Role != model.RoleDriver {
		return websocketdto.EmergencyAlert{}, myerrors.ErrDriverOnly
	}
	if err := validateStruct(req); err != nil {
		return websocketdto.EmergencyAlert{}, err
	}
	if len(req.Location) > 0 && !json.Valid(req.Location) {
		return websocketdto.EmergencyAlert{}, myerrors.NewValidationError(map[string]string{"location": "must be valid JSON"})
	}

	message := req.Message
	if message == "" {
		message = defaultEmergencyMessage
	}
	alert := websocketdto.EmergencyAlert{
		TripID:     req.TripID,
		DriverID:   id.UserID,
		DriverName: id.Name,
		Message:    message,
		Location:   req.Location,
		Timestamp:  s.now().UTC(),
		Type:       "emergency",
	}

	s.log.Action("emergency_alert").Warn("emergency alert raised",
		"trip_id", alert.TripID, "driver_id", alert.DriverID, "alert_message", alert.Message)
	s.fanout.EmergencyRaised(alert)
	return alert, nil
}

// DriverDisconnected demotes the driver's records to offline and
// announces it. Non-driver identities are ignored.
func (s *IngestService) DriverDisconnected(ctx context.Context, id model.Identity) error {
	if id.Role != model.RoleDriver {
		return nil
	}

	n, err := s.store.MarkDriverOffline(ctx, id.UserID)
	if err != nil {
		s.logStoreError("driver_offline", err, "driver_id", id.UserID)
	} else {
		s.log.Action("driver_offline").Info("driver records demoted", "driver_id", id.UserID, "records", n)
	}

	s.fanout.DriverOffline(id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mark driver offline: %w", err)
	}
	return nil
}

// ownedTrip checks the directory: the trip exists, is assigned to id and,
// unless allowInactive, is active. Record ownership is the store's check.
func (s *IngestService) ownedTrip(ctx context.Context, id model.Identity, tripID string, allowInactive bool) (model.Trip, error) {
	trip, err := s.trips.Trip(ctx, tripID)
	if err != nil {
		return model.Trip{}, fmt.Errorf("lookup trip %s: %w", tripID, err)
	}
	if !trip.IsActive && !allowInactive {
		return model.Trip{}, myerrors.ErrTripNotFound
	}
	if trip.DriverID != id.UserID {
		return model.Trip{}, myerrors.ErrNotOwner
	}
	return trip, nil
}

func (s *IngestService) logStoreError(action string, err error, args ...any) {
	if myerrors.Classify(err) == myerrors.KindTransientStore || myerrors.Classify(err) == myerrors.KindInternal {
		s.log.Action(action).Error("position store failure", err, args...)
	}
}
