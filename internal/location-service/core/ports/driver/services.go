package driver

import (
	"context"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
)

type IAuthService interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

type IIngestService interface {
	ReportPosition(ctx context.Context, id model.Identity, req dto.LocationUpdateRequest) (dto.LocationView, error)
	ReportTripStatus(ctx context.Context, id model.Identity, req dto.TripStatusRequest) (dto.LocationView, error)
	StopTracking(ctx context.Context, id model.Identity, tripID string) error
	RaiseEmergency(ctx context.Context, id model.Identity, req dto.EmergencyAlertRequest) (websocketdto.EmergencyAlert, error)
	DriverDisconnected(ctx context.Context, id model.Identity) error
}

type IQueryService interface {
	ActiveLocations(ctx context.Context) ([]dto.LocationView, error)
	ActiveBuses(ctx context.Context) ([]dto.LocationView, error)
	Location(ctx context.Context, tripID string) (dto.LocationView, error)
	FindNearby(ctx context.Context, q dto.NearbyQuery) ([]dto.NearbyLocation, error)
}
