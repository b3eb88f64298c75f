package dto

import (
	"encoding/json"
	"time"

	"bus-tracker/internal/location-service/core/domain/model"
)

// LocationUpdateRequest is a position report, shared by the websocket
// and REST transports.
type LocationUpdateRequest struct {
	TripID     string   `json:"tripId" validate:"required,max=64"`
	Latitude   *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude  *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Heading    *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	Speed      *float64 `json:"speed,omitempty" validate:"omitempty,gte=0,lte=200"`
	Passengers *int     `json:"passengers,omitempty" validate:"omitempty,gte=0"`
	Sequence   int64    `json:"sequence,omitempty" validate:"gte=0"`
}

type NearestStopInput struct {
	StopID           string     `json:"stopId" validate:"required,max=64"`
	StopName         string     `json:"stopName" validate:"max=200"`
	DistanceMeters   float64    `json:"distanceMeters" validate:"gte=0"`
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
}

func (n *NearestStopInput) Model() *model.NearestStop {
	if n == nil {
		return nil
	}
	return &model.NearestStop{
		StopID:           n.StopID,
		StopName:         n.StopName,
		DistanceMeters:   n.DistanceMeters,
		EstimatedArrival: n.EstimatedArrival,
	}
}

type TripStatusRequest struct {
	TripID      string            `json:"tripId" validate:"required,max=64"`
	Status      model.TripStatus  `json:"status" validate:"required,oneof=not-started in-transit at-stop completed cancelled"`
	NearestStop *NearestStopInput `json:"nearestStop,omitempty" validate:"omitempty"`
}

// EmergencyAlertRequest relays Location untouched; its shape is up to
// the client.
type EmergencyAlertRequest struct {
	TripID   string          `json:"tripId" validate:"required,max=64"`
	Message  string          `json:"message" validate:"max=500"`
	Location json.RawMessage `json:"location,omitempty"`
}

type NearbyQuery struct {
	Latitude  *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Radius    float64  `json:"radius" validate:"gt=0,lte=50000"`
}

// LocationView is a live position enriched for display.
type LocationView struct {
	model.LivePosition
	DriverName string `json:"driverName,omitempty"`
	BusNumber  string `json:"busNumber,omitempty"`
	RouteName  string `json:"routeName,omitempty"`
}

type NearbyLocation struct {
	LocationView
	DistanceMeters float64 `json:"distanceMeters"`
	BearingDegrees float64 `json:"bearingDegrees"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LocationResponse struct {
	Message  string       `json:"message"`
	Location LocationView `json:"location"`
}

type ErrorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Store     string    `json:"store"`
	Broker    string    `json:"broker"`
	Timestamp time.Time `json:"timestamp"`
}
