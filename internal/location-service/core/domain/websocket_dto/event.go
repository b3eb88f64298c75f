package websocketdto

import (
	"encoding/json"
	"time"

	"bus-tracker/internal/location-service/core/domain/model"
)

// Client -> server
const (
	EventAuthenticate       = "authenticate"
	EventLocationUpdate     = "locationUpdate"
	EventTripStatusUpdate   = "tripStatusUpdate"
	EventSubscribeToBus     = "subscribeToBus"
	EventUnsubscribeFromBus = "unsubscribeFromBus"
	EventGetActiveBuses     = "getActiveBuses"
	EventEmergencyAlert     = "emergencyAlert"
	EventPing               = "ping"
)

// Server -> client
const (
	EventAuthenticated       = "authenticated"
	EventBusLocationUpdate   = "busLocationUpdate"
	EventTrackingStopped     = "trackingStopped"
	EventDriverOffline       = "driverOffline"
	EventPriorityAlert       = "priorityAlert"
	EventLocationUpdateAck   = "locationUpdateAck"
	EventTripStatusUpdateAck = "tripStatusUpdateAck"
	EventEmergencyAlertAck   = "emergencyAlertAck"
	EventSubscribed          = "subscribed"
	EventUnsubscribed        = "unsubscribed"
	EventActiveBuses         = "activeBuses"
	EventError               = "error"
	EventPong                = "pong"
)

// Event is the envelope of every frame in both directions.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}

type AuthMessage struct {
	Token string `json:"token"`
}

type Authenticated struct {
	UserID   string     `json:"userId"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
	Channels []string   `json:"channels"`
}

type Ack struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type BusSubscription struct {
	TripID string `json:"tripId"`
}

type SubscriptionAck struct {
	TripID  string `json:"tripId"`
	Message string `json:"message"`
}

type TripStatusUpdate struct {
	TripID      string             `json:"tripId"`
	Status      model.TripStatus   `json:"status"`
	NearestStop *model.NearestStop `json:"nearestStop,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

type TrackingStopped struct {
	TripID string `json:"tripId"`
}

type DriverOffline struct {
	DriverID   string    `json:"driverId"`
	DriverName string    `json:"driverName"`
	Timestamp  time.Time `json:"timestamp"`
}

type EmergencyAlert struct {
	TripID     string          `json:"tripId"`
	DriverID   string          `json:"driverId"`
	DriverName string          `json:"driverName"`
	Message    string          `json:"message"`
	Location   json.RawMessage `json:"location,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       string          `json:"type"`
}

type Pong struct {
	Timestamp time.Time `json:"timestamp"`
}
