package messagebrokerdto

import "time"

// Routing keys on the location topic exchange.
const (
	KeyLocationUpdate  = "location.update.%s"
	KeyTripStatus      = "trip.status.%s"
	KeyTrackingStopped = "tracking.stopped.%s"
	KeyEmergencyAlert  = "alert.emergency"
	KeyDriverOffline   = "driver.offline.%s"
)

// Envelope wraps every mirrored fan-out event.
type Envelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}
