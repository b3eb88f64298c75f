package model

import "time"

// MovingThresholdKmh is the speed above which a vehicle counts as moving.
const MovingThresholdKmh = 5.0

// MaxSpeedKmh caps reported speeds.
const MaxSpeedKmh = 200.0

type LifecycleStatus string

const (
	StatusActive   LifecycleStatus = "active"
	StatusInactive LifecycleStatus = "inactive"
	StatusOffline  LifecycleStatus = "offline"
)

type TripStatus string

const (
	TripNotStarted TripStatus = "not-started"
	TripInTransit  TripStatus = "in-transit"
	TripAtStop     TripStatus = "at-stop"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

func (s TripStatus) Valid() bool {
	switch s {
	case TripNotStarted, TripInTransit, TripAtStop, TripCompleted, TripCancelled:
		return true
	}
	return false
}

type NearestStop struct {
	StopID           string     `json:"stopId"`
	StopName         string     `json:"stopName"`
	DistanceMeters   float64    `json:"distanceMeters"`
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
}

// LivePosition is the single authoritative record for one trip.
type LivePosition struct {
	TripID         string          `json:"tripId"`
	DriverID       string          `json:"driverId"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	Heading        float64         `json:"heading"`
	Speed          float64         `json:"speed"`
	IsMoving       bool            `json:"isMoving"`
	PassengerCount int             `json:"passengerCount"`
	TripStatus     TripStatus      `json:"tripStatus"`
	NearestStop    *NearestStop    `json:"nearestStop,omitempty"`
	Status         LifecycleStatus `json:"status"`
	Sequence       int64           `json:"sequence,omitempty"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

// PositionWrite is what the ingest path hands to the store. Derived
// fields are already computed; At is the server time of the write.
type PositionWrite struct {
	TripID         string
	DriverID       string
	Latitude       float64
	Longitude      float64
	Heading        float64
	Speed          float64
	IsMoving       bool
	PassengerCount *int
	Sequence       int64
	At             time.Time
}

// TripStatusWrite updates trip progress on an existing record.
type TripStatusWrite struct {
	TripID      string
	DriverID    string
	Status      TripStatus
	NearestStop *NearestStop
	At          time.Time
}

// IsMoving derives the moving flag from a speed in km/h.
func IsMoving(speedKmh float64) bool {
	return speedKmh > MovingThresholdKmh
}

// EffectiveStatus evaluates the lifecycle status of a record at now. An
// active record older than demoteAfter reads as inactive even before the
// sweeper has persisted the demotion.
func EffectiveStatus(stored LifecycleStatus, lastUpdated, now time.Time, demoteAfter time.Duration) LifecycleStatus {
	if stored == StatusActive && now.Sub(lastUpdated) > demoteAfter {
		return StatusInactive
	}
	return stored
}

// At returns a copy of p with its lifecycle status evaluated at now.
func (p LivePosition) At(now time.Time, demoteAfter time.Duration) LivePosition {
	p.Status = EffectiveStatus(p.Status, p.LastUpdated, now, demoteAfter)
	return p
}

// NewPosition builds the record created by the first report for a trip.
func NewPosition(w PositionWrite) LivePosition {
	p := LivePosition{
		TripID:     w.TripID,
		DriverID:   w.DriverID,
		TripStatus: TripNotStarted,
	}
	p.Apply(w)
	return p
}

// Apply overwrites the mutable fields of p with w. The passenger count is
// kept when w carries none.
func (p *LivePosition) Apply(w PositionWrite) {
	p.Latitude = w.Latitude
	p.Longitude = w.Longitude
	p.Heading = w.Heading
	p.Speed = w.Speed
	p.IsMoving = w.IsMoving
	if w.PassengerCount != nil {
		p.PassengerCount = *w.PassengerCount
	}
	if w.Sequence > 0 {
		p.Sequence = w.Sequence
	}
	p.Status = StatusActive
	p.LastUpdated = w.At
}

// AcceptsSequence reports whether a write carrying seq may replace a
// record whose stored sequence is stored. Zero means "no sequence".
func AcceptsSequence(stored, seq int64) bool {
	return seq == 0 || seq >= stored
}
