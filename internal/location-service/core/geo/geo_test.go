package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	d := Haversine(0, 0, 0, 1)
	assert.InDelta(t, 111320, d, 111320*0.01)

	assert.Equal(t, 0.0, Haversine(23.78, 90.40, 23.78, 90.40))

	// Symmetric
	assert.InDelta(t, Haversine(23.78, 90.40, 23.81, 90.41), Haversine(23.81, 90.41, 23.78, 90.40), 1e-9)

	// Quarter meridian
	assert.InDelta(t, math.Pi/2*EarthRadiusMeters, Haversine(0, 0, 90, 0), 1e-6)
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 0, Bearing(0, 0, 1, 0), 1e-9)
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 1e-9)
	assert.InDelta(t, 180, Bearing(1, 0, 0, 0), 1e-9)
	assert.InDelta(t, 270, Bearing(0, 1, 0, 0), 1e-9)
}

func TestDestinationRoundTrip(t *testing.T) {
	lat, lon := Destination(23.78, 90.40, 45, 1000)
	assert.InDelta(t, 1000, Haversine(23.78, 90.40, lat, lon), 0.01)
	assert.InDelta(t, 45, Bearing(23.78, 90.40, lat, lon), 0.01)
}

func TestBoundingBox(t *testing.T) {
	box := BoundingBox(0, 0, 111320)
	assert.InDelta(t, -1, box.MinLat, 1e-9)
	assert.InDelta(t, 1, box.MaxLat, 1e-9)
	assert.InDelta(t, -1, box.MinLon, 1e-9)
	assert.InDelta(t, 1, box.MaxLon, 1e-9)

	// Longitude delta widens away from the equator.
	box = BoundingBox(60, 10, 111320)
	assert.InDelta(t, 4, box.MaxLon-box.MinLon, 1e-6)
	assert.True(t, box.Contains(60, 11.9))
	assert.False(t, box.Contains(60, 12.1))
}

func TestBoundingBoxAntimeridian(t *testing.T) {
	box := BoundingBox(0, 179.9, 50000)
	assert.True(t, box.Wraps())
	assert.True(t, box.Contains(0, -179.9))
	assert.True(t, box.Contains(0, 179.95))
	assert.False(t, box.Contains(0, 0))
}

func TestBoundingBoxNearPole(t *testing.T) {
	box := BoundingBox(89.9, 0, 50000)
	assert.Equal(t, 90.0, box.MaxLat)
	assert.Equal(t, -180.0, box.MinLon)
	assert.Equal(t, 180.0, box.MaxLon)
	assert.True(t, box.Contains(89.95, 170))
}

// The 111320 m/degree constant is ~0.1% longer than a haversine degree,
// so points right at the radius may fall outside the box.
func TestBoundingBoxCoversHaversineRadius(t *testing.T) {
	centerLat, centerLon := 23.78, 90.40
	for bearing := 0.0; bearing < 360; bearing += 15 {
		lat, lon := Destination(centerLat, centerLon, bearing, 4990)
		assert.True(t, BoundingBox(centerLat, centerLon, 5000).Contains(lat, lon), "bearing %v", bearing)
	}
}
