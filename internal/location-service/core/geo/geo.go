package geo

import "math"

const (
	EarthRadiusMeters = 6371000
	// MetersPerDegree is the length of one degree of latitude used by the
	// bounding-box pre-filter.
	MetersPerDegree = 111320
)

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	deltaPhi := toRadians(lat2 - lat1)
	deltaLambda := toRadians(lon2 - lon1)

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing from point 1 to point 2 in degrees (0-360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	deltaLambda := toRadians(lon2 - lon1)

	x := math.Sin(deltaLambda) * math.Cos(phi2)
	y := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	return math.Mod(toDegrees(math.Atan2(x, y))+360, 360)
}

// Destination returns the point reached by travelling distance meters from
// (lat, lon) along bearing degrees.
func Destination(lat, lon, bearing, distance float64) (float64, float64) {
	delta := distance / EarthRadiusMeters
	theta := toRadians(bearing)
	phi1 := toRadians(lat)
	lambda1 := toRadians(lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	return toDegrees(phi2), NormalizeLongitude(toDegrees(lambda2))
}

// NormalizeLongitude wraps lon into [-180, 180].
func NormalizeLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// Box is a coarse latitude/longitude rectangle. When MinLon > MaxLon the
// box crosses the antimeridian.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBox converts radius meters around (lat, lon) into a degree box
// using a fixed meters-per-degree approximation, widened in longitude by
// 1/cos(lat).
func BoundingBox(lat, lon, radius float64) Box {
	latDelta := radius / MetersPerDegree
	box := Box{
		MinLat: math.Max(lat-latDelta, -90),
		MaxLat: math.Min(lat+latDelta, 90),
	}

	cosLat := math.Cos(toRadians(lat))
	if box.MinLat <= -90 || box.MaxLat >= 90 || cosLat < 1e-9 {
		box.MinLon, box.MaxLon = -180, 180
		return box
	}

	lonDelta := radius / (MetersPerDegree * cosLat)
	if lonDelta >= 180 {
		box.MinLon, box.MaxLon = -180, 180
		return box
	}
	box.MinLon = NormalizeLongitude(lon - lonDelta)
	box.MaxLon = NormalizeLongitude(lon + lonDelta)
	return box
}

// Wraps reports whether the box crosses the antimeridian.
func (b Box) Wraps() bool {
	return b.MinLon > b.MaxLon
}

func (b Box) Contains(lat, lon float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.Wraps() {
		return lon >= b.MinLon || lon <= b.MaxLon
	}
	return lon >= b.MinLon && lon <= b.MaxLon
}
