package osrm

import (
	"math"

	"lanehud/internal/engine"
)

// haversineMeters computes the great-circle distance in meters between two WGS84 points.
func haversineMeters(a, b engine.Waypoint) float64 {
	const earthRadiusM = 6_371_000.0
	const deg2rad = math.Pi / 180.0

	dLat := (b.Latitude - a.Latitude) * deg2rad
	dLon := (b.Longitude - a.Longitude) * deg2rad
	lat1r := a.Latitude * deg2rad
	lat2r := b.Latitude * deg2rad

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1r)*math.Cos(lat2r)*sinDLon*sinDLon
	return earthRadiusM * 2 * math.Asin(math.Sqrt(h))
}
