package service

import (
	"math"

	"github.com/akinolu52/e-tap/module/core/domain"
)

// EarthRadiusMeters is the equatorial radius. Distances and fence radii are both in meters.
const EarthRadiusMeters = 6378137

// Distance returns the great-circle distance in meters between a and b using the
// spherical law of cosines.
func Distance(a, b domain.Coordinate) float64 {
	if a == b {
		return 0
	}
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)

	cos := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon)
	// rounding can push the argument just past ±1 for near-identical points
	cos = math.Max(-1, math.Min(1, cos))

	return EarthRadiusMeters * math.Acos(cos)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
