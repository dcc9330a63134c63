// Package geo holds the pure geometry used by the trip and geofence engines.
package geo

import (
	"math"

	"fleettrack/internal/core/model"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b model.Point) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Contains reports whether p lies inside g. Circles include their boundary.
// Polygons use even-odd ray casting over the implicitly closed ring; points
// exactly on an edge may fall either way.
func Contains(p model.Point, g *model.Geofence) bool {
	switch g.Kind {
	case model.GeofenceCircle:
		if g.Center == nil {
			return false
		}
		return Haversine(p, *g.Center) <= g.RadiusMeters/1000
	case model.GeofencePolygon:
		return inPolygon(p, g.Vertices)
	default:
		return false
	}
}

func inPolygon(p model.Point, ring []model.Point) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	x, y := p.Longitude, p.Latitude
	j := len(ring) - 1
	for i := range ring {
		xi, yi := ring[i].Longitude, ring[i].Latitude
		xj, yj := ring[j].Longitude, ring[j].Latitude
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// PathLength sums the haversine distance between consecutive points.
func PathLength(points []model.Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Haversine(points[i-1], points[i])
	}
	return total
}
