package geo

import "math"

// BoundingBox is an axis-aligned lat/lon rectangle used to pre-filter
// candidate rows in SQL before the exact geodesic radius check.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoundsAround returns a bounding box that fully contains the circle of
// radiusKm around (lat, lon). The box deliberately overshoots: rows inside
// the box but outside the circle are discarded later by the exact distance
// check, so correctness never depends on the box being tight.
func BoundsAround(lat, lon, radiusKm float64) BoundingBox {
	// Meters per degree of latitude is nearly constant; longitude degrees
	// shrink with cos(lat). Clamp near the poles where they collapse.
	const metersPerLatDegree = 110574.0

	radiusM := radiusKm * 1000
	dLat := radiusM / metersPerLatDegree

	cosLat := math.Cos(radians(lat))
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := radiusM / (111320.0 * cosLat)

	return BoundingBox{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLon: lon - dLon,
		MaxLon: lon + dLon,
	}
}
