// Package geo implements geodesic distance on the WGS-84 ellipsoid.
//
// Distances drive both the radius filter and the distance sort, and at
// department scale (tens of km) a planar approximation drifts by enough to
// reorder rural results, so the full Vincenty inverse formula is used rather
// than Euclidean or spherical shortcuts.
package geo

import "math"

// WGS-84 ellipsoid constants.
const (
	semiMajorAxisMeters = 6378137.0
	flattening          = 1 / 298.257223563
	semiMinorAxisMeters = semiMajorAxisMeters * (1 - flattening)

	convergenceThreshold = 1e-12
	maxIterations        = 200
)

// DistanceMeters returns the geodesic distance between two WGS-84 points
// using Vincenty's inverse formula. Coincident points return 0. For the
// nearly antipodal pairs where Vincenty fails to converge it falls back to a
// great-circle distance on the mean-radius sphere; such pairs are several
// thousand km apart and far beyond any search radius this service handles.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	u1 := math.Atan((1 - flattening) * math.Tan(radians(lat1)))
	u2 := math.Atan((1 - flattening) * math.Tan(radians(lat2)))
	l := radians(lon2 - lon1)

	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	lambda := l
	var sinSigma, cosSigma, sigma, cos2Alpha, cos2SigmaM float64

	for i := 0; i < maxIterations; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)

		sinSigma = math.Sqrt(
			math.Pow(cosU2*sinLambda, 2) +
				math.Pow(cosU1*sinU2-sinU1*cosU2*cosLambda, 2),
		)
		if sinSigma == 0 {
			return 0 // coincident after projection
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)

		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cos2Alpha = 1 - sinAlpha*sinAlpha
		if cos2Alpha == 0 {
			cos2SigmaM = 0 // equatorial line
		} else {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cos2Alpha
		}

		c := flattening / 16 * cos2Alpha * (4 + flattening*(4-3*cos2Alpha))
		prev := lambda
		lambda = l + (1-c)*flattening*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

		if math.Abs(lambda-prev) < convergenceThreshold {
			uSq := cos2Alpha * (semiMajorAxisMeters*semiMajorAxisMeters - semiMinorAxisMeters*semiMinorAxisMeters) / (semiMinorAxisMeters * semiMinorAxisMeters)
			a := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
			b := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
			deltaSigma := b * sinSigma * (cos2SigmaM + b/4*
				(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
					b/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
			return semiMinorAxisMeters * a * (sigma - deltaSigma)
		}
	}

	return haversineMeters(lat1, lon1, lat2, lon2)
}

// haversineMeters is the great-circle fallback on the WGS-84 mean radius.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const meanRadius = 6371008.8

	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dLon/2), 2)
	return 2 * meanRadius * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
