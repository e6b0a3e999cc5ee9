package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the Haversine formula.
const earthRadiusKm = 6371.0

// DistanceKm computes the great-circle distance between two points in
// kilometers using the Haversine formula. The result is unrounded; callers
// that display or compare distances should round exactly once via RoundKm
// after any arithmetic is done.
func DistanceKm(a, b Coordinates) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// RoundKm rounds a distance to two decimal places (10 m resolution), the
// precision exposed on search results.
func RoundKm(d float64) float64 {
	return math.Round(d*100) / 100
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
