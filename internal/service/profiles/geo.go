package profiles

import "math"

const earthRadiusKm = 6371.0

// distanceKm is the great-circle distance between two points.
func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// boundingBox returns the lat/lon box containing every point within km of
// (lat, lon). It over-approximates; callers filter exactly afterwards.
func boundingBox(lat, lon, km float64) (minLat, maxLat, minLon, maxLon float64) {
	dLat := km / earthRadiusKm * 180 / math.Pi
	minLat, maxLat = math.Max(lat-dLat, -90), math.Min(lat+dLat, 90)

	cos := math.Cos(lat * math.Pi / 180)
	if cos < 1e-6 || maxLat == 90 || minLat == -90 {
		return minLat, maxLat, -180, 180
	}
	dLon := km / (earthRadiusKm * cos) * 180 / math.Pi
	if dLon >= 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, math.Max(lon-dLon, -180), math.Min(lon+dLon, 180)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
