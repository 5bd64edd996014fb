package fare

import (
	"fmt"
	"math"

	"taxi-service/internal/domain"
)

// Straight-line fallback used when staff enter a trip without routing.
const (
	detourFactor = 1.3
	flatSpeedKmh = 40.0
)

// FlatRoute approximates the road route between two resolved points from
// their great-circle distance.
func FlatRoute(pickup, dropoff Location) (*RouteMetrics, error) {
	if !pickup.HasCoordinates() {
		return nil, domain.Invalid("pickup", "has no coordinates")
	}
	if !dropoff.HasCoordinates() {
		return nil, domain.Invalid("dropoff", "has no coordinates")
	}
	distKm := haversineKm(pickup.Lat, pickup.Lng, dropoff.Lat, dropoff.Lng) * detourFactor
	if math.IsNaN(distKm) {
		return nil, domain.Invalid("pickup", fmt.Sprintf("invalid coordinates %v,%v", pickup.Lat, pickup.Lng))
	}
	return &RouteMetrics{
		DistanceMeters:  math.Round(distKm * 1000),
		DurationSeconds: math.Round(distKm / flatSpeedKmh * 3600),
	}, nil
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
