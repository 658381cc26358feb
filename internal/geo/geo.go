package geo

import (
	"math"

	"github.com/example/care-coordination/internal/models"
)

// HaversineKm is the great-circle distance between two points in kilometres.
func HaversineKm(a, b models.Coord) float64 {
	const earthRadiusKm = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Estimator supplies a road distance when the search index carried no geo
// point for a candidate. Estimates are soft approximations; the pipeline flags
// candidates scored from them.
type Estimator interface {
	EstimateKm(from, to models.Coord) (float64, error)
}
