package model

import (
	"math"
	"time"
)

// LocationSample is a single rider position report. Only the freshest
// sample per throttle window is retained.
type LocationSample struct {
	RiderID   string    `json:"rider_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the sample carries finite, in-range coordinates.
func (s LocationSample) Valid() bool {
	if math.IsNaN(s.Lat) || math.IsInf(s.Lat, 0) || math.IsNaN(s.Lng) || math.IsInf(s.Lng, 0) {
		return false
	}
	return s.Lat >= -90 && s.Lat <= 90 && s.Lng >= -180 && s.Lng <= 180
}

// DistanceKm returns the haversine distance between two points in km.
func (c Coordinates) DistanceKm(other Coordinates) float64 {
	const earthRadiusKm = 6371.0
	lat1 := c.Lat * math.Pi / 180.0
	lat2 := other.Lat * math.Pi / 180.0
	dlat := (other.Lat - c.Lat) * math.Pi / 180.0
	dlng := (other.Lng - c.Lng) * math.Pi / 180.0
	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
