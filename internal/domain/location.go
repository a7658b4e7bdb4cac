package domain

import (
	"errors"
	"math"
)

var ErrInvalidLocation = errors.New("invalid location")

// Location is a last-known geographic position in degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewLocation rejects non-finite and out-of-range coordinates.
func NewLocation(lat, lng float64) (Location, error) {
	if !finite(lat) || !finite(lng) {
		return Location{}, ErrInvalidLocation
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Location{}, ErrInvalidLocation
	}
	return Location{Lat: lat, Lng: lng}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
