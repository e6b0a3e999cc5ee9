// Package geo provides geocoordinate validation and distance utilities shared
// by the search engine and the location resolver.
package geo

import (
	"errors"
	"fmt"
)

// Coordinate validation errors.
var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
)

// Coordinates is an immutable latitude/longitude pair in degrees.
// Use a *Coordinates field to model "both present or both absent"; a
// partially set pair is unrepresentable.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// New validates and returns a Coordinates value.
func New(lat, lng float64) (Coordinates, error) {
	c := Coordinates{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// Validate checks that both components are within range.
func (c Coordinates) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w (got %f)", ErrLatitudeOutOfRange, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w (got %f)", ErrLongitudeOutOfRange, c.Lng)
	}
	return nil
}

// FromGeoJSON converts a stored [longitude, latitude] pair into Coordinates.
// Persisted candidate locations use GeoJSON axis order, which is reversed
// from this package's Lat/Lng convention; all conversions go through here
// and GeoJSON so the axis swap lives in exactly one place.
func FromGeoJSON(position [2]float64) Coordinates {
	return Coordinates{Lat: position[1], Lng: position[0]}
}

// GeoJSON returns the coordinates as a [longitude, latitude] pair for storage.
func (c Coordinates) GeoJSON() [2]float64 {
	return [2]float64{c.Lng, c.Lat}
}
