// Package geo scores submitted visit coordinates against a case's
// registered address. Pure functions, no I/O.
package geo

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the mean Earth radius used by the Haversine formula
const earthRadiusMeters = 6371000.0

// DefaultThresholdMeters is the fallback auto-flag distance
const DefaultThresholdMeters = 300.0

// Validation is the result of scoring one coordinate pair
type Validation struct {
	IsValid        bool     `json:"isValid"`
	DistanceMeters *float64 `json:"distanceMeters"`
	Reason         string   `json:"reason"`
}

// Validator classifies visit coordinates against a distance threshold
type Validator struct {
	ThresholdMeters float64
}

// NewValidator returns a Validator with the given threshold; non-positive
// values fall back to the default.
func NewValidator(thresholdMeters float64) Validator {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	return Validator{ThresholdMeters: thresholdMeters}
}

// Distance computes the great-circle distance in meters between two points
// given in decimal degrees (Haversine)
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// CheckCoordinates rejects non-finite or out-of-range decimal-degree input
func CheckCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return fmt.Errorf("coordinates must be finite numbers")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lng)
	}
	return nil
}

// Validate scores the observed coordinates against the reference address.
// A case with no geocoded address cannot be distance-scored: absence of
// ground truth is never treated as fraud.
func (v Validator) Validate(obsLat, obsLng float64, refLat, refLng *float64) Validation {
	if refLat == nil || refLng == nil {
		return Validation{
			IsValid:        true,
			DistanceMeters: nil,
			Reason:         "no reference location on file",
		}
	}

	distance := Distance(obsLat, obsLng, *refLat, *refLng)

	if distance > v.ThresholdMeters {
		return Validation{
			IsValid:        false,
			DistanceMeters: &distance,
			Reason:         fmt.Sprintf("visit location is %dm away from registered address", int(math.Round(distance))),
		}
	}

	return Validation{
		IsValid:        true,
		DistanceMeters: &distance,
		Reason:         "GPS validated",
	}
}
