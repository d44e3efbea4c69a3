// Package coordwrap implements optional modular wrapping of latitude and
// longitude into a configured bounding box, as used to anonymize or clamp
// publisher coordinates before they are stored and broadcast.
package coordwrap

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Box is a bounding box used for coordinate wrapping. Lat1/Lng1 are always
// the minimum of the configured range, Lat2/Lng2 the maximum, regardless of
// the order they were supplied in.
type Box struct {
	Lat1, Lng1 float64
	Lat2, Lng2 float64
}

// Parse parses a "lat1,lng1,lat2,lng2" string into a Box, reordering each
// pair into (min, max). Returns an error if the string is malformed or
// either range is zero-width.
func Parse(s string) (Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Box{}, fmt.Errorf("invalid box format: expected 'lat1,lng1,lat2,lng2', got %q", s)
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Box{}, fmt.Errorf("invalid box coordinate %q: %w", p, err)
		}
		vals[i] = v
	}

	lat1, lng1, lat2, lng2 := vals[0], vals[1], vals[2], vals[3]

	minLat, maxLat := lat1, lat2
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	minLng, maxLng := lng1, lng2
	if minLng > maxLng {
		minLng, maxLng = maxLng, minLng
	}

	if minLat == maxLat || minLng == maxLng {
		return Box{}, fmt.Errorf("invalid box coordinates: latitude or longitude range cannot be zero (lat1=%v, lat2=%v, lng1=%v, lng2=%v)", lat1, lat2, lng1, lng2)
	}

	return Box{Lat1: minLat, Lng1: minLng, Lat2: maxLat, Lng2: maxLng}, nil
}

// WrapLatitude wraps lat into [Lat1, Lat2).
func (b Box) WrapLatitude(lat float64) float64 {
	return wrapCoordinate(lat, b.Lat1, b.Lat2)
}

// WrapLongitude wraps lng into [Lng1, Lng2).
func (b Box) WrapLongitude(lng float64) float64 {
	return wrapCoordinate(lng, b.Lng1, b.Lng2)
}

// wrapCoordinate normalizes value relative to min, applies Euclidean modulo
// over the [0, max-min) range, then shifts back. Go's math.Mod does not
// guarantee a non-negative result for negative operands, so the Euclidean
// variant is computed by hand here.
func wrapCoordinate(value, min, max float64) float64 {
	rangeLen := max - min
	if rangeLen == 0 {
		return value
	}
	return remEuclid(value-min, rangeLen) + min
}

// remEuclid returns x mod y in [0, y) for any finite x and any y != 0,
// matching Rust's f64::rem_euclid.
func remEuclid(x, y float64) float64 {
	r := math.Mod(x, y)
	if r < 0 {
		r += math.Abs(y)
	}
	return r
}
