// Package geo provides common geographic types and calculations.
// It centralizes location-based data structures so that query parsing,
// tool argument mapping and response normalization agree on ranges and
// coordinate ordering.
package geo

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// EarthRadius is the mean radius of Earth according to WGS-84 in meters
const EarthRadius = 6371000.0

// Coordinates represents a geographic coordinate (latitude and longitude)
// with standardized JSON field names.
//
// Example:
//
//	c := geo.Coordinates{Latitude: 48.8584, Longitude: 2.2945}
//	center := c.LngLat() // [2.2945, 48.8584] for map libraries
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var (
	// ErrLatitudeRange is returned when a latitude is outside [-90, 90].
	ErrLatitudeRange = errors.New("latitude must be between -90 and 90")
	// ErrLongitudeRange is returned when a longitude is outside [-180, 180].
	ErrLongitudeRange = errors.New("longitude must be between -180 and 180")
)

// ValidateCoords checks that lat and lon are finite and within range.
func ValidateCoords(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: %v", ErrLatitudeRange, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: %v", ErrLongitudeRange, lon)
	}
	return nil
}

// Validate reports whether c is a usable coordinate.
func (c Coordinates) Validate() error {
	return ValidateCoords(c.Latitude, c.Longitude)
}

// LngLat returns the coordinate in [longitude, latitude] order, the
// convention used by map rendering libraries and GeoJSON.
func (c Coordinates) LngLat() [2]float64 {
	return [2]float64{c.Longitude, c.Latitude}
}

// String formats c as "lat,lng" with six decimals.
func (c Coordinates) String() string {
	return fmt.Sprintf("%s,%s",
		strconv.FormatFloat(c.Latitude, 'f', 6, 64),
		strconv.FormatFloat(c.Longitude, 'f', 6, 64))
}

// pairPattern matches "<number>,<number>" with an optional sign on each part.
var pairPattern = regexp.MustCompile(`([-+]?\d+(?:\.\d+)?)\s*,\s*([-+]?\d+(?:\.\d+)?)`)

// ContainsPair reports whether s contains a "<number>,<number>" pattern.
func ContainsPair(s string) bool {
	return pairPattern.MatchString(s)
}

// FindPair extracts the first "lat,lng" pair found in s. The pair is
// returned even if it is out of range; call Validate before using it.
func FindPair(s string) (Coordinates, bool) {
	m := pairPattern.FindStringSubmatch(s)
	if m == nil {
		return Coordinates{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Coordinates{}, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: lat, Longitude: lon}, true
}

// ParseCoordinates parses a string that consists solely of a "lat,lng" pair.
func ParseCoordinates(s string) (Coordinates, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinates{}, fmt.Errorf("not a coordinate pair: %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid latitude %q: %w", parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid longitude %q: %w", parts[1], err)
	}
	c := Coordinates{Latitude: lat, Longitude: lon}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// BoundingBox represents a geographic bounding box with southwest and northeast corners
type BoundingBox struct {
	MinLat float64 // Southern edge (minimum latitude)
	MinLon float64 // Western edge (minimum longitude)
	MaxLat float64 // Northern edge (maximum latitude)
	MaxLon float64 // Eastern edge (maximum longitude)
}

// NewBoundingBox creates a new empty bounding box
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{
		MinLat: 90.0, // Start with inverted min/max so any point extends correctly
		MinLon: 180.0,
		MaxLat: -90.0,
		MaxLon: -180.0,
	}
}

// BoundingBoxAround returns a box centered on c extending radiusMeters in
// every direction, clipped to valid ranges.
func BoundingBoxAround(c Coordinates, radiusMeters float64) *BoundingBox {
	bb := NewBoundingBox()
	bb.ExtendWithPoint(c.Latitude, c.Longitude)
	bb.Buffer(radiusMeters)
	return bb
}

// ExtendWithPoint extends the bounding box to include the specified point
func (bb *BoundingBox) ExtendWithPoint(lat, lon float64) {
	if lat < bb.MinLat {
		bb.MinLat = lat
	}
	if lat > bb.MaxLat {
		bb.MaxLat = lat
	}
	if lon < bb.MinLon {
		bb.MinLon = lon
	}
	if lon > bb.MaxLon {
		bb.MaxLon = lon
	}
}

// Buffer adds a buffer around the bounding box in meters.
// This is a rough approximation as it converts meters to degrees using
// a simple factor that's reasonably accurate near the equator.
func (bb *BoundingBox) Buffer(bufferMeters float64) {
	// 0.01 degrees is roughly 1.11 km at the equator
	bufferDegrees := bufferMeters / 111000
	bb.MinLat -= bufferDegrees
	bb.MaxLat += bufferDegrees
	bb.MinLon -= bufferDegrees
	bb.MaxLon += bufferDegrees

	if bb.MinLat < -90 {
		bb.MinLat = -90
	}
	if bb.MaxLat > 90 {
		bb.MaxLat = 90
	}
	if bb.MinLon < -180 {
		bb.MinLon = -180
	}
	if bb.MaxLon > 180 {
		bb.MaxLon = 180
	}
}

// LngLatSlice returns the box as [minLon, minLat, maxLon, maxLat], the order
// Mapbox search APIs expect for a bbox parameter.
func (bb *BoundingBox) LngLatSlice() []float64 {
	return []float64{bb.MinLon, bb.MinLat, bb.MaxLon, bb.MaxLat}
}

// HaversineDistance calculates the great-circle distance between two points
// on the Earth's surface given their latitude and longitude in degrees.
// The result is returned in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadius * c
}
