// Package query defines the typed geospatial query accepted by the
// orchestrator, the free-text intent classifier and the JSON codec used on
// the wire.
package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/geoerr"
)

// Type is the intent of a query and the discriminator of its parameters.
type Type string

const (
	TypeGeocode    Type = "geocode"
	TypeReverse    Type = "reverse"
	TypeDirections Type = "directions"
	TypeDistance   Type = "distance"
	TypeSearch     Type = "search"
	TypeMap        Type = "map"
)

// Types lists every query type in declaration order.
var Types = []Type{TypeGeocode, TypeReverse, TypeDirections, TypeDistance, TypeSearch, TypeMap}

// Valid reports whether t is a known query type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType converts s to a Type. The empty string maps to the empty Type,
// meaning "classify from text".
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t == "" || t.Valid() {
		return t, nil
	}
	return "", geoerr.Validation(fmt.Sprintf("unknown query type %q", s))
}

// Mode is the travel mode for directions and distance queries.
type Mode string

const (
	ModeDriving Mode = "driving"
	ModeWalking Mode = "walking"
	ModeCycling Mode = "cycling"
	ModeTransit Mode = "transit"

	// DefaultMode is used when a query does not name a mode.
	DefaultMode = ModeDriving
)

// Valid reports whether m is a known travel mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDriving, ModeWalking, ModeCycling, ModeTransit:
		return true
	}
	return false
}

// Search result limits.
const (
	DefaultMaxResults = 5
	MinMaxResults     = 1
	MaxMaxResults     = 20
)

// Params holds the fields of exactly one query arm. The set of
// implementations is closed: Geocode, MapView, Reverse, Directions,
// Distance and Search.
type Params interface {
	Type() Type
	validate() error
	withDefaults() Params
}

// Geocode resolves a place name or address to coordinates.
type Geocode struct {
	Location string
}

// MapView shows a place on the map.
type MapView struct {
	Location string
}

// Reverse resolves coordinates to a place.
type Reverse struct {
	Coordinates geo.Coordinates
}

// Directions asks for a route between two places.
type Directions struct {
	Origin      string
	Destination string
	Mode        Mode
}

// Distance asks how far apart two places are.
type Distance struct {
	Origin      string
	Destination string
	Mode        Mode
}

// Search looks for places matching Query, optionally biased towards
// Proximity and limited to RadiusKm.
type Search struct {
	Query      string
	Proximity  *geo.Coordinates
	RadiusKm   *float64
	MaxResults int
}

func (Geocode) Type() Type    { return TypeGeocode }
func (MapView) Type() Type    { return TypeMap }
func (Reverse) Type() Type    { return TypeReverse }
func (Directions) Type() Type { return TypeDirections }
func (Distance) Type() Type   { return TypeDistance }
func (Search) Type() Type     { return TypeSearch }

func (p Geocode) validate() error { return requireText("location", p.Location) }
func (p MapView) validate() error { return requireText("location", p.Location) }

func (p Reverse) validate() error {
	if err := p.Coordinates.Validate(); err != nil {
		return geoerr.Validation(err.Error())
	}
	return nil
}

func (p Directions) validate() error { return validateEndpoints(p.Origin, p.Destination, p.Mode) }
func (p Distance) validate() error   { return validateEndpoints(p.Origin, p.Destination, p.Mode) }

func (p Search) validate() error {
	if err := requireText("query", p.Query); err != nil {
		return err
	}
	if p.Proximity != nil {
		if err := p.Proximity.Validate(); err != nil {
			return geoerr.Validation(err.Error())
		}
	}
	if p.RadiusKm != nil {
		r := *p.RadiusKm
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			return geoerr.Validation("radius must be greater than 0")
		}
	}
	if p.MaxResults < MinMaxResults || p.MaxResults > MaxMaxResults {
		return geoerr.Validation(fmt.Sprintf("maxResults must be between %d and %d", MinMaxResults, MaxMaxResults))
	}
	return nil
}

func (p Geocode) withDefaults() Params { return p }
func (p MapView) withDefaults() Params { return p }
func (p Reverse) withDefaults() Params { return p }

func (p Directions) withDefaults() Params {
	if p.Mode == "" {
		p.Mode = DefaultMode
	}
	return p
}

func (p Distance) withDefaults() Params {
	if p.Mode == "" {
		p.Mode = DefaultMode
	}
	return p
}

func (p Search) withDefaults() Params {
	if p.MaxResults == 0 {
		p.MaxResults = DefaultMaxResults
	}
	if p.Proximity != nil {
		c := *p.Proximity
		p.Proximity = &c
	}
	if p.RadiusKm != nil {
		r := *p.RadiusKm
		p.RadiusKm = &r
	}
	return p
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return geoerr.Validation(field + " is required")
	}
	return nil
}

func validateEndpoints(origin, destination string, mode Mode) error {
	if err := requireText("origin", origin); err != nil {
		return err
	}
	if err := requireText("destination", destination); err != nil {
		return err
	}
	if !mode.Valid() {
		return geoerr.Validation(fmt.Sprintf("mode must be one of driving, walking, cycling, transit (got %q)", mode))
	}
	return nil
}
