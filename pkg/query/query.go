package query

import (
	"encoding/json"
	"fmt"

	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/geoerr"
)

// GeospatialQuery is a validated, immutable query. Build one with New,
// Decode or FromText; the zero value is not valid.
type GeospatialQuery struct {
	params     Params
	includeMap bool
}

// New applies defaults to params and validates them.
func New(params Params, includeMap bool) (GeospatialQuery, error) {
	if params == nil {
		return GeospatialQuery{}, geoerr.Validation("query parameters are required")
	}
	params = params.withDefaults()
	if err := params.validate(); err != nil {
		return GeospatialQuery{}, err
	}
	return GeospatialQuery{params: params, includeMap: includeMap}, nil
}

// MustNew is like New but panics on invalid input. For tests and fixed
// queries only.
func MustNew(params Params, includeMap bool) GeospatialQuery {
	q, err := New(params, includeMap)
	if err != nil {
		panic(err)
	}
	return q
}

// Type returns the query's intent.
func (q GeospatialQuery) Type() Type {
	if q.params == nil {
		return ""
	}
	return q.params.Type()
}

// Params returns the populated arm. Callers switch on the concrete type.
func (q GeospatialQuery) Params() Params { return q.params }

// IncludeMap reports whether the result should carry a map reference.
func (q GeospatialQuery) IncludeMap() bool { return q.includeMap }

// WithIncludeMap returns a copy of q with the map flag replaced.
func (q GeospatialQuery) WithIncludeMap(include bool) GeospatialQuery {
	q.includeMap = include
	return q
}

// Validate re-checks q. It only fails for the zero value or values built
// outside this package's constructors.
func (q GeospatialQuery) Validate() error {
	if q.params == nil {
		return geoerr.Validation("query parameters are required")
	}
	return q.params.validate()
}

// Subject is a short human label for status messages: the location, the
// origin/destination pair, the search text or the coordinates.
func (q GeospatialQuery) Subject() string {
	switch p := q.params.(type) {
	case Geocode:
		return p.Location
	case MapView:
		return p.Location
	case Reverse:
		return p.Coordinates.String()
	case Directions:
		return p.Origin + " to " + p.Destination
	case Distance:
		return p.Origin + " to " + p.Destination
	case Search:
		return p.Query
	}
	return ""
}

// wireQuery is the flattened JSON form. The populated fields depend on
// QueryType.
type wireQuery struct {
	QueryType   Type             `json:"queryType"`
	Location    string           `json:"location,omitempty"`
	Coordinates *geo.Coordinates `json:"coordinates,omitempty"`
	Origin      string           `json:"origin,omitempty"`
	Destination string           `json:"destination,omitempty"`
	Mode        Mode             `json:"mode,omitempty"`
	Query       string           `json:"query,omitempty"`
	Radius      *float64         `json:"radius,omitempty"`
	MaxResults  int              `json:"maxResults,omitempty"`
	IncludeMap  *bool            `json:"includeMap,omitempty"`
}

// MarshalJSON encodes q with a queryType discriminator.
func (q GeospatialQuery) MarshalJSON() ([]byte, error) {
	include := q.includeMap
	w := wireQuery{QueryType: q.Type(), IncludeMap: &include}
	switch p := q.params.(type) {
	case Geocode:
		w.Location = p.Location
	case MapView:
		w.Location = p.Location
	case Reverse:
		c := p.Coordinates
		w.Coordinates = &c
	case Directions:
		w.Origin, w.Destination, w.Mode = p.Origin, p.Destination, p.Mode
	case Distance:
		w.Origin, w.Destination, w.Mode = p.Origin, p.Destination, p.Mode
	case Search:
		w.Query = p.Query
		w.Coordinates = p.Proximity
		w.Radius = p.RadiusKm
		w.MaxResults = p.MaxResults
	default:
		return nil, fmt.Errorf("marshal query: no parameters")
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes and validates q; see Decode.
func (q *GeospatialQuery) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*q = decoded
	return nil
}

// Decode parses the JSON form, applies defaults and validates. When
// queryType is absent the intent is classified from the location or query
// text.
func Decode(data []byte) (GeospatialQuery, error) {
	var w wireQuery
	if err := json.Unmarshal(data, &w); err != nil {
		return GeospatialQuery{}, geoerr.New(geoerr.KindValidation, "decode", "query is not valid JSON", err)
	}
	includeMap := true
	if w.IncludeMap != nil {
		includeMap = *w.IncludeMap
	}

	if w.QueryType == "" {
		text := w.Location
		if text == "" {
			text = w.Query
		}
		if text == "" {
			return GeospatialQuery{}, geoerr.Validation("queryType is required")
		}
		q, err := FromText(text, "")
		if err != nil {
			return GeospatialQuery{}, err
		}
		return q.WithIncludeMap(includeMap), nil
	}

	var params Params
	switch w.QueryType {
	case TypeGeocode:
		params = Geocode{Location: w.Location}
	case TypeMap:
		params = MapView{Location: w.Location}
	case TypeReverse:
		if w.Coordinates == nil {
			return GeospatialQuery{}, geoerr.Validation("coordinates are required")
		}
		params = Reverse{Coordinates: *w.Coordinates}
	case TypeDirections:
		params = Directions{Origin: w.Origin, Destination: w.Destination, Mode: w.Mode}
	case TypeDistance:
		params = Distance{Origin: w.Origin, Destination: w.Destination, Mode: w.Mode}
	case TypeSearch:
		params = Search{Query: w.Query, Proximity: w.Coordinates, RadiusKm: w.Radius, MaxResults: w.MaxResults}
	default:
		return GeospatialQuery{}, geoerr.Validation(fmt.Sprintf("unknown query type %q", w.QueryType))
	}
	return New(params, includeMap)
}
