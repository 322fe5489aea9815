// Package tools maps typed geospatial queries onto the tools offered by the
// remote mapping host and describes those tools for MCP registration.
package tools

import (
	"errors"
	"fmt"

	"github.com/NERVsystems/geoquery/pkg/query"
)

// ErrNoSuitableTool is returned by Select when none of the candidate tools
// for a query type is available.
var ErrNoSuitableTool = errors.New("no suitable tool")

// Selection is the remote tool chosen for a query and its arguments.
type Selection struct {
	Tool string
	Args map[string]any
}

// candidate is one entry of a preference list. applies may veto a tool for
// a specific query, e.g. a nearby search without a proximity point.
type candidate struct {
	name    string
	applies func(query.Params) bool
	args    func(query.GeospatialQuery) map[string]any
}

// Selector chooses a remote tool for a query from per-type preference
// lists. It holds no mutable state and is safe for concurrent use.
type Selector struct {
	preferences map[query.Type][]candidate
}

// NewSelector returns a Selector with the default preference lists.
// Directions never fall back to a geocoding or search tool; distance only
// falls back to route-capable tools.
func NewSelector() *Selector {
	return &Selector{
		preferences: map[query.Type][]candidate{
			query.TypeGeocode: {
				{name: ToolMapboxGeocoding, args: searchTextArgs},
				{name: ToolGeocodeLocation, args: geocodeLocationArgs},
			},
			query.TypeReverse: {
				{name: ToolMapboxReverseGeocoding, args: reverseArgs},
				{name: ToolMapboxGeocoding, args: searchTextArgs},
				{name: ToolGeocodeLocation, args: geocodeLocationArgs},
			},
			query.TypeDirections: {
				{name: ToolMapboxDirectionsByPlaces, args: placesArgs},
				{name: ToolMapboxDirections, args: placesArgs},
				{name: ToolCalculateDistance, applies: notTransit, args: calculateDistanceArgs},
			},
			query.TypeDistance: {
				{name: ToolMapboxMatrixByPlaces, args: placesArgs},
				{name: ToolMapboxMatrix, args: placesArgs},
				{name: ToolCalculateDistance, applies: notTransit, args: calculateDistanceArgs},
				{name: ToolMapboxDirectionsByPlaces, args: placesArgs},
			},
			query.TypeSearch: {
				{name: ToolSearchNearbyPlaces, applies: hasProximity, args: nearbyArgs},
				{name: ToolMapboxCategorySearch, args: searchTextArgs},
				{name: ToolMapboxSearch, args: searchTextArgs},
				{name: ToolMapboxGeocoding, args: searchTextArgs},
			},
			query.TypeMap: {
				{name: ToolGenerateMapLink, args: mapLinkArgs},
				{name: ToolMapboxGeocoding, args: searchTextArgs},
				{name: ToolGeocodeLocation, args: geocodeLocationArgs},
			},
		},
	}
}

// Candidates returns the preference list for t, most preferred first.
func (s *Selector) Candidates(t query.Type) []string {
	prefs := s.preferences[t]
	names := make([]string, 0, len(prefs))
	for _, c := range prefs {
		names = append(names, c.name)
	}
	return names
}

// Select returns the first candidate for q's type that is present in
// available and applicable to q, together with its arguments. It performs
// no I/O.
func (s *Selector) Select(q query.GeospatialQuery, available []string) (Selection, error) {
	if q.Params() == nil {
		return Selection{}, fmt.Errorf("%w: empty query", ErrNoSuitableTool)
	}
	have := make(map[string]struct{}, len(available))
	for _, name := range available {
		have[name] = struct{}{}
	}
	for _, c := range s.preferences[q.Type()] {
		if _, ok := have[c.name]; !ok {
			continue
		}
		if c.applies != nil && !c.applies(q.Params()) {
			continue
		}
		return Selection{Tool: c.name, Args: c.args(q)}, nil
	}
	return Selection{}, fmt.Errorf("%w for %s query", ErrNoSuitableTool, q.Type())
}

func notTransit(p query.Params) bool {
	_, mode := endpointsOf(p)
	return mode != query.ModeTransit
}

func hasProximity(p query.Params) bool {
	s, ok := p.(query.Search)
	return ok && s.Proximity != nil
}
