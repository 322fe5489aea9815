package tools

import (
	"errors"
	"testing"

	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allToolNames() []string {
	var names []string
	for _, def := range NewRegistry(nil).GetToolDefinitions() {
		names = append(names, def.Name)
	}
	return names
}

func TestSelectPrefersFirstAvailable(t *testing.T) {
	radius := 2.0
	tests := []struct {
		name      string
		params    query.Params
		available []string
		wantTool  string
	}{
		{
			name:      "geocode with full catalog",
			params:    query.Geocode{Location: "Eiffel Tower"},
			available: allToolNames(),
			wantTool:  ToolMapboxGeocoding,
		},
		{
			name:      "geocode generic host",
			params:    query.Geocode{Location: "Eiffel Tower"},
			available: []string{ToolGeocodeLocation, ToolCalculateDistance},
			wantTool:  ToolGeocodeLocation,
		},
		{
			name:      "reverse falls back to geocoding",
			params:    query.Reverse{Coordinates: geo.Coordinates{Latitude: 48.8584, Longitude: 2.2945}},
			available: DefaultCatalog(),
			wantTool:  ToolMapboxGeocoding,
		},
		{
			name:      "directions default catalog",
			params:    query.Directions{Origin: "A", Destination: "B"},
			available: DefaultCatalog(),
			wantTool:  ToolMapboxDirectionsByPlaces,
		},
		{
			name:      "distance prefers matrix",
			params:    query.Distance{Origin: "A", Destination: "B"},
			available: DefaultCatalog(),
			wantTool:  ToolMapboxMatrixByPlaces,
		},
		{
			name:      "distance falls back to directions",
			params:    query.Distance{Origin: "A", Destination: "B"},
			available: []string{ToolMapboxGeocoding, ToolMapboxDirectionsByPlaces},
			wantTool:  ToolMapboxDirectionsByPlaces,
		},
		{
			name:      "transit skips calculate_distance",
			params:    query.Distance{Origin: "A", Destination: "B", Mode: query.ModeTransit},
			available: []string{ToolCalculateDistance, ToolMapboxDirectionsByPlaces},
			wantTool:  ToolMapboxDirectionsByPlaces,
		},
		{
			name:      "nearby search needs proximity",
			params:    query.Search{Query: "coffee"},
			available: []string{ToolSearchNearbyPlaces, ToolMapboxGeocoding},
			wantTool:  ToolMapboxGeocoding,
		},
		{
			name:      "nearby search with proximity",
			params:    query.Search{Query: "coffee", Proximity: &geo.Coordinates{Latitude: 1, Longitude: 2}, RadiusKm: &radius},
			available: []string{ToolSearchNearbyPlaces, ToolMapboxGeocoding},
			wantTool:  ToolSearchNearbyPlaces,
		},
		{
			name:      "map link",
			params:    query.MapView{Location: "Lisbon"},
			available: []string{ToolMapboxGeocoding, ToolGenerateMapLink},
			wantTool:  ToolGenerateMapLink,
		},
	}

	s := NewSelector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := s.Select(query.MustNew(tt.params, true), tt.available)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTool, sel.Tool)
			assert.NotEmpty(t, sel.Args)
		})
	}
}

// Directions must never be answered by a geocoding or search tool, whatever
// the host offers.
func TestSelectDirectionsNeverUsesGeocodeOrSearchTools(t *testing.T) {
	s := NewSelector()
	forbidden := map[string]bool{}
	for _, name := range append(s.Candidates(query.TypeGeocode), s.Candidates(query.TypeSearch)...) {
		forbidden[name] = true
	}

	all := allToolNames()
	q := query.MustNew(query.Directions{Origin: "Paris", Destination: "Lyon"}, true)

	// Every subset of the known tools.
	for mask := 0; mask < 1<<len(all); mask++ {
		var available []string
		for i, name := range all {
			if mask&(1<<i) != 0 {
				available = append(available, name)
			}
		}
		sel, err := s.Select(q, available)
		if err != nil {
			require.ErrorIs(t, err, ErrNoSuitableTool)
			continue
		}
		require.False(t, forbidden[sel.Tool], "directions selected %s from %v", sel.Tool, available)
	}
}

func TestSelectNoSuitableTool(t *testing.T) {
	s := NewSelector()
	q := query.MustNew(query.Directions{Origin: "Paris", Destination: "Lyon"}, true)

	_, err := s.Select(q, []string{ToolMapboxGeocoding, ToolMapboxSearch, ToolGeocodeLocation})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSuitableTool))

	_, err = s.Select(query.GeospatialQuery{}, DefaultCatalog())
	assert.ErrorIs(t, err, ErrNoSuitableTool)
}

func TestSelectArgs(t *testing.T) {
	s := NewSelector()
	radius := 1.5
	proximity := geo.Coordinates{Latitude: 51.5, Longitude: -0.12}

	tests := []struct {
		name      string
		q         query.GeospatialQuery
		available []string
		want      map[string]any
	}{
		{
			name:      "directions by places",
			q:         query.MustNew(query.Directions{Origin: "Eiffel Tower", Destination: "Louvre", Mode: query.ModeWalking}, false),
			available: []string{ToolMapboxDirectionsByPlaces},
			want: map[string]any{
				"places":            []string{"Eiffel Tower", "Louvre"},
				"mode":              "walking",
				"includeMapPreview": false,
			},
		},
		{
			name:      "geocoding search text",
			q:         query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true),
			available: []string{ToolMapboxGeocoding},
			want: map[string]any{
				"searchText":        "Eiffel Tower",
				"includeMapPreview": true,
			},
		},
		{
			name:      "search with proximity and radius",
			q:         query.MustNew(query.Search{Query: "pharmacy", Proximity: &proximity, RadiusKm: &radius, MaxResults: 3}, true),
			available: []string{ToolMapboxSearch},
			want: map[string]any{
				"searchText":        "pharmacy",
				"includeMapPreview": true,
				"maxResults":        3,
				"proximity":         map[string]any{"longitude": -0.12, "latitude": 51.5},
				"radius":            1.5,
				"bbox":              geo.BoundingBoxAround(proximity, 1500).LngLatSlice(),
			},
		},
		{
			name:      "nearby places in meters",
			q:         query.MustNew(query.Search{Query: "pharmacy", Proximity: &proximity, RadiusKm: &radius}, true),
			available: []string{ToolSearchNearbyPlaces},
			want: map[string]any{
				"location": "51.500000,-0.120000",
				"query":    "pharmacy",
				"radius":   1500,
				"limit":    5,
			},
		},
		{
			name:      "reverse geocoding",
			q:         query.MustNew(query.Reverse{Coordinates: geo.Coordinates{Latitude: 48.8584, Longitude: 2.2945}}, true),
			available: []string{ToolMapboxReverseGeocoding},
			want: map[string]any{
				"latitude":          48.8584,
				"longitude":         2.2945,
				"includeMapPreview": true,
			},
		},
		{
			name:      "reverse through forward geocoding uses lng,lat",
			q:         query.MustNew(query.Reverse{Coordinates: geo.Coordinates{Latitude: 48.8584, Longitude: 2.2945}}, true),
			available: []string{ToolMapboxGeocoding},
			want: map[string]any{
				"searchText":        "2.2945,48.8584",
				"includeMapPreview": true,
			},
		},
		{
			name:      "calculate distance",
			q:         query.MustNew(query.Distance{Origin: "Paris", Destination: "Lyon", Mode: query.ModeCycling}, true),
			available: []string{ToolCalculateDistance},
			want: map[string]any{
				"from":            "Paris",
				"to":              "Lyon",
				"profile":         "cycling",
				"includeRouteMap": true,
			},
		},
		{
			name:      "map link",
			q:         query.MustNew(query.MapView{Location: "Lisbon"}, true),
			available: []string{ToolGenerateMapLink},
			want: map[string]any{
				"location": "Lisbon",
				"zoom":     geo.DefaultZoom,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := s.Select(tt.q, tt.available)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Args)
		})
	}
}

func TestRegistryCoversSelectorCandidates(t *testing.T) {
	known := map[string]bool{}
	for _, name := range allToolNames() {
		known[name] = true
	}
	s := NewSelector()
	for _, typ := range query.Types {
		for _, name := range s.Candidates(typ) {
			assert.True(t, known[name], "%s candidate %s has no definition", typ, name)
		}
	}
}
