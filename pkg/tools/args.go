package tools

import (
	"math"
	"strconv"

	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/query"
)

// defaultNearbyRadius is used by search_nearby_places when the query has a
// proximity point but no radius.
const defaultNearbyRadius = 1000 // meters

// placesArgs serves the directions and matrix families.
func placesArgs(q query.GeospatialQuery) map[string]any {
	ends, mode := endpointsOf(q.Params())
	return map[string]any{
		"places":            []string{ends[0], ends[1]},
		"mode":              string(mode),
		"includeMapPreview": q.IncludeMap(),
	}
}

// searchTextArgs serves the Mapbox geocoding and search family.
func searchTextArgs(q query.GeospatialQuery) map[string]any {
	args := map[string]any{
		"searchText":        searchText(q.Params(), true),
		"includeMapPreview": q.IncludeMap(),
	}
	if s, ok := q.Params().(query.Search); ok {
		args["maxResults"] = s.MaxResults
		if s.Proximity != nil {
			args["proximity"] = map[string]any{
				"longitude": s.Proximity.Longitude,
				"latitude":  s.Proximity.Latitude,
			}
		}
		if s.RadiusKm != nil {
			args["radius"] = *s.RadiusKm
		}
		if s.Proximity != nil && s.RadiusKm != nil {
			args["bbox"] = geo.BoundingBoxAround(*s.Proximity, *s.RadiusKm*1000).LngLatSlice()
		}
	}
	return args
}

func reverseArgs(q query.GeospatialQuery) map[string]any {
	r := q.Params().(query.Reverse)
	return map[string]any{
		"latitude":          r.Coordinates.Latitude,
		"longitude":         r.Coordinates.Longitude,
		"includeMapPreview": q.IncludeMap(),
	}
}

func geocodeLocationArgs(q query.GeospatialQuery) map[string]any {
	return map[string]any{
		"query":             searchText(q.Params(), false),
		"includeMapPreview": q.IncludeMap(),
	}
}

func calculateDistanceArgs(q query.GeospatialQuery) map[string]any {
	ends, mode := endpointsOf(q.Params())
	return map[string]any{
		"from":            ends[0],
		"to":              ends[1],
		"profile":         string(mode),
		"includeRouteMap": q.IncludeMap(),
	}
}

func nearbyArgs(q query.GeospatialQuery) map[string]any {
	s := q.Params().(query.Search)
	radius := defaultNearbyRadius
	if s.RadiusKm != nil {
		radius = int(math.Round(*s.RadiusKm * 1000))
	}
	return map[string]any{
		"location": s.Proximity.String(),
		"query":    s.Query,
		"radius":   radius,
		"limit":    s.MaxResults,
	}
}

func mapLinkArgs(q query.GeospatialQuery) map[string]any {
	return map[string]any{
		"location": searchText(q.Params(), false),
		"zoom":     geo.DefaultZoom,
	}
}

// endpointsOf returns origin, destination and mode of a route-shaped query.
func endpointsOf(p query.Params) ([2]string, query.Mode) {
	switch v := p.(type) {
	case query.Directions:
		return [2]string{v.Origin, v.Destination}, v.Mode
	case query.Distance:
		return [2]string{v.Origin, v.Destination}, v.Mode
	}
	return [2]string{}, ""
}

// searchText flattens a query into a single place string. Coordinates are
// written "lng,lat" for Mapbox tools, which read coordinate text that way,
// and "lat,lng" otherwise.
func searchText(p query.Params, mapbox bool) string {
	switch v := p.(type) {
	case query.Geocode:
		return v.Location
	case query.MapView:
		return v.Location
	case query.Search:
		return v.Query
	case query.Reverse:
		if mapbox {
			return strconv.FormatFloat(v.Coordinates.Longitude, 'f', -1, 64) + "," +
				strconv.FormatFloat(v.Coordinates.Latitude, 'f', -1, 64)
		}
		return v.Coordinates.String()
	case query.Directions:
		return v.Origin + " to " + v.Destination
	case query.Distance:
		return v.Origin + " to " + v.Destination
	}
	return ""
}
