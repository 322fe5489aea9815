package normalize

import (
	"math"

	"github.com/NERVsystems/geoquery/pkg/geo"
)

// extractRoute reads the route summary of a directions or distance reply.
// Top-level distance and duration are kilometers and minutes; entries of
// a "routes" array carry meters and seconds. It returns nil when the
// reply has no route data.
func extractRoute(doc map[string]any) *Route {
	var r Route
	found := false

	if d, ok := number(doc["distance"]); ok {
		r.DistanceKm = ptr(d)
		found = true
	}
	if d, ok := number(doc["duration"]); ok {
		r.DurationMin = ptr(d)
		found = true
	}
	geometry := doc["route_geometry"]

	if routes, ok := doc["routes"].([]any); ok && len(routes) > 0 {
		if first, ok := routes[0].(map[string]any); ok {
			if r.DistanceKm == nil {
				if d, ok := number(first["distance"]); ok {
					r.DistanceKm = ptr(round2(d / 1000))
					found = true
				}
			}
			if r.DurationMin == nil {
				if d, ok := number(first["duration"]); ok {
					r.DurationMin = ptr(math.Round(d / 60))
					found = true
				}
			}
			if geometry == nil {
				geometry = first["geometry"]
			}
		}
	}

	if pts := decodeGeometry(geometry); len(pts) > 0 {
		r.Geometry = pts
		found = true
	}

	from, okFrom := endpoint(doc, "from", "origin")
	to, okTo := endpoint(doc, "to", "destination")
	if okFrom && okTo {
		r.StraightLineKm = ptr(round2(geo.HaversineDistance(from.Latitude, from.Longitude, to.Latitude, to.Longitude) / 1000))
		found = true
	}

	if !found {
		return nil
	}
	return &r
}

// decodeGeometry accepts an encoded polyline or a GeoJSON LineString.
func decodeGeometry(v any) []geo.Coordinates {
	switch g := v.(type) {
	case string:
		if g == "" {
			return nil
		}
		return geo.DecodePolyline(g)
	case map[string]any:
		coords, ok := g["coordinates"].([]any)
		if !ok {
			return nil
		}
		pts := make([]geo.Coordinates, 0, len(coords))
		for _, c := range coords {
			if p, ok := lngLat(c); ok {
				pts = append(pts, p)
			}
		}
		return pts
	}
	return nil
}

func endpoint(doc map[string]any, keys ...string) (geo.Coordinates, bool) {
	for _, k := range keys {
		if m, ok := doc[k].(map[string]any); ok {
			if c, ok := coordinatesOf(m); ok && c.Validate() == nil {
				return c, true
			}
		}
	}
	return geo.Coordinates{}, false
}

func ptr(f float64) *float64 { return &f }

func round2(f float64) float64 { return math.Round(f*100) / 100 }
