package normalize

import (
	"math"
	"strings"

	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/spf13/cast"
)

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// number coerces JSON numbers and numeric strings. NaN and infinities
// are not numbers here.
func number(v any) (float64, bool) {
	switch v.(type) {
	case nil, bool, map[string]any, []any:
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := number(m[k]); ok {
			return f, true
		}
	}
	return 0, false
}

// lngLat reads a [longitude, latitude] array.
func lngLat(v any) (geo.Coordinates, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < 2 {
		return geo.Coordinates{}, false
	}
	lng, ok1 := number(arr[0])
	lat, ok2 := number(arr[1])
	if !ok1 || !ok2 {
		return geo.Coordinates{}, false
	}
	return geo.Coordinates{Latitude: lat, Longitude: lng}, true
}

func latLngFields(m map[string]any) (geo.Coordinates, bool) {
	lat, ok1 := firstNumber(m, "latitude", "lat")
	lng, ok2 := firstNumber(m, "longitude", "lng", "lon")
	if !ok1 || !ok2 {
		return geo.Coordinates{}, false
	}
	return geo.Coordinates{Latitude: lat, Longitude: lng}, true
}

// coordinatesOf tries, in order: a coordinates object, array or "lat,lng"
// string, flat latitude/longitude fields, a center array and a GeoJSON
// point geometry.
func coordinatesOf(m map[string]any) (geo.Coordinates, bool) {
	switch c := m["coordinates"].(type) {
	case map[string]any:
		if got, ok := latLngFields(c); ok {
			return got, true
		}
	case []any:
		if got, ok := lngLat(c); ok {
			return got, true
		}
	case string:
		if got, err := geo.ParseCoordinates(c); err == nil {
			return got, true
		}
	}
	if got, ok := latLngFields(m); ok {
		return got, true
	}
	if got, ok := lngLat(m["center"]); ok {
		return got, true
	}
	if g, ok := m["geometry"].(map[string]any); ok {
		if got, ok := lngLat(g["coordinates"]); ok {
			return got, true
		}
	}
	return geo.Coordinates{}, false
}
