package geo

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// StaticMapBaseURL is the Mapbox Static Images endpoint for the streets style.
	StaticMapBaseURL = "https://api.mapbox.com/styles/v1/mapbox/streets-v12/static"

	// DefaultZoom is the zoom level used for single-location previews.
	DefaultZoom = 12
)

// MapTarget is the payload handed to the map renderer to re-center the view.
// Center is in [longitude, latitude] order.
type MapTarget struct {
	Center    [2]float64 `json:"center"`
	PlaceName string     `json:"placeName,omitempty"`
	Zoom      int        `json:"zoom"`
}

// NewMapTarget builds a renderer payload for c.
func NewMapTarget(c Coordinates, placeName string) *MapTarget {
	return &MapTarget{Center: c.LngLat(), PlaceName: placeName, Zoom: DefaultZoom}
}

// StaticMapURL returns a 800x600@2x static map preview with a red pin at c.
// An empty token yields an empty string since the URL would not resolve.
func StaticMapURL(c Coordinates, zoom int, token string) string {
	if token == "" {
		return ""
	}
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	lng := strconv.FormatFloat(c.Longitude, 'f', -1, 64)
	lat := strconv.FormatFloat(c.Latitude, 'f', -1, 64)
	return fmt.Sprintf("%s/pin-s+ff0000(%s,%s)/%s,%s,%d/800x600@2x?access_token=%s",
		StaticMapBaseURL, lng, lat, lng, lat, zoom, url.QueryEscape(token))
}

// StaticRouteURL returns a 800x600@2x static map with points drawn as a red
// path, the viewport fitted to it. Fewer than two points or an empty token
// yield an empty string.
func StaticRouteURL(points []Coordinates, token string) string {
	if token == "" || len(points) < 2 {
		return ""
	}
	return fmt.Sprintf("%s/path-5+f44(%s)/auto/800x600@2x?access_token=%s",
		StaticMapBaseURL, url.PathEscape(EncodePolyline(points)), url.QueryEscape(token))
}
