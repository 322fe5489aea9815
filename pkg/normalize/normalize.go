// Package normalize turns raw remote tool replies into a canonical location.
//
// Mapping hosts answer in several shapes: bare JSON, prose followed by a
// fenced JSON block, ranked result lists under "results", "features" or
// "places", or a single "location" object. Normalize tries them in a fixed
// order and commits to the top-ranked candidate when a list is returned.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/query"
	"github.com/NERVsystems/geoquery/pkg/remote"
)

// Reason says why a reply could not be normalized.
type Reason string

const (
	ReasonEmpty              Reason = "empty"
	ReasonUnparseable        Reason = "unparseable"
	ReasonMissingLocation    Reason = "missing_location"
	ReasonIncompleteLocation Reason = "incomplete_location"
	ReasonInvalidCoordinates Reason = "invalid_coordinates"
)

// Error is a normalization failure. Raw holds the text that was examined;
// it is meant for logs and must not be shown to end users.
type Error struct {
	Reason Reason
	Raw    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Location is the canonical target of a query.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	PlaceName string   `json:"placeName,omitempty"`
	Address   string   `json:"address,omitempty"`
}

// Coordinates returns the position when both latitude and longitude are set.
func (l Location) Coordinates() (geo.Coordinates, bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return geo.Coordinates{}, false
	}
	return geo.Coordinates{Latitude: *l.Latitude, Longitude: *l.Longitude}, true
}

// Complete reports whether l identifies a place: coordinates or a name.
func (l Location) Complete() bool {
	_, ok := l.Coordinates()
	return ok || l.PlaceName != ""
}

// Route summarizes a directions or distance reply.
type Route struct {
	DistanceKm     *float64          `json:"distanceKm,omitempty"`
	DurationMin    *float64          `json:"durationMin,omitempty"`
	StraightLineKm *float64          `json:"straightLineKm,omitempty"`
	Geometry       []geo.Coordinates `json:"geometry,omitempty"`
}

// Result is a normalized reply.
type Result struct {
	Location Location
	MapURL   string
	Route    *Route
	// Candidates is the length of the ranked list the location was taken
	// from, or 1 for a single location object.
	Candidates int
}

var fencePattern = regexp.MustCompile("```(?:json)?\\n?([\\s\\S]*?)\\n?```")

// ExtractFenced returns the inner text of the first fenced code block in s.
func ExtractFenced(s string) (string, bool) {
	m := fencePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// selectText picks the first block containing a fenced code block, using
// its inner text, and otherwise the first non-empty block.
func selectText(blocks []string) (string, bool) {
	for _, b := range blocks {
		if inner, ok := ExtractFenced(b); ok {
			return inner, true
		}
	}
	for _, b := range blocks {
		if t := strings.TrimSpace(b); t != "" {
			return t, true
		}
	}
	return "", false
}

// Normalize maps a remote reply onto a canonical location. It is pure:
// the same reply always yields the same Result.
func Normalize(resp *remote.Response, t query.Type) (Result, error) {
	if resp == nil {
		return Result{}, &Error{Reason: ReasonEmpty}
	}
	return NormalizeText(resp.Texts(), t)
}

// NormalizeText is Normalize over the text blocks of a reply.
func NormalizeText(blocks []string, t query.Type) (Result, error) {
	text, ok := selectText(blocks)
	if !ok {
		return Result{}, &Error{Reason: ReasonEmpty}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return Result{}, &Error{Reason: ReasonUnparseable, Raw: text, Err: err}
	}

	res := Result{MapURL: firstString(doc, "mapUrl", "map_url", "mapPreviewUrl")}

	entry, candidates, nameKeys := locate(doc, t)
	if entry == nil {
		return Result{}, &Error{Reason: ReasonMissingLocation, Raw: text}
	}
	res.Candidates = candidates

	loc, err := mapEntry(entry, nameKeys)
	if err != nil {
		return Result{}, &Error{Reason: ReasonInvalidCoordinates, Raw: text, Err: err}
	}
	if !loc.Complete() {
		return Result{}, &Error{Reason: ReasonIncompleteLocation, Raw: text}
	}
	res.Location = loc

	if res.MapURL == "" {
		res.MapURL = firstString(entry, "mapUrl", "map_url", "mapPreviewUrl")
	}
	if t == query.TypeDirections || t == query.TypeDistance {
		res.Route = extractRoute(doc)
	}
	return res, nil
}

// Name precedence differs between ranked entries and location objects.
var (
	entryNameKeys    = []string{"name", "place_name", "placeName", "text", "display_name"}
	locationNameKeys = []string{"place_name", "placeName", "name", "display_name", "text"}
	addressKeys      = []string{"full_address", "address", "formatted_address"}
)

// locate finds the object describing the answer.
func locate(doc map[string]any, t query.Type) (map[string]any, int, []string) {
	for _, key := range []string{"results", "features", "places"} {
		if list, ok := doc[key].([]any); ok && len(list) > 0 {
			if first, ok := list[0].(map[string]any); ok {
				return first, len(list), entryNameKeys
			}
		}
	}
	if loc, ok := doc["location"].(map[string]any); ok {
		return loc, 1, locationNameKeys
	}
	// Route replies describe their endpoints; the destination is the answer.
	if t == query.TypeDirections || t == query.TypeDistance {
		for _, key := range []string{"to", "destination"} {
			if loc, ok := doc[key].(map[string]any); ok {
				return loc, 1, locationNameKeys
			}
		}
	}
	return nil, 0, nil
}

func mapEntry(m map[string]any, nameKeys []string) (Location, error) {
	var loc Location
	if c, ok := coordinatesOf(m); ok {
		if err := c.Validate(); err != nil {
			return Location{}, err
		}
		lat, lng := c.Latitude, c.Longitude
		loc.Latitude, loc.Longitude = &lat, &lng
	}
	loc.PlaceName = firstString(m, nameKeys...)
	loc.Address = firstString(m, addressKeys...)
	if loc.Address == "" {
		if addr, ok := m["address"].(map[string]any); ok {
			loc.Address = firstString(addr, "formatted", "full_address")
		}
	}
	return loc, nil
}
