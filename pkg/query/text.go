package query

import (
	"regexp"
	"strings"

	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/geoerr"
)

var (
	// Leading trigger phrase of a route or distance question.
	routeTrigger = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:(?:get|give me|show(?: me)?|find|what(?:'s| is))\s+)?(?:the\s+)?(?:driving\s+|walking\s+)?(?:directions?|route|how to get|distance|how far(?:\s+is(?:\s+it)?)?)\b\s*(?:(?:for|of|is)\b\s*)?`)

	fromTo    = regexp.MustCompile(`(?i)^(?:.*?\s)?from\s+(.+?)\s+to\s+(.+)$`)
	toFrom    = regexp.MustCompile(`(?i)^(?:.*?\s)?to\s+(.+?)\s+from\s+(.+)$`)
	between   = regexp.MustCompile(`(?i)^(?:.*?\s)?between\s+(.+?)\s+and\s+(.+)$`)
	plainTo   = regexp.MustCompile(`(?i)^(.+?)\s+to\s+(.+)$`)
	xFromY    = regexp.MustCompile(`(?i)^(.+?)\s+from\s+(.+)$`)
	modeTail  = regexp.MustCompile(`(?i)\s+(?:by|on|via|using)\s+(?:car|foot|bike|bicycle|transit|bus|train|subway|public transport)$|\s+(?:walking|driving|cycling)$`)
	pairStrip = regexp.MustCompile(`\s*(?:\b(?:near|around|at)\b)?\s*[-+]?\d+(?:\.\d+)?\s*,\s*[-+]?\d+(?:\.\d+)?\s*$`)
)

var modeKeywords = []struct {
	mode     Mode
	keywords []string
}{
	{ModeWalking, []string{"walk", "on foot"}},
	{ModeCycling, []string{"cycl", "bike", "bicycle"}},
	{ModeTransit, []string{"transit", "bus", "train", "subway", "public transport"}},
}

// FromText builds a query from free text. The intent is explicit when
// given, otherwise classified. Directions and distance text must name both
// endpoints ("from X to Y", "between X and Y", "X to Y" or "X from Y").
func FromText(text string, explicit Type) (GeospatialQuery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return GeospatialQuery{}, geoerr.Validation("query text is empty")
	}
	t := explicit
	if t == "" {
		t = Classify(text)
	}
	if !t.Valid() {
		return GeospatialQuery{}, geoerr.Validation("unknown query type " + string(t))
	}

	var params Params
	switch t {
	case TypeGeocode:
		params = Geocode{Location: trimPunct(text)}
	case TypeMap:
		params = MapView{Location: trimPunct(text)}
	case TypeReverse:
		c, ok := geo.FindPair(text)
		if !ok {
			return GeospatialQuery{}, geoerr.Validation("no latitude,longitude pair found in query")
		}
		params = Reverse{Coordinates: c}
	case TypeDirections, TypeDistance:
		origin, destination, ok := splitEndpoints(text)
		if !ok {
			return GeospatialQuery{}, geoerr.Validation("could not find an origin and a destination in query")
		}
		mode := detectMode(text)
		if t == TypeDirections {
			params = Directions{Origin: origin, Destination: destination, Mode: mode}
		} else {
			params = Distance{Origin: origin, Destination: destination, Mode: mode}
		}
	case TypeSearch:
		s := Search{Query: trimPunct(text)}
		if c, ok := geo.FindPair(text); ok && pairStrip.MatchString(trimPunct(text)) {
			s.Proximity = &c
			s.Query = strings.TrimSpace(pairStrip.ReplaceAllString(trimPunct(text), ""))
		}
		params = s
	}
	return New(params, true)
}

func splitEndpoints(text string) (string, string, bool) {
	body := trimPunct(routeTrigger.ReplaceAllString(text, ""))
	body = modeTail.ReplaceAllString(body, "")

	if m := fromTo.FindStringSubmatch(body); m != nil {
		return endpoints(m[1], m[2])
	}
	if m := toFrom.FindStringSubmatch(body); m != nil {
		return endpoints(m[2], m[1])
	}
	if m := between.FindStringSubmatch(body); m != nil {
		return endpoints(m[1], m[2])
	}
	if m := plainTo.FindStringSubmatch(body); m != nil {
		return endpoints(m[1], m[2])
	}
	// "how far is X from Y" measures from Y.
	if m := xFromY.FindStringSubmatch(body); m != nil {
		return endpoints(m[2], m[1])
	}
	return "", "", false
}

func endpoints(origin, destination string) (string, string, bool) {
	origin = trimPunct(origin)
	destination = trimPunct(modeTail.ReplaceAllString(destination, ""))
	if origin == "" || destination == "" {
		return "", "", false
	}
	return origin, destination, true
}

func detectMode(text string) Mode {
	lower := strings.ToLower(text)
	for _, mk := range modeKeywords {
		for _, kw := range mk.keywords {
			if strings.Contains(lower, kw) {
				return mk.mode
			}
		}
	}
	return DefaultMode
}

func trimPunct(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), "?.!"))
}
