package query

import (
	"strings"

	"github.com/NERVsystems/geoquery/pkg/geo"
)

// classifierRules are checked in order; the first rule with a matching
// keyword wins.
var classifierRules = []struct {
	typ      Type
	keywords []string
}{
	{TypeDirections, []string{"direction", "route", "how to get"}},
	{TypeDistance, []string{"distance", "how far"}},
	{TypeSearch, []string{"find", "search", "near", "around"}},
	{TypeMap, []string{"map", "show me", "view of"}},
}

// Classify infers the intent of free text with ordered, case-insensitive
// keyword heuristics. Text with no keyword that contains a
// "<number>,<number>" pair anywhere is a reverse lookup; anything else
// unmatched is a geocode.
func Classify(text string) Type {
	lower := strings.ToLower(text)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.typ
			}
		}
	}
	if geo.ContainsPair(text) {
		return TypeReverse
	}
	return TypeGeocode
}
