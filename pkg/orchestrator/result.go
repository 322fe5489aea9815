package orchestrator

import (
	"fmt"
	"time"

	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/geoerr"
	"github.com/NERVsystems/geoquery/pkg/normalize"
	"github.com/NERVsystems/geoquery/pkg/query"
	"github.com/cespare/xxhash/v2"
)

// ResultType tags every ToolResult for the chat layer.
const ResultType = "MAP_QUERY_TRIGGER"

// ToolResult is the outcome of one run. Exactly one of Location and Error
// is set.
type ToolResult struct {
	Type          string              `json:"type"`
	OriginalInput string              `json:"originalInput"`
	QueryType     query.Type          `json:"queryType"`
	Timestamp     string              `json:"timestamp"`
	QueryID       string              `json:"queryId"`
	Tool          string              `json:"tool,omitempty"`
	Location      *normalize.Location `json:"location,omitempty"`
	MapURL        string              `json:"mapUrl,omitempty"`
	MapTarget     *geo.MapTarget      `json:"mapTarget,omitempty"`
	Route         *normalize.Route    `json:"route,omitempty"`
	Error         string              `json:"error,omitempty"`
	ErrorKind     geoerr.Kind         `json:"errorKind,omitempty"`
}

// OK reports whether the run produced a location.
func (r ToolResult) OK() bool { return r.Error == "" && r.Location != nil }

// fingerprint is a stable id for an input: hex xxhash64.
func fingerprint(input string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(input))
}

func newResult(input string, t query.Type, now time.Time) ToolResult {
	return ToolResult{
		Type:          ResultType,
		OriginalInput: input,
		QueryType:     t,
		Timestamp:     now.UTC().Format(time.RFC3339),
		QueryID:       fingerprint(input),
	}
}

// failed sets the error fields and clears any partial success.
func (r ToolResult) failed(err error) ToolResult {
	r.Location = nil
	r.MapURL = ""
	r.MapTarget = nil
	r.Route = nil
	r.Error = geoerr.UserMessage(err)
	r.ErrorKind = geoerr.KindOf(err)
	if r.Error == "" {
		r.Error = geoerr.MsgInternal
	}
	return r
}
