package tools

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Remote tool names understood by the selector.
const (
	ToolMapboxGeocoding          = "mapbox_geocoding"
	ToolMapboxReverseGeocoding   = "mapbox_reverse_geocoding"
	ToolMapboxDirectionsByPlaces = "mapbox_directions_by_places"
	ToolMapboxDirections         = "mapbox_directions"
	ToolMapboxMatrixByPlaces     = "mapbox_matrix_by_places"
	ToolMapboxMatrix             = "mapbox_matrix"
	ToolMapboxCategorySearch     = "mapbox_category_search"
	ToolMapboxSearch             = "mapbox_search"
	ToolGeocodeLocation          = "geocode_location"
	ToolCalculateDistance        = "calculate_distance"
	ToolSearchNearbyPlaces       = "search_nearby_places"
	ToolGenerateMapLink          = "generate_map_link"
)

// DefaultCatalog is the tool set assumed for the hosted Mapbox MCP server
// when no catalog is configured.
func DefaultCatalog() []string {
	return []string{ToolMapboxGeocoding, ToolMapboxDirectionsByPlaces, ToolMapboxMatrixByPlaces}
}

// Registry describes the tools a remote mapping host exposes.
type Registry struct {
	logger *slog.Logger
}

// NewRegistry creates a new remote tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
	}
}

// ToolDefinition represents a remote mapping tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
}

// GetToolDefinitions returns the schema of every tool the selector knows.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	defs := []ToolDefinition{
		// Mapbox geocoding and search
		{
			Name:        ToolMapboxGeocoding,
			Description: "Forward and coordinate geocoding with the Mapbox Geocoding API",
		},
		{
			Name:        ToolMapboxCategorySearch,
			Description: "Search points of interest by category near a location",
		},
		{
			Name:        ToolMapboxSearch,
			Description: "Free-text place search with optional proximity bias",
		},
		{
			Name:        ToolMapboxReverseGeocoding,
			Description: "Convert coordinates to the nearest address or place",
		},

		// Mapbox routing
		{
			Name:        ToolMapboxDirectionsByPlaces,
			Description: "Turn-by-turn directions between named places",
		},
		{
			Name:        ToolMapboxDirections,
			Description: "Directions between places or coordinates",
		},
		{
			Name:        ToolMapboxMatrixByPlaces,
			Description: "Travel distance and duration between named places",
		},
		{
			Name:        ToolMapboxMatrix,
			Description: "Travel distance and duration matrix",
		},

		// Generic mapping host tools
		{
			Name:        ToolGeocodeLocation,
			Description: "Geocode a location with an optional map preview",
		},
		{
			Name:        ToolCalculateDistance,
			Description: "Calculate travel distance and time between two locations",
		},
		{
			Name:        ToolSearchNearbyPlaces,
			Description: "Search for places near a latitude,longitude point",
		},
		{
			Name:        ToolGenerateMapLink,
			Description: "Generate a shareable map link for a location",
		},
	}
	for i := range defs {
		defs[i].Tool = toolSchema(defs[i].Name, defs[i].Description)
	}
	return defs
}

// RegisterTools registers the named tools (all tools when names is empty)
// on mcpServer, using handlerFor to obtain each handler. Tools without a
// handler are skipped.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer, handlerFor func(name string) server.ToolHandlerFunc, names ...string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for _, def := range r.GetToolDefinitions() {
		if len(want) > 0 && !want[def.Name] {
			continue
		}
		h := handlerFor(def.Name)
		if h == nil {
			continue
		}
		r.logger.Debug("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, h)
	}
}

func toolSchema(name, description string) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	preview := mcp.WithBoolean("includeMapPreview",
		mcp.Description("Include a static map preview URL in the response"),
		mcp.DefaultBool(true),
	)

	switch name {
	case ToolMapboxGeocoding, ToolMapboxSearch, ToolMapboxCategorySearch:
		opts = append(opts,
			mcp.WithString("searchText", mcp.Required(), mcp.Description("Place name, address or category")),
			mcp.WithNumber("maxResults", mcp.Description("Maximum number of results"), mcp.DefaultNumber(5)),
			mcp.WithObject("proximity", mcp.Description("Bias results towards {longitude, latitude}")),
			mcp.WithNumber("radius", mcp.Description("Search radius in kilometers")),
			preview,
		)
	case ToolMapboxReverseGeocoding:
		opts = append(opts,
			mcp.WithNumber("latitude", mcp.Required(), mcp.Description("The latitude coordinate")),
			mcp.WithNumber("longitude", mcp.Required(), mcp.Description("The longitude coordinate")),
			preview,
		)
	case ToolMapboxDirectionsByPlaces, ToolMapboxDirections, ToolMapboxMatrixByPlaces, ToolMapboxMatrix:
		opts = append(opts,
			mcp.WithArray("places", mcp.Required(), mcp.Description("Origin and destination place names")),
			mcp.WithString("mode", mcp.Description("driving, walking, cycling or transit"), mcp.DefaultString("driving")),
			preview,
		)
	case ToolGeocodeLocation:
		opts = append(opts,
			mcp.WithString("query", mcp.Required(), mcp.Description("Location to geocode")),
			preview,
		)
	case ToolCalculateDistance:
		opts = append(opts,
			mcp.WithString("from", mcp.Required(), mcp.Description("Starting location")),
			mcp.WithString("to", mcp.Required(), mcp.Description("Destination location")),
			mcp.WithString("profile", mcp.Description("driving, walking or cycling"), mcp.DefaultString("driving")),
			mcp.WithBoolean("includeRouteMap", mcp.Description("Include a route map URL"), mcp.DefaultBool(true)),
		)
	case ToolSearchNearbyPlaces:
		opts = append(opts,
			mcp.WithString("location", mcp.Required(), mcp.Description("Center point as latitude,longitude")),
			mcp.WithString("query", mcp.Required(), mcp.Description("What to search for")),
			mcp.WithNumber("radius", mcp.Description("Search radius in meters"), mcp.DefaultNumber(1000)),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results"), mcp.DefaultNumber(5)),
		)
	case ToolGenerateMapLink:
		opts = append(opts,
			mcp.WithString("location", mcp.Required(), mcp.Description("Location to show")),
			mcp.WithNumber("zoom", mcp.Description("Map zoom level"), mcp.DefaultNumber(12)),
		)
	}
	return mcp.NewTool(name, opts...)
}
