// Package prompts provides prompt templates for use with the MCP server.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Prompt names.
const (
	PromptUsage    = "geospatial_query_usage"
	PromptExamples = "geospatial_query_examples"
)

// Register adds the geospatial query prompts to s.
func Register(s *server.MCPServer) {
	s.AddPrompt(mcp.NewPrompt(PromptUsage,
		mcp.WithPromptDescription("How to phrase questions for the geospatial_query tool"),
	), UsageHandler)

	s.AddPrompt(mcp.NewPrompt(PromptExamples,
		mcp.WithPromptDescription("Worked examples of geospatial_query calls for each query type"),
	), ExamplesHandler)
}

// UsageHandler returns the main usage prompt.
func UsageHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := `You have access to a geospatial_query tool that answers location questions through a mapping service.

Pass the user's question as "text". The tool classifies it as one of:
- geocode: a place name or address ("Eiffel Tower, Paris, France")
- reverse: a latitude,longitude pair ("48.8584, 2.2945")
- directions: "directions from X to Y", optionally "by bike", "walking" or "by transit"
- distance: "how far is X from Y" or "distance between X and Y"
- search: "find coffee near 40.7128,-74.0060"
- map: "show me a map of Lisbon"

If the classification would be wrong, set "queryType" explicitly.

ADDRESS FORMATTING:
GOOD: "Sydney Opera House, Sydney, Australia"
BAD: "The Opera House"

GOOD: "Blue Temple Chiang Rai Thailand"
BAD: "Blue Temple (Wat Rong Suea Ten)"

READING RESULTS:
The tool returns JSON. On success "location" holds latitude, longitude and placeName and
"mapTarget.center" is [longitude, latitude]. On failure "error" is a short sentence you can
show the user and "errorKind" says what went wrong. When several places match, the
top-ranked one is returned; ask the user to be more specific if it looks wrong.`

	return mcp.NewGetPromptResult(
		"Geospatial Query Usage",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(text)),
		},
	), nil
}

// ExamplesHandler returns worked examples.
func ExamplesHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := `EXAMPLES OF EFFECTIVE GEOSPATIAL_QUERY USAGE:

User: "Where is the Eiffel Tower?"
AI: *uses geospatial_query with text "Eiffel Tower, Paris, France"*

User: "What's at 37.7749, -122.4194?"
AI: *uses geospatial_query with text "37.7749,-122.4194"*

User: "How do I cycle from Amsterdam Centraal to the Rijksmuseum?"
AI: *uses geospatial_query with text "directions from Amsterdam Centraal to Rijksmuseum by bike"*

User: "Is Lyon far from Paris?"
AI: *uses geospatial_query with text "how far is Paris from Lyon"*

User: "Any pharmacies around here?" (user shared 51.5072,-0.1276)
AI: *uses geospatial_query with text "pharmacy near 51.5072,-0.1276"*

ERROR CORRECTION PATTERN:
1. errorKind "validation": rephrase, e.g. name both origin and destination
2. errorKind "no_tool": the mapping service cannot answer this kind of question
3. errorKind "normalization": retry with a more specific place name
4. errorKind "invocation_transient" or "connection": wait a few seconds and retry once`

	return mcp.NewGetPromptResult(
		"Geospatial Query Examples",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(text)),
		},
	), nil
}
