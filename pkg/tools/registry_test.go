package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolDefinitionsRequiredArguments(t *testing.T) {
	tests := []struct {
		tool     string
		required []string
	}{
		{ToolMapboxGeocoding, []string{"searchText"}},
		{ToolMapboxReverseGeocoding, []string{"latitude", "longitude"}},
		{ToolMapboxDirectionsByPlaces, []string{"places"}},
		{ToolMapboxMatrixByPlaces, []string{"places"}},
		{ToolCalculateDistance, []string{"from", "to"}},
		{ToolSearchNearbyPlaces, []string{"location", "query"}},
		{ToolGenerateMapLink, []string{"location"}},
	}

	defs := map[string]ToolDefinition{}
	for _, def := range NewRegistry(nil).GetToolDefinitions() {
		defs[def.Name] = def
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			def, ok := defs[tt.tool]
			require.True(t, ok)
			assert.Equal(t, tt.tool, def.Tool.Name)
			assert.NotEmpty(t, def.Tool.Description)
			assert.ElementsMatch(t, tt.required, def.Tool.InputSchema.Required)
		})
	}
}

func TestDefaultCatalogIsDescribed(t *testing.T) {
	known := map[string]bool{}
	for _, name := range allToolNames() {
		known[name] = true
	}
	for _, name := range DefaultCatalog() {
		assert.True(t, known[name], name)
	}
}

func TestRegisterTools(t *testing.T) {
	noop := func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}

	tests := []struct {
		name      string
		names     []string
		skip      string
		wantAsked int
	}{
		{name: "subset", names: []string{ToolMapboxGeocoding, ToolCalculateDistance}, wantAsked: 2},
		{name: "all", wantAsked: len(allToolNames())},
		{name: "missing handler is skipped", names: []string{ToolMapboxGeocoding, ToolMapboxSearch}, skip: ToolMapboxSearch, wantAsked: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var asked []string
			s := server.NewMCPServer("test", "1.0.0")
			NewRegistry(nil).RegisterTools(s, func(name string) server.ToolHandlerFunc {
				asked = append(asked, name)
				if name == tt.skip {
					return nil
				}
				return noop
			}, tt.names...)

			assert.Len(t, asked, tt.wantAsked)
			if len(tt.names) > 0 {
				assert.ElementsMatch(t, tt.names, asked)
			}
		})
	}
}
