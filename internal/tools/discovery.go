package tools

import (
	"context"
	"sort"
)

// DiscoveryToolName is reserved for the meta tool that lists the catalog.
const DiscoveryToolName = "discover_tools"

// DiscoveredParam is one parameter entry in a discovery result.
type DiscoveredParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// DiscoveredTool is one catalog entry in a discovery result.
type DiscoveredTool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  []DiscoveredParam `json:"parameters"`
}

// DiscoveryResult is what discover_tools returns to the planner.
type DiscoveryResult struct {
	AvailableTools []DiscoveredTool `json:"available_tools"`
	TotalCount     int              `json:"total_count"`
}

// NewDiscoveryTool builds the discover_tools meta tool over registry. The
// catalog is read at call time, so tools registered later show up.
func NewDiscoveryTool(registry *Registry) Tool {
	return &Func{
		ToolName:        DiscoveryToolName,
		ToolDescription: "Discover all available tools and their capabilities. Call this first to see what actions you can perform.",
		Params:          map[string]Param{},
		Fn: func(_ context.Context, _ string, _ map[string]any) (any, error) {
			return Discover(registry), nil
		},
	}
}

// Discover lists every tool in registry except discover_tools itself.
func Discover(registry *Registry) DiscoveryResult {
	descs := registry.Describe()
	available := make([]DiscoveredTool, 0, len(descs))
	for _, d := range descs {
		if d.Name == DiscoveryToolName {
			continue
		}
		params := make([]DiscoveredParam, 0, len(d.Parameters))
		for name, p := range d.Parameters {
			params = append(params, DiscoveredParam{
				Name:        name,
				Type:        p.Type,
				Required:    p.Required,
				Description: p.Description,
			})
		}
		sort.Slice(params, func(i, j int) bool {
			return params[i].Name < params[j].Name
		})
		available = append(available, DiscoveredTool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return DiscoveryResult{
		AvailableTools: available,
		TotalCount:     len(available),
	}
}
