package tools

import (
	"context"
	"fmt"
	"sort"
)

// Param describes one named parameter a tool accepts.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

// Tool defines a capability the agent can invoke by name
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description tells the planner what the tool does
	Description() string

	// Parameters describes the accepted parameters keyed by name
	Parameters() map[string]Param

	// Execute runs the tool on behalf of userID. The returned value is
	// serialized to JSON before it is shown to the planner.
	Execute(ctx context.Context, userID string, params map[string]any) (any, error)
}

// ExecuteFunc is the body of a Func tool.
type ExecuteFunc func(ctx context.Context, userID string, params map[string]any) (any, error)

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	Params          map[string]Param
	Fn              ExecuteFunc
}

func (f *Func) Name() string { return f.ToolName }

func (f *Func) Description() string { return f.ToolDescription }

func (f *Func) Parameters() map[string]Param {
	if f.Params == nil {
		return map[string]Param{}
	}
	return f.Params
}

func (f *Func) Execute(ctx context.Context, userID string, params map[string]any) (any, error) {
	if f.Fn == nil {
		return nil, fmt.Errorf("tool %q has no implementation", f.ToolName)
	}
	return f.Fn(ctx, userID, params)
}

// ValidateParams checks that every required parameter of tool is present.
func ValidateParams(tool Tool, params map[string]any) error {
	names := make([]string, 0)
	for name, p := range tool.Parameters() {
		if !p.Required {
			continue
		}
		if v, ok := params[name]; !ok || v == nil {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return fmt.Errorf("missing required parameter(s) for %s: %v", tool.Name(), names)
}
