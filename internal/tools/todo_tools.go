package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/taskflow-agent/internal/todo"
)

// RegisterTodoTools registers discover_tools plus the todo management tools
// backed by store.
func RegisterTodoTools(registry *Registry, store todo.Store) {
	registry.Register(NewDiscoveryTool(registry))
	for _, tool := range TodoTools(store) {
		registry.Register(tool)
	}
}

// TodoTools builds the todo management tools over store.
func TodoTools(store todo.Store) []Tool {
	t := todoTools{store: store, now: time.Now}
	return []Tool{
		t.list(),
		t.create(),
		t.complete(),
		t.delete(),
		t.summarize(),
	}
}

type todoTools struct {
	store todo.Store
	now   func() time.Time
}

type todoView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Completed bool          `json:"completed"`
	Priority  todo.Priority `json:"priority"`
}

func (t todoTools) list() Tool {
	return validated(&Func{
		ToolName:        "list_todos",
		ToolDescription: "List all todos for the user. Can filter by completion status (completed=true/false) and by a text query.",
		Params: map[string]Param{
			"completed": {
				Type:        "boolean",
				Description: "Filter by completion status. Omit for all todos.",
			},
			"query": {
				Type:        "string",
				Description: "Only return todos whose title or description contains this text.",
			},
		},
		Fn: func(ctx context.Context, userID string, params map[string]any) (any, error) {
			filter := todo.Filter{Query: stringParam(params, "query")}
			if v, ok := params["completed"]; ok && v != nil {
				completed, err := boolValue(v)
				if err != nil {
					return nil, fmt.Errorf("completed: %w", err)
				}
				filter.Completed = &completed
			}

			items, err := t.store.ListTodos(ctx, userID, filter)
			if err != nil {
				return nil, err
			}
			views := make([]todoView, 0, len(items))
			for _, item := range items {
				views = append(views, todoView{
					ID:        item.ID,
					Title:     item.Title,
					Completed: item.Completed,
					Priority:  item.Priority,
				})
			}
			return map[string]any{"todos": views, "count": len(views)}, nil
		},
	})
}

func (t todoTools) create() Tool {
	return validated(&Func{
		ToolName:        "create_todo",
		ToolDescription: "Create a new todo item for the user.",
		Params: map[string]Param{
			"title": {
				Type:        "string",
				Description: "The title of the todo",
				Required:    true,
			},
			"description": {
				Type:        "string",
				Description: "Optional description",
			},
			"priority": {
				Type:        "string",
				Description: "Priority level: LOW, MEDIUM, or HIGH. Defaults to MEDIUM.",
			},
		},
		Fn: func(ctx context.Context, userID string, params map[string]any) (any, error) {
			item, err := todo.New(userID, todo.Draft{
				Title:       stringParam(params, "title"),
				Description: stringParam(params, "description"),
				Priority:    stringParam(params, "priority"),
			}, t.now())
			if err != nil {
				return nil, err
			}
			if err := t.store.CreateTodo(ctx, item); err != nil {
				return nil, err
			}
			return map[string]any{
				"success": true,
				"todo": map[string]any{
					"id":       item.ID,
					"title":    item.Title,
					"priority": item.Priority,
				},
			}, nil
		},
	})
}

func (t todoTools) complete() Tool {
	return validated(&Func{
		ToolName:        "complete_todo",
		ToolDescription: "Mark a todo as completed.",
		Params: map[string]Param{
			"todoId": {
				Type:        "string",
				Description: "The ID of the todo to complete",
				Required:    true,
			},
		},
		Fn: func(ctx context.Context, userID string, params map[string]any) (any, error) {
			item, err := t.store.GetTodo(ctx, userID, stringParam(params, "todoId"))
			if errors.Is(err, todo.ErrNotFound) {
				return notFoundResult(), nil
			}
			if err != nil {
				return nil, err
			}

			done := true
			if err := (todo.Patch{Completed: &done}).Apply(item, t.now()); err != nil {
				return nil, err
			}
			if err := t.store.UpdateTodo(ctx, item); err != nil {
				return nil, err
			}
			return map[string]any{
				"success": true,
				"todo": map[string]any{
					"id":        item.ID,
					"title":     item.Title,
					"completed": true,
				},
			}, nil
		},
	})
}

func (t todoTools) delete() Tool {
	return validated(&Func{
		ToolName:        "delete_todo",
		ToolDescription: "Delete a todo item permanently.",
		Params: map[string]Param{
			"todoId": {
				Type:        "string",
				Description: "The ID of the todo to delete",
				Required:    true,
			},
		},
		Fn: func(ctx context.Context, userID string, params map[string]any) (any, error) {
			id := stringParam(params, "todoId")
			item, err := t.store.GetTodo(ctx, userID, id)
			if errors.Is(err, todo.ErrNotFound) {
				return notFoundResult(), nil
			}
			if err != nil {
				return nil, err
			}
			if err := t.store.DeleteTodo(ctx, userID, id); err != nil {
				if errors.Is(err, todo.ErrNotFound) {
					return notFoundResult(), nil
				}
				return nil, err
			}
			return map[string]any{
				"success": true,
				"message": fmt.Sprintf("Deleted: %q", item.Title),
			}, nil
		},
	})
}

func (t todoTools) summarize() Tool {
	return &Func{
		ToolName:        "summarize_todos",
		ToolDescription: "Get a comprehensive summary of all todos with statistics.",
		Params:          map[string]Param{},
		Fn: func(ctx context.Context, userID string, _ map[string]any) (any, error) {
			items, err := t.store.ListTodos(ctx, userID, todo.Filter{})
			if err != nil {
				return nil, err
			}
			return todo.Summarize(items), nil
		},
	}
}

// validated wraps f so required parameters are checked before it runs.
func validated(f *Func) Tool {
	inner := f.Fn
	f.Fn = func(ctx context.Context, userID string, params map[string]any) (any, error) {
		if err := ValidateParams(f, params); err != nil {
			return nil, err
		}
		return inner(ctx, userID, params)
	}
	return f
}

func notFoundResult() map[string]any {
	return map[string]any{"success": false, "error": "Todo not found"}
}

func stringParam(params map[string]any, name string) string {
	v, ok := params[name]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// boolValue accepts JSON booleans and the string forms planners sometimes emit.
func boolValue(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("expected boolean, got %q", b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}
