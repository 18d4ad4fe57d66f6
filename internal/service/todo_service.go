package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/taskflow-agent/internal/todo"
)

// TodoService is the CRUD surface used by the HTTP API.
type TodoService struct {
	store   todo.Store
	now     func() time.Time
	summary singleflight.Group
}

func NewTodoService(store todo.Store) *TodoService {
	return &TodoService{store: store, now: time.Now}
}

func (s *TodoService) List(ctx context.Context, userID string, filter todo.Filter) ([]*todo.Todo, error) {
	items, err := s.store.ListTodos(ctx, userID, filter)
	if err != nil {
		return nil, mapTodoError(err)
	}
	return items, nil
}

func (s *TodoService) Get(ctx context.Context, userID, id string) (*todo.Todo, error) {
	item, err := s.store.GetTodo(ctx, userID, id)
	if err != nil {
		return nil, mapTodoError(err)
	}
	return item, nil
}

func (s *TodoService) Create(ctx context.Context, userID string, draft todo.Draft) (*todo.Todo, error) {
	item, err := todo.New(userID, draft, s.now())
	if err != nil {
		return nil, mapTodoError(err)
	}
	if err := s.store.CreateTodo(ctx, item); err != nil {
		return nil, mapTodoError(err)
	}
	return item, nil
}

func (s *TodoService) Update(ctx context.Context, userID, id string, patch todo.Patch) (*todo.Todo, error) {
	item, err := s.store.GetTodo(ctx, userID, id)
	if err != nil {
		return nil, mapTodoError(err)
	}
	if err := patch.Apply(item, s.now()); err != nil {
		return nil, mapTodoError(err)
	}
	if err := s.store.UpdateTodo(ctx, item); err != nil {
		return nil, mapTodoError(err)
	}
	return item, nil
}

func (s *TodoService) Delete(ctx context.Context, userID, id string) error {
	return mapTodoError(s.store.DeleteTodo(ctx, userID, id))
}

// Summary aggregates the user's todos. Concurrent calls for the same user
// share one store read.
func (s *TodoService) Summary(ctx context.Context, userID string) (todo.Summary, error) {
	v, err, _ := s.summary.Do(userID, func() (any, error) {
		items, err := s.store.ListTodos(ctx, userID, todo.Filter{})
		if err != nil {
			return nil, err
		}
		return todo.Summarize(items), nil
	})
	if err != nil {
		return todo.Summary{}, mapTodoError(err)
	}
	return v.(todo.Summary), nil
}

func mapTodoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, todo.ErrNotFound):
		return NewErrorWithCause(ErrNotFound, "Todo not found", err)
	case errors.Is(err, todo.ErrValidation):
		return NewErrorWithCause(ErrValidation, err.Error(), err)
	default:
		return WrapError(err, ErrUnknown, "todo store failed")
	}
}
