package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MimeLyc/taskflow-agent/internal/auth"
	"github.com/MimeLyc/taskflow-agent/internal/todo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "taskflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustTodo(t *testing.T, userID, title string, at time.Time) *todo.Todo {
	t.Helper()
	item, err := todo.New(userID, todo.Draft{Title: title}, at)
	require.NoError(t, err)
	return item
}

func TestSQLiteStore_TodoRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	item := mustTodo(t, "user-1", "Buy milk", now)
	item.Description = "2 litres"
	item.Priority = todo.PriorityHigh
	require.NoError(t, store.CreateTodo(ctx, item))

	got, err := store.GetTodo(ctx, "user-1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Title, got.Title)
	assert.Equal(t, "2 litres", got.Description)
	assert.Equal(t, todo.PriorityHigh, got.Priority)
	assert.False(t, got.Completed)
	assert.True(t, item.CreatedAt.Equal(got.CreatedAt))

	got.Completed = true
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.UpdateTodo(ctx, got))

	reloaded, err := store.GetTodo(ctx, "user-1", item.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Completed)

	require.NoError(t, store.DeleteTodo(ctx, "user-1", item.ID))
	_, err = store.GetTodo(ctx, "user-1", item.ID)
	assert.ErrorIs(t, err, todo.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTodo(ctx, "user-1", item.ID), todo.ErrNotFound)
}

func TestSQLiteStore_TodosAreOwnerScoped(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	item := mustTodo(t, "alice", "secret plan", time.Now())
	require.NoError(t, store.CreateTodo(ctx, item))

	_, err := store.GetTodo(ctx, "bob", item.ID)
	assert.ErrorIs(t, err, todo.ErrNotFound)

	hijack := *item
	hijack.UserID = "bob"
	hijack.Title = "mine now"
	assert.ErrorIs(t, store.UpdateTodo(ctx, &hijack), todo.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTodo(ctx, "bob", item.ID), todo.ErrNotFound)

	list, err := store.ListTodos(ctx, "bob", todo.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteStore_ListTodosFilterAndOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	first := mustTodo(t, "alice", "Water plants", base)
	second := mustTodo(t, "alice", "Book dentist", base.Add(time.Hour))
	third := mustTodo(t, "alice", "Pay rent", base.Add(2*time.Hour))
	third.Completed = true
	for _, item := range []*todo.Todo{first, second, third} {
		require.NoError(t, store.CreateTodo(ctx, item))
	}

	all, err := store.ListTodos(ctx, "alice", todo.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Pay rent", "Book dentist", "Water plants"},
		[]string{all[0].Title, all[1].Title, all[2].Title})

	pending := false
	open, err := store.ListTodos(ctx, "alice", todo.Filter{Completed: &pending})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	found, err := store.ListTodos(ctx, "alice", todo.Filter{Query: "DENTIST"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, second.ID, found[0].ID)
}

func TestSQLiteStore_Users(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	u := &auth.User{
		ID:           "user-1",
		Email:        "ada@example.com",
		Name:         "Ada",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.CreateUser(ctx, u))

	dup := *u
	dup.ID = "user-2"
	assert.ErrorIs(t, store.CreateUser(ctx, &dup), auth.ErrUserExists)

	byEmail, err := store.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", byID.Name)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "taskflow.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	item := mustTodo(t, "alice", "persist me", time.Now())
	require.NoError(t, store.CreateTodo(context.Background(), item))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetTodo(context.Background(), "alice", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "persist me", got.Title)
}

func TestMigrationVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12_more.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}
