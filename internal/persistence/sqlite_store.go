package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MimeLyc/taskflow-agent/internal/auth"
	"github.com/MimeLyc/taskflow-agent/internal/todo"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps users and todos in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ todo.Store     = (*SQLiteStore)(nil)
	_ auth.UserStore = (*SQLiteStore)(nil)
)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed paths always use forward slashes
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

const todoColumns = `id, user_id, title, description, priority, completed, created_at, updated_at`

func (s *SQLiteStore) CreateTodo(ctx context.Context, t *todo.Todo) error {
	if t == nil {
		return fmt.Errorf("todo is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO todos (`+todoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.UserID,
		t.Title,
		t.Description,
		string(t.Priority),
		t.Completed,
		t.CreatedAt.UTC(),
		t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTodo(ctx context.Context, userID, id string) (*todo.Todo, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+todoColumns+` FROM todos WHERE id = ? AND user_id = ?`,
		id,
		userID,
	)
	item, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, todo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load todo: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) ListTodos(ctx context.Context, userID string, filter todo.Filter) ([]*todo.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE user_id = ?`
	args := []any{userID}
	if filter.Completed != nil {
		query += ` AND completed = ?`
		args = append(args, *filter.Completed)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	ret := make([]*todo.Todo, 0)
	for rows.Next() {
		item, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(item) {
			ret = append(ret, item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpdateTodo(ctx context.Context, t *todo.Todo) error {
	if t == nil {
		return fmt.Errorf("todo is nil")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE todos SET title = ?, description = ?, priority = ?, completed = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		t.Title,
		t.Description,
		string(t.Priority),
		t.Completed,
		t.UpdatedAt.UTC(),
		t.ID,
		t.UserID,
	)
	if err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	return requireAffected(res, todo.ErrNotFound)
}

func (s *SQLiteStore) DeleteTodo(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	return requireAffected(res, todo.ErrNotFound)
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *auth.User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		u.CreatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return auth.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, `email = ?`, email)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg string) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (*todo.Todo, error) {
	var item todo.Todo
	var priority string
	if err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Title,
		&item.Description,
		&priority,
		&item.Completed,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.Priority = todo.Priority(priority)
	return &item, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
