package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

var (
	ErrNotFound   = errors.New("todo not found")
	ErrValidation = errors.New("invalid todo")
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority accepts LOW, MEDIUM or HIGH in any case. Empty means MEDIUM.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("%w: priority must be LOW, MEDIUM or HIGH, got %q", ErrValidation, s)
	}
}

type Todo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Filter narrows a listing. Nil Completed matches both states; Query matches
// title or description case-insensitively.
type Filter struct {
	Completed *bool
	Query     string
}

func (f Filter) Matches(t *Todo) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if strings.TrimSpace(f.Query) == "" {
		return true
	}
	return ContainsFold(t.Title, f.Query) || ContainsFold(t.Description, f.Query)
}

// Store persists todos. Every operation is scoped to the owning user; a todo
// owned by someone else behaves as if it did not exist.
type Store interface {
	CreateTodo(ctx context.Context, t *Todo) error
	GetTodo(ctx context.Context, userID, id string) (*Todo, error)
	// ListTodos returns the user's todos newest first.
	ListTodos(ctx context.Context, userID string, filter Filter) ([]*Todo, error)
	UpdateTodo(ctx context.Context, t *Todo) error
	DeleteTodo(ctx context.Context, userID, id string) error
}

// Draft holds user input for a new todo.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// New validates d and builds a todo owned by userID.
func New(userID string, d Draft, now time.Time) (*Todo, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	title, description, priority, err := validate(d.Title, d.Description, d.Priority)
	if err != nil {
		return nil, err
	}
	return &Todo{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Apply validates p against t and mutates t in place.
func (p Patch) Apply(t *Todo, now time.Time) error {
	title, description, priority := t.Title, t.Description, string(t.Priority)
	if p.Title != nil {
		title = *p.Title
	}
	if p.Description != nil {
		description = *p.Description
	}
	if p.Priority != nil {
		priority = *p.Priority
	}

	vt, vd, vp, err := validate(title, description, priority)
	if err != nil {
		return err
	}
	t.Title, t.Description, t.Priority = vt, vd, vp
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	t.UpdatedAt = now
	return nil
}

func validate(title, description, priority string) (string, string, Priority, error) {
	title = NormalizeText(title)
	description = NormalizeText(description)

	if title == "" {
		return "", "", "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", "", "", fmt.Errorf("%w: title is too long", ErrValidation)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", "", "", fmt.Errorf("%w: description is too long", ErrValidation)
	}
	p, err := ParsePriority(priority)
	if err != nil {
		return "", "", "", err
	}
	return title, description, p, nil
}
