package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MimeLyc/taskflow-agent/internal/auth"
	"github.com/MimeLyc/taskflow-agent/internal/service"
	"github.com/MimeLyc/taskflow-agent/internal/todo"
	"github.com/MimeLyc/taskflow-agent/pkg/log"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresIn int        `json:"expiresIn"`
	User      *auth.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := s.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": u})
	case errors.Is(err, auth.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, "Email already registered")
	default:
		log.Error("register failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, u, err := s.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, loginResponse{
			Token:     token,
			ExpiresIn: int(s.auth.Expiry().Seconds()),
			User:      u,
		})
	case errors.Is(err, auth.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	default:
		log.Error("login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}

type createTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type updateTodoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Completed   *bool   `json:"completed"`
}

func (s *Server) handleTodos(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		filter := todo.Filter{Query: r.URL.Query().Get("q")}
		if raw := r.URL.Query().Get("completed"); raw != "" {
			completed, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "completed must be true or false")
				return
			}
			filter.Completed = &completed
		}
		items, err := s.todos.List(r.Context(), u.ID, filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"todos": items, "count": len(items)})
	case http.MethodPost:
		var req createTodoRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		item, err := s.todos.Create(r.Context(), u.ID, todo.Draft{
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTodo(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing todo id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		item, err := s.todos.Get(r.Context(), u.ID, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodPatch:
		var req updateTodoRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		item, err := s.todos.Update(r.Context(), u.ID, id, todo.Patch{
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
			Completed:   req.Completed,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		if err := s.todos.Delete(r.Context(), u.ID, id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTodoSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	u, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	summary, err := s.todos.Summary(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeServiceError renders a service error. Rate-limited responses carry
// retryAfter in the body and a Retry-After header.
func writeServiceError(w http.ResponseWriter, err error) {
	svcErr := service.AsError(err)
	status := svcErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error("request failed: %v", err)
	}

	body := map[string]any{"error": svcErr.Message}
	if retry, ok := service.RetryAfter(err); ok {
		body["retryAfter"] = retry
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	writeJSON(w, status, body)
}
