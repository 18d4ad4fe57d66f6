package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/taskflow-agent/internal/auth"
	"github.com/MimeLyc/taskflow-agent/internal/service"
)

const maxBodyBytes = 1 << 20

type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	auth   *auth.Service
	todos  *service.TodoService
	agents *service.AgentService
	db     pinger

	uiEnabled   bool
	uiStaticDir string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithUI serves a single-page app from staticDir for non-API paths.
func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

// WithHealthCheck makes /healthz report the database state.
func WithHealthCheck(db pinger) Option {
	return func(s *Server) {
		s.db = db
	}
}

func NewServer(authSvc *auth.Service, todos *service.TodoService, agents *service.AgentService, opts ...Option) *Server {
	s := &Server{
		auth:      authSvc,
		todos:     todos,
		agents:    agents,
		uiEnabled: false,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	protected := func(h http.HandlerFunc) http.Handler {
		return s.auth.Middleware(h)
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/todos", protected(s.handleTodos))
	s.mux.Handle("/api/todos/summary", protected(s.handleTodoSummary))
	s.mux.Handle("/api/todos/{id}", protected(s.handleTodo))
	s.mux.HandleFunc("/api/agent/tools", s.handleAgentTools)
	s.mux.Handle("/api/agent", protected(s.handleAgent))
	s.mux.Handle("/api/agent/stream", protected(s.handleAgentStream))
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" || strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
