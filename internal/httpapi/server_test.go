package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/taskflow-agent/internal/agent"
	"github.com/MimeLyc/taskflow-agent/internal/auth"
	"github.com/MimeLyc/taskflow-agent/internal/governor"
	"github.com/MimeLyc/taskflow-agent/internal/llm"
	"github.com/MimeLyc/taskflow-agent/internal/persistence"
	"github.com/MimeLyc/taskflow-agent/internal/service"
	"github.com/MimeLyc/taskflow-agent/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// scriptedCompleter answers planner calls from a fixed list, repeating the
// last reply when the list runs out.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (c *scriptedCompleter) Complete(_ context.Context, _ []llm.Message, opts *llm.ChatCompletionOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	if opts.ResponseFormat == nil {
		return "summary", nil
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return reply, nil
}

type testEnv struct {
	server    *Server
	store     *persistence.SQLiteStore
	completer *scriptedCompleter
}

func newTestEnv(t *testing.T, govCfg governor.Config) *testEnv {
	t.Helper()

	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	authSvc, err := auth.NewService(store, "test-secret", auth.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	gov, err := governor.New(govCfg)
	require.NoError(t, err)

	registry := tools.NewRegistry()
	tools.RegisterTodoTools(registry, store)

	completer := &scriptedCompleter{replies: []string{`{"tool":null,"response":"done"}`}}
	agentSvc := service.NewAgentService(agent.New(completer, registry), gov, registry, 2)

	srv := NewServer(authSvc, service.NewTodoService(store), agentSvc, WithHealthCheck(store))
	return &testEnv{server: srv, store: store, completer: completer}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Test User", "email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, env.store.Close())
	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RegisterAndLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	env.login(t, "ada@example.com")

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "bad", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-one",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
}

func TestServer_TodosRequireAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	for _, path := range []string{"/api/todos", "/api/todos/summary", "/api/todos/abc"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := env.do(t, http.MethodPost, "/api/agent", "", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_TodoCRUD(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	token := env.login(t, "ada@example.com")

	rec := env.do(t, http.MethodPost, "/api/todos", token, map[string]string{"title": "Buy milk", "priority": "HIGH"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	id := created["id"].(string)
	assert.Equal(t, "HIGH", created["priority"])

	rec = env.do(t, http.MethodPost, "/api/todos", token, map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/todos/"+id, token, map[string]any{"completed": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rec)["completed"])

	rec = env.do(t, http.MethodGet, "/api/todos?completed=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/todos/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["completed"])

	other := env.login(t, "bob@example.com")
	rec = env.do(t, http.MethodGet, "/api/todos/"+id, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/todos/"+id, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/todos/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AgentTools(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	rec := env.do(t, http.MethodGet, "/api/agent/tools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[struct {
		Tools []tools.Description `json:"tools"`
		Count int                 `json:"count"`
	}](t, rec)
	assert.Equal(t, 6, resp.Count)
	assert.Equal(t, "complete_todo", resp.Tools[0].Name)
}

func TestServer_AgentRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	env.completer.replies = []string{
		`{"thought":"see tools","tool":"discover_tools"}`,
		`{"thought":"add it","tool":"create_todo","parameters":{"title":"Call mom","priority":"HIGH"}}`,
		`{"tool":null,"response":"Added \"Call mom\"."}`,
	}
	token := env.login(t, "ada@example.com")

	rec := env.do(t, http.MethodPost, "/api/agent", token, map[string]any{
		"message": "remind me to call mom",
		"conversationHistory": []map[string]string{
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Remaining"))

	var resp agent.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.True(t, resp.ToolsDiscovered)
	assert.Equal(t, 3, resp.Iterations)
	assert.Len(t, resp.Steps, 3)
	assert.Equal(t, `Added "Call mom".`, resp.FinalResponse)

	rec = env.do(t, http.MethodGet, "/api/todos", token, nil)
	assert.Contains(t, rec.Body.String(), "Call mom")
}

func TestServer_AgentValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	token := env.login(t, "ada@example.com")

	rec := env.do(t, http.MethodPost, "/api/agent", token, map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Message is required")

	req := httptest.NewRequest(http.MethodPost, "/api/agent", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	raw := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestServer_AgentRateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.Config{RequestsPerWindow: 1, Window: time.Minute})
	token := env.login(t, "ada@example.com")

	rec := env.do(t, http.MethodPost, "/api/agent", token, map[string]any{"message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/agent", token, map[string]any{"message": "hi again"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Rate limit exceeded", body["error"])
	retry := body["retryAfter"].(float64)
	assert.Greater(t, retry, float64(0))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestServer_AgentPlannerFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	env.completer.err = errors.New("provider down")
	token := env.login(t, "ada@example.com")

	rec := env.do(t, http.MethodPost, "/api/agent", token, map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Agent failed to process request")
}

func TestServer_AgentStream(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	env.completer.replies = []string{
		`{"tool":"discover_tools"}`,
		`{"tool":null,"response":"ok"}`,
	}
	token := env.login(t, "ada@example.com")

	rec := env.do(t, http.MethodPost, "/api/agent/stream", token, map[string]any{"message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: step\n"))
	assert.Equal(t, 1, strings.Count(body, "event: result\n"))
}

func TestServer_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, governor.DefaultConfig())
	rec := env.do(t, http.MethodGet, "/api/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
