package httpapi

import (
	"net/http"

	"github.com/MimeLyc/taskflow-agent/internal/auth"
	"github.com/MimeLyc/taskflow-agent/internal/llm"
)

type agentRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []llm.Message `json:"conversationHistory"`
}

// handleAgentTools lists the registered tools for debugging and UIs.
func (s *Server) handleAgentTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	descs := s.agents.Tools()
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": descs,
		"count": len(descs),
	})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	u, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req agentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.agents.Run(r.Context(), u.ID, req.Message, req.ConversationHistory)
	s.setRateHeaders(w, u.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) setRateHeaders(w http.ResponseWriter, userID string) {
	for k, v := range s.agents.Headers(userID) {
		w.Header().Set(k, v)
	}
}
