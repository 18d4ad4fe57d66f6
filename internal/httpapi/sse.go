package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MimeLyc/taskflow-agent/internal/agent"
	"github.com/MimeLyc/taskflow-agent/internal/auth"
	"github.com/MimeLyc/taskflow-agent/internal/service"
)

// handleAgentStream runs the agent and streams each step as a server-sent
// event, followed by a "result" or "error" event.
func (s *Server) handleAgentStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	u, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var req agentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	started := false
	send := func(event string, data any) bool {
		payload, err := json.Marshal(data)
		if err != nil {
			return false
		}
		if !started {
			started = true
			s.setRateHeaders(w, u.ID)
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	result, err := s.agents.RunWithProgress(r.Context(), u.ID, req.Message, req.ConversationHistory, func(step agent.Step) {
		send("step", step)
	})
	if err != nil {
		if !started {
			s.setRateHeaders(w, u.ID)
			writeServiceError(w, err)
			return
		}
		svcErr := service.AsError(err)
		send("error", map[string]any{"error": svcErr.Message})
		return
	}
	send("result", result)
}
