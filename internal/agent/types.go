package agent

import (
	"github.com/MimeLyc/taskflow-agent/internal/llm"
)

// Request is one agent invocation on behalf of a user.
type Request struct {
	// UserID identifies the caller; tools act on this user's data only
	UserID string

	// Message is the user's new message
	Message string

	// History holds prior user/assistant turns, oldest first
	History []llm.Message

	// OnStep, when set, is called after each step is recorded
	OnStep func(Step)
}

// Step records one planning iteration.
type Step struct {
	// Thought is the planner's stated reasoning, possibly empty
	Thought string `json:"thought"`

	// Tool is the tool the planner selected. Empty for the terminal step and
	// for planner failures, which set Error instead.
	Tool string `json:"tool,omitempty"`

	// Parameters are the arguments the planner passed to Tool
	Parameters map[string]any `json:"parameters,omitempty"`

	// ToolResult is the tool's output, or an {"error": ...} object when the
	// tool failed or was unknown
	ToolResult any `json:"toolResult,omitempty"`

	// Error is set when the planner call itself failed (e.g. timed out) and
	// the loop carried on
	Error string `json:"error,omitempty"`
}

// Terminal reports whether the step carries the final answer.
func (s Step) Terminal() bool {
	return s.Tool == "" && s.Error == ""
}

// Result is the outcome of a run.
type Result struct {
	// RunID identifies the run in logs
	RunID string `json:"runId"`

	Steps []Step `json:"steps"`

	// FinalResponse is the text returned to the user
	FinalResponse string `json:"response"`

	// Iterations is the number of planning calls made, excluding the summary call
	Iterations int `json:"iterations"`

	// ToolsDiscovered reports whether discover_tools was selected during the run
	ToolsDiscovered bool `json:"toolsDiscovered"`
}
