package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decision is the planner's JSON reply for one iteration.
type Decision struct {
	Thought    string
	Tool       string
	Parameters map[string]any
	Response   string
}

// Terminal reports whether the planner chose to answer instead of calling a tool.
func (d Decision) Terminal() bool {
	return d.Tool == ""
}

// ParseDecision reads a planner reply. Empty replies decode as an empty
// object. Unknown fields are ignored and mistyped optional fields fall back
// to their zero value; only text that is not a JSON object is an error.
func ParseDecision(text string) (Decision, error) {
	raw := strings.TrimSpace(stripCodeFence(text))
	if raw == "" {
		raw = "{}"
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Decision{}, fmt.Errorf("planner reply is not a JSON object: %w", err)
	}

	var d Decision
	d.Thought = stringField(fields["thought"])
	d.Response = stringField(fields["response"])
	d.Tool = strings.TrimSpace(stringField(fields["tool"]))
	if p, ok := fields["parameters"]; ok {
		var params map[string]any
		if err := json.Unmarshal(p, &params); err == nil {
			d.Parameters = params
		}
	}
	return d, nil
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// stripCodeFence removes a surrounding ```json fence some models add even in
// JSON mode.
func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return text
	}
	t = strings.TrimSuffix(strings.TrimPrefix(t, "```"), "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		first := strings.TrimSpace(t[:nl])
		if first == "" || !strings.ContainsAny(first, "{[") {
			t = t[nl+1:]
		}
	}
	return t
}
