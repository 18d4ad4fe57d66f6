package agent

import (
	"context"
	"errors"
	"time"

	"github.com/MimeLyc/taskflow-agent/internal/llm"
	"github.com/MimeLyc/taskflow-agent/internal/tools"
)

const DefaultMaxIterations = 7

// ErrUnauthorized is returned when a run has no user identity.
var ErrUnauthorized = errors.New("unauthorized")

// Agent plans with a language model and acts through the tools in a
// registry. The registry is read at call time, so tools added or removed
// between runs are picked up without rebuilding the agent.
type Agent struct {
	completer              llm.Completer
	registry               *tools.Registry
	systemPrompt           string
	maxIterations          int
	plannerTimeout         time.Duration
	maxConsecutiveFailures int
}

type Option func(*Agent)

// WithMaxIterations bounds the number of planning calls per run
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithPlannerTimeout bounds each planning call. A call that runs out of time
// is reported to the planner as an error turn and the run continues.
func WithPlannerTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.plannerTimeout = d
	}
}

// WithMaxConsecutiveFailures ends the loop early once n iterations in a row
// produced an unknown tool, a tool error or a planner timeout. Zero disables
// the check.
func WithMaxConsecutiveFailures(n int) Option {
	return func(a *Agent) {
		a.maxConsecutiveFailures = n
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// New creates an agent over completer and registry
func New(completer llm.Completer, registry *tools.Registry, opts ...Option) *Agent {
	a := &Agent{
		completer:     completer,
		registry:      registry,
		systemPrompt:  DefaultSystemPrompt,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) MaxIterations() int {
	return a.maxIterations
}

// Run executes the agent loop for req
func (a *Agent) Run(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, ErrUnauthorized
	}
	return newOrchestrator(a, req).run(ctx)
}
