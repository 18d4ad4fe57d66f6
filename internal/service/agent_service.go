package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/MimeLyc/taskflow-agent/internal/agent"
	"github.com/MimeLyc/taskflow-agent/internal/governor"
	"github.com/MimeLyc/taskflow-agent/internal/llm"
	"github.com/MimeLyc/taskflow-agent/internal/tools"
	"github.com/MimeLyc/taskflow-agent/pkg/log"
)

const DefaultMaxConcurrentRuns = 8

// Runner executes one agent run.
type Runner interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// AgentService gates agent runs behind the governor and bounds how many run
// at once.
type AgentService struct {
	runner   Runner
	governor *governor.Governor
	registry *tools.Registry
	sem      *semaphore.Weighted
}

func NewAgentService(runner Runner, gov *governor.Governor, registry *tools.Registry, maxConcurrent int) *AgentService {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	return &AgentService{
		runner:   runner,
		governor: gov,
		registry: registry,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Run checks the caller's rate limit and token budget, then runs the agent.
func (s *AgentService) Run(ctx context.Context, userID, message string, history []llm.Message) (*agent.Result, error) {
	return s.RunWithProgress(ctx, userID, message, history, nil)
}

// RunWithProgress is Run with onStep called for every recorded step.
func (s *AgentService) RunWithProgress(ctx context.Context, userID, message string, history []llm.Message, onStep func(agent.Step)) (*agent.Result, error) {
	if userID == "" {
		return nil, NewError(ErrUnauthorized, "Unauthorized")
	}

	rate := s.governor.CheckRateLimit(userID)
	if !rate.Allowed {
		log.Info("rate limit exceeded for user %s, retry in %ds", userID, rate.ResetIn)
		return nil, NewError(ErrRateLimited, "Rate limit exceeded").
			WithContext(contextRetryAfter, rate.ResetIn)
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, NewError(ErrValidation, "Message is required")
	}
	if err := validateHistory(history); err != nil {
		return nil, err
	}

	estimate := governor.EstimateTokens(message + historyText(history))
	usage := s.governor.TrackTokenUsage(userID, estimate)
	if !usage.Allowed {
		log.Info("token budget exceeded for user %s: used=%d limit=%d requested=%d", userID, usage.Used, usage.Limit, estimate)
		return nil, NewError(ErrTokenBudgetExceeded, "Daily token budget exceeded").
			WithContext("used", usage.Used).
			WithContext("limit", usage.Limit).
			WithContext("requested", estimate)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, NewErrorWithCause(ErrUnknown, "Agent failed to process request", err)
	}
	defer s.sem.Release(1)

	var result *agent.Result
	err := SafeExecute(func() error {
		var runErr error
		result, runErr = s.runner.Run(ctx, agent.Request{
			UserID:  userID,
			Message: message,
			History: history,
			OnStep:  onStep,
		})
		return runErr
	})
	if err != nil {
		log.Error("agent run for user %s failed: %v", userID, err)
		if errors.Is(err, agent.ErrUnauthorized) {
			return nil, NewErrorWithCause(ErrUnauthorized, "Unauthorized", err)
		}
		if IsErrorType(err, ErrUnknown) {
			return nil, err
		}
		return nil, NewErrorWithCause(ErrPlanner, "Agent failed to process request", err)
	}
	return result, nil
}

// Headers reports the caller's limits without consuming any quota.
func (s *AgentService) Headers(userID string) map[string]string {
	return s.governor.Headers(userID)
}

// Tools describes the registered tools, sorted by name.
func (s *AgentService) Tools() []tools.Description {
	return s.registry.Describe()
}

func validateHistory(history []llm.Message) error {
	for i, m := range history {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return NewError(ErrValidation, fmt.Sprintf("conversationHistory[%d]: role must be user or assistant", i)).
				WithContext("role", m.Role)
		}
	}
	return nil
}

func historyText(history []llm.Message) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Content)
	}
	return b.String()
}
