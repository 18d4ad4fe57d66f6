package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/MimeLyc/taskflow-agent/internal/llm"
	"github.com/MimeLyc/taskflow-agent/internal/tools"
	"github.com/MimeLyc/taskflow-agent/pkg/log"
)

// orchestrator holds the state of a single run
type orchestrator struct {
	agent    *Agent
	req      Request
	result   *Result
	messages []llm.Message
	failures int
}

func newOrchestrator(a *Agent, req Request) *orchestrator {
	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	return &orchestrator{
		agent:    a,
		req:      req,
		messages: messages,
		result: &Result{
			RunID: ulid.Make().String(),
			Steps: make([]Step, 0),
		},
	}
}

func plannerOptions() *llm.ChatCompletionOptions {
	return llm.NewChatCompletionOptions().
		WithTemperature(0.3).
		WithMaxTokens(1024).
		WithResponseFormat(llm.JSONObject)
}

func summaryOptions() *llm.ChatCompletionOptions {
	return llm.NewChatCompletionOptions().
		WithTemperature(0.7).
		WithMaxTokens(256)
}

func (o *orchestrator) run(ctx context.Context) (*Result, error) {
	log.Info("agent run %s started for user %s", o.result.RunID, o.req.UserID)

	done := false
	for o.result.Iterations < o.agent.maxIterations {
		o.result.Iterations++

		finished, err := o.iterate(ctx)
		if err != nil {
			log.Error("agent run %s failed at iteration %d: %v", o.result.RunID, o.result.Iterations, err)
			return nil, err
		}
		if finished {
			done = true
			break
		}
		if limit := o.agent.maxConsecutiveFailures; limit > 0 && o.failures >= limit {
			log.Warn("agent run %s stopping after %d consecutive failures", o.result.RunID, o.failures)
			break
		}
	}

	if !done {
		if err := o.summarize(ctx); err != nil {
			log.Error("agent run %s summary failed: %v", o.result.RunID, err)
			return nil, err
		}
	}

	log.Info("agent run %s finished: iterations=%d steps=%d discovered=%v",
		o.result.RunID, o.result.Iterations, len(o.result.Steps), o.result.ToolsDiscovered)
	return o.result, nil
}

// iterate performs one planning call and acts on it. It reports whether the
// run has a final response.
func (o *orchestrator) iterate(ctx context.Context) (bool, error) {
	text, err := o.plan(ctx)
	if err != nil {
		if !o.plannerTimedOut(ctx, err) {
			return false, fmt.Errorf("planner call failed at iteration %d: %w", o.result.Iterations, err)
		}
		log.Warn("agent run %s planner timed out at iteration %d", o.result.RunID, o.result.Iterations)
		o.record(Step{
			Thought: plannerTimeoutThought,
			Error:   err.Error(),
		})
		o.messages = append(o.messages, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Your previous step failed: %v\n\nRespond again with the JSON format.", err),
		})
		o.failures++
		return false, nil
	}

	decision, err := ParseDecision(text)
	if err != nil {
		log.Warn("agent run %s got a non-JSON planner reply, using it as the answer", o.result.RunID)
		o.result.FinalResponse = text
		return true, nil
	}

	step := Step{
		Thought:    decision.Thought,
		Tool:       decision.Tool,
		Parameters: decision.Parameters,
	}

	if decision.Terminal() {
		o.result.FinalResponse = decision.Response
		if o.result.FinalResponse == "" {
			o.result.FinalResponse = defaultFinalResponse
		}
		o.record(step)
		return true, nil
	}

	if decision.Tool == tools.DiscoveryToolName {
		o.result.ToolsDiscovered = true
	}

	o.messages = append(o.messages, llm.Message{Role: llm.RoleAssistant, Content: text})
	step.ToolResult = o.executeTool(ctx, decision)
	o.record(step)
	return false, nil
}

func (o *orchestrator) record(step Step) {
	o.result.Steps = append(o.result.Steps, step)
	if o.req.OnStep != nil {
		o.req.OnStep(step)
	}
}

func (o *orchestrator) plan(ctx context.Context) (string, error) {
	callCtx := ctx
	if o.agent.plannerTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.agent.plannerTimeout)
		defer cancel()
	}
	return o.agent.completer.Complete(callCtx, o.messages, plannerOptions())
}

// plannerTimedOut distinguishes the per-call deadline from cancellation of
// the run itself.
func (o *orchestrator) plannerTimedOut(ctx context.Context, err error) bool {
	return o.agent.plannerTimeout > 0 &&
		errors.Is(err, context.DeadlineExceeded) &&
		ctx.Err() == nil
}

// executeTool runs the selected tool and appends the turn describing the
// outcome. It returns the value recorded on the step.
func (o *orchestrator) executeTool(ctx context.Context, decision Decision) any {
	name := decision.Tool

	tool, exists := o.agent.registry.Get(name)
	if !exists {
		o.failures++
		log.Warn("agent run %s: unknown tool %q", o.result.RunID, name)
		o.messages = append(o.messages, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Unknown tool %q. Call %s to see available tools.", name, tools.DiscoveryToolName),
		})
		return map[string]any{"error": "Unknown tool: " + name}
	}

	params := decision.Parameters
	if params == nil {
		params = map[string]any{}
	}

	result, err := tool.Execute(ctx, o.req.UserID, params)
	if err != nil {
		o.failures++
		log.Warn("agent run %s: tool %s failed: %v", o.result.RunID, name, err)
		o.messages = append(o.messages, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Tool %q failed: %v\n\nHandle this error appropriately.", name, err),
		})
		return map[string]any{"error": err.Error()}
	}

	o.failures = 0
	log.Debug("agent run %s: tool %s executed", o.result.RunID, name)
	o.messages = append(o.messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Tool %q returned:\n%s\n\nContinue with the next step or provide a final response.", name, indentJSON(result)),
	})
	return result
}

// summarize asks for a plain-text wrap-up after the loop ran out of iterations.
func (o *orchestrator) summarize(ctx context.Context) error {
	messages := make([]llm.Message, 0, len(o.messages)+1)
	messages = append(messages, o.messages...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: exhaustedPrompt})

	text, err := o.agent.completer.Complete(ctx, messages, summaryOptions())
	if err != nil {
		return fmt.Errorf("summary call failed: %w", err)
	}
	o.result.FinalResponse = text
	if o.result.FinalResponse == "" {
		o.result.FinalResponse = defaultSummaryResponse
	}
	return nil
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
