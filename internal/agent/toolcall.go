package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/strandworks/strand/internal/llm"
	"github.com/strandworks/strand/internal/tool"
)

// DefaultSpecialTools are the tool names whose invocation finishes the run.
var DefaultSpecialTools = []string{"terminate"}

// ToolCallAgent specializes Base with a think+act step: think asks the
// model with the registry's tool schemas, act dispatches the requested
// tool calls in order.
type ToolCallAgent struct {
	*Base

	Registry     *tool.Registry
	ToolChoice   string   // defaults to auto
	SpecialTools []string // tool names that finish the run (default: terminate)
	MaxObserve   int      // max characters of tool output appended per call; 0 = unlimited
}

// NewToolCallAgent creates a tool-calling agent over the given registry.
func NewToolCallAgent(name string, provider llm.Provider, registry *tool.Registry) *ToolCallAgent {
	a := &ToolCallAgent{
		Base:         NewBase(name, provider),
		Registry:     registry,
		ToolChoice:   llm.ToolChoiceAuto,
		SpecialTools: DefaultSpecialTools,
	}
	a.SetStepper(a)
	return a
}

// Step runs think, then act when the model requested tool calls.
func (a *ToolCallAgent) Step(ctx context.Context) (string, error) {
	hasCalls, err := a.Think(ctx)
	if err != nil {
		return "", err
	}
	if !hasCalls {
		last, _ := a.Memory.LastAssistant()
		return last.Content, nil
	}
	return a.Act(ctx)
}

// Think submits memory plus the current tool schemas to the model and
// appends the assistant reply. The next-step prompt rides along as a
// transient user message and is not persisted. Returns true iff the
// model requested at least one tool call.
func (a *ToolCallAgent) Think(ctx context.Context) (bool, error) {
	request := a.Memory.Messages()
	if a.NextStepPrompt != "" {
		request = append(request, llm.UserMessage(a.NextStepPrompt))
	}

	reply, err := a.Provider.AskWithTools(ctx, request, a.Registry.Definitions(), nil, a.ToolChoice)
	if err != nil {
		return false, fmt.Errorf("think: %w", err)
	}

	a.AppendMessage(reply)
	if len(reply.ToolCalls) > 0 {
		names := make([]string, len(reply.ToolCalls))
		for i, tc := range reply.ToolCalls {
			names[i] = tc.Name
		}
		log.Printf("[%s] Step %d: model requested tools: %s", a.Name, a.CurrentStep, strings.Join(names, ", "))
	}
	return len(reply.ToolCalls) > 0, nil
}

// Act executes the last assistant message's tool calls in order. Every
// call gets exactly one tool-role reply with its tool_call_id; errors
// become error replies and the loop continues.
func (a *ToolCallAgent) Act(ctx context.Context) (string, error) {
	last, ok := a.Memory.LastAssistant()
	if !ok || len(last.ToolCalls) == 0 {
		return "", nil
	}

	finish := false
	var results []string
	for _, tc := range last.ToolCalls {
		if a.Hooks.OnToolCall != nil {
			a.Hooks.OnToolCall(tc.Name, string(tc.Arguments))
		}

		res := a.executeCall(ctx, tc)
		content := res.String()
		if a.MaxObserve > 0 {
			content = truncateChars(content, a.MaxObserve)
		}

		reply := llm.ToolMessage(content, tc.Name, tc.ID)
		reply.Base64Image = res.Base64Image
		a.AppendMessage(reply)

		if a.Hooks.OnToolResult != nil {
			a.Hooks.OnToolResult(tc.Name, content, res.Error != "")
		}
		results = append(results, content)

		if a.isSpecialTool(tc.Name) {
			finish = true
		}
	}

	if finish {
		a.transition(StateFinished)
	}
	return strings.Join(results, "\n\n"), nil
}

// executeCall resolves and runs a single tool call, converting every
// failure mode into a ToolResult.
func (a *ToolCallAgent) executeCall(ctx context.Context, tc llm.ToolCall) tool.ToolResult {
	t, ok := a.Registry.Get(tc.Name)
	if !ok {
		return tool.ToolResult{Error: fmt.Sprintf("tool %q not found", tc.Name)}
	}

	args := tc.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var parsed map[string]any
	if err := json.Unmarshal(args, &parsed); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments for %q: %v", tc.Name, err)}
	}

	res, err := t.Execute(ctx, args)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}
	}
	return res
}

func (a *ToolCallAgent) isSpecialTool(name string) bool {
	for _, s := range a.SpecialTools {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// truncateChars limits content by character count, per the observation
// truncation contract.
func truncateChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
