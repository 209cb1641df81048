// Package subagent spawns specialized short-lived agents with restricted
// tool sets and step limits, and routes free-text task descriptions to
// the right specialization.
package subagent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/llm"
	"github.com/strandworks/strand/internal/tool"
	"github.com/strandworks/strand/internal/tool/builtin"
)

// Config describes one sub-agent type.
type Config struct {
	Type     string
	MaxSteps int
	Tools    []string
}

// defaultConfigs are the built-in sub-agent types.
func defaultConfigs() map[string]Config {
	return map[string]Config{
		"explore": {Type: "explore", MaxSteps: 10, Tools: []string{"shell", "terminate"}},
		"plan":    {Type: "plan", MaxSteps: 20, Tools: []string{"shell", "terminate"}},
		"code":    {Type: "code", MaxSteps: 50, Tools: []string{"shell", "code_execution", "str_replace_editor", "browser", "test_runner", "terminate"}},
		"test":    {Type: "test", MaxSteps: 15, Tools: []string{"shell", "code_execution", "test_runner", "terminate"}},
		"build":   {Type: "build", MaxSteps: 10, Tools: []string{"shell", "code_execution", "terminate"}},
		"review":  {Type: "review", MaxSteps: 3, Tools: []string{"test_runner"}},
	}
}

// routingKeywords map task-description keywords to sub-agent types,
// checked in order. Default is explore.
var routingKeywords = []struct {
	agentType string
	keywords  []string
}{
	{"review", []string{"review", "critique", "grade", "assess"}},
	{"test", []string{"test", "verify", "validate", "check"}},
	{"build", []string{"build", "compile", "package", "install"}},
	{"plan", []string{"plan", "design", "architect", "outline"}},
	{"code", []string{"implement", "write", "code", "fix", "refactor", "create", "add"}},
	{"explore", []string{"explore", "find", "search", "understand", "investigate", "read"}},
}

// Registry maps sub-agent types to their configurations and spawns
// agents on demand. Registrations happen at startup; reads dominate.
type Registry struct {
	mu           sync.RWMutex
	configs      map[string]Config
	provider     llm.Provider
	workspaceDir string

	systemPrompts map[string]string
}

// NewRegistry creates a registry with the default sub-agent types.
func NewRegistry(provider llm.Provider, workspaceDir string) *Registry {
	return &Registry{
		configs:       defaultConfigs(),
		provider:      provider,
		workspaceDir:  workspaceDir,
		systemPrompts: make(map[string]string),
	}
}

// Types returns the registered sub-agent type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.configs))
	for t := range r.configs {
		out = append(out, t)
	}
	return out
}

// SetMaxSteps overrides the step limit for a type.
func (r *Registry) SetMaxSteps(agentType string, maxSteps int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[agentType]
	if !ok {
		return fmt.Errorf("subagent: unknown type %q", agentType)
	}
	cfg.MaxSteps = maxSteps
	r.configs[agentType] = cfg
	return nil
}

// SetSystemPrompt overrides the system prompt for a type.
func (r *Registry) SetSystemPrompt(agentType, prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.systemPrompts[agentType] = prompt
}

// Spawn builds a fresh agent of the given type with its restricted tool
// set. extraContext, when non-empty, is folded into the system prompt.
func (r *Registry) Spawn(agentType, extraContext string) (*agent.ToolCallAgent, error) {
	r.mu.RLock()
	cfg, ok := r.configs[agentType]
	prompt := r.systemPrompts[agentType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("subagent: unknown type %q", agentType)
	}

	reg := tool.NewRegistry()
	for _, name := range cfg.Tools {
		t, err := r.buildTool(name)
		if err != nil {
			return nil, err
		}
		reg.Add(t, tool.SourceLocal)
	}

	a := agent.NewToolCallAgent("sub-"+agentType, r.provider, reg)
	a.MaxSteps = cfg.MaxSteps
	if prompt == "" {
		prompt = fmt.Sprintf("You are a focused %s agent. Complete the assigned task, then call terminate.", agentType)
	}
	if extraContext != "" {
		prompt += "\n\nContext:\n" + extraContext
	}
	a.SystemPrompt = prompt
	return a, nil
}

func (r *Registry) buildTool(name string) (tool.Tool, error) {
	switch name {
	case "shell":
		return builtin.NewShellTool(r.workspaceDir, true), nil
	case "code_execution":
		return builtin.NewCodeExecTool(r.workspaceDir, ""), nil
	case "str_replace_editor":
		return builtin.NewEditorTool(r.workspaceDir), nil
	case "test_runner":
		return builtin.NewTestRunnerTool(r.workspaceDir), nil
	case "browser":
		return builtin.NewBrowserTool(), nil
	case "terminate":
		return builtin.NewTerminateTool(), nil
	default:
		return nil, fmt.Errorf("subagent: unknown tool %q", name)
	}
}

// RouteTask picks a sub-agent type for a free-text task description.
func RouteTask(description string) string {
	lower := strings.ToLower(description)
	for _, route := range routingKeywords {
		for _, kw := range route.keywords {
			if strings.Contains(lower, kw) {
				return route.agentType
			}
		}
	}
	return "explore"
}
