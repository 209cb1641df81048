package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/strandworks/strand/internal/tool"
)

// TaskTool lets the main agent delegate a task to a sub-agent and block
// until it completes. It holds a handle to the sub-agent registry, not
// ownership of any agent.
type TaskTool struct {
	registry *Registry
}

// NewTaskTool creates a task tool over the sub-agent registry.
func NewTaskTool(registry *Registry) *TaskTool {
	return &TaskTool{registry: registry}
}

func (t *TaskTool) Name() string { return "task" }

func (t *TaskTool) Description() string {
	return "Delegate a task to a specialized sub-agent and return its result. " +
		"Sub-agent types: explore, plan, code, test, build, review. " +
		"Omit agent_type to route by task description." +
		tool.FormatExamples(
			tool.Example{
				Description: "Delegate implementation work",
				Input:       `{"agent_type": "code", "task": "Implement a fibonacci function in fib.py"}`,
			},
			tool.Example{
				Description: "Route automatically",
				Input:       `{"task": "explore the repository layout"}`,
				Note:        "the description keywords select the explore agent",
			},
		)
}

func (t *TaskTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "agent_type", Type: "string", Description: "Sub-agent type (default: routed from the task text)", Enum: []string{"explore", "plan", "code", "test", "build", "review"}},
		tool.SchemaParam{Name: "task", Type: "string", Description: "Task for the sub-agent to complete", Required: true},
		tool.SchemaParam{Name: "context", Type: "string", Description: "Extra context passed to the sub-agent"},
	)
}

func (t *TaskTool) Init(_ context.Context) error { return nil }
func (t *TaskTool) Close() error                 { return nil }

type taskArgs struct {
	AgentType string `json:"agent_type"`
	Task      string `json:"task"`
	Context   string `json:"context"`
}

type taskReport struct {
	AgentType  string `json:"agent_type"`
	Task       string `json:"task"`
	Result     string `json:"result"`
	Status     string `json:"status"`
	StepsTaken int    `json:"steps_taken"`
}

func (t *TaskTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a taskArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if a.Task == "" {
		return tool.ToolResult{Error: "task is required"}, nil
	}
	if a.AgentType == "" {
		a.AgentType = RouteTask(a.Task)
	}

	sub, err := t.registry.Spawn(a.AgentType, a.Context)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	log.Printf("[Task] Running %s sub-agent: %s", a.AgentType, a.Task)
	result, err := sub.Run(ctx, a.Task)
	report := taskReport{
		AgentType: a.AgentType,
		Task:      a.Task,
		Result:    result,
	}
	if err != nil {
		report.Status = "error"
		report.Result = err.Error()
	} else {
		report.Status = "completed"
	}
	if s := sub.LastRunSummary(); s != nil {
		report.StepsTaken = s.Steps
	}

	out, merr := json.Marshal(report)
	if merr != nil {
		return tool.ToolResult{Error: fmt.Sprintf("encode report: %v", merr)}, nil
	}
	if err != nil {
		return tool.ToolResult{Error: string(out)}, nil
	}
	return tool.ToolResult{Output: string(out)}, nil
}
