package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/strandworks/strand/internal/tool"
)

// TerminateName is the tool name the agent core treats as a special tool:
// invoking it transitions the agent to FINISHED after the current act pass.
const TerminateName = "terminate"

// TerminateTool signals run completion. It is the default special tool
// of every tool-calling agent.
type TerminateTool struct{}

// NewTerminateTool creates a terminate tool.
func NewTerminateTool() *TerminateTool { return &TerminateTool{} }

func (t *TerminateTool) Name() string { return TerminateName }

func (t *TerminateTool) Description() string {
	return "Finish the current run. Call this when the task is complete or when " +
		"you cannot make further progress."
}

func (t *TerminateTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "status", Type: "string", Description: "Completion status", Required: true, Enum: []string{"success", "failure"}},
	)
}

type terminateArgs struct {
	Status string `json:"status"`
}

func (t *TerminateTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a terminateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		a.Status = "success"
	}
	if a.Status == "" {
		a.Status = "success"
	}
	return tool.ToolResult{Output: fmt.Sprintf("The interaction has been completed with status: %s", a.Status)}, nil
}

func (t *TerminateTool) Init(_ context.Context) error { return nil }
func (t *TerminateTool) Close() error                 { return nil }
