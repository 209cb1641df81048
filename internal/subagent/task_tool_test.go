package subagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/strandworks/strand/internal/llm"
)

// terminatingProvider always asks for the terminate tool.
type terminatingProvider struct{ nullProvider }

func (terminatingProvider) AskWithTools(_ context.Context, _ []llm.Message, _ []llm.ToolDefinition, _ []llm.Message, _ string) (llm.Message, error) {
	return llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "terminate", Arguments: json.RawMessage(`{"status":"success"}`)},
		},
	}, nil
}

func TestTaskTool_RunsSubAgentToCompletion(t *testing.T) {
	r := NewRegistry(terminatingProvider{}, t.TempDir())
	tt := NewTaskTool(r)

	res, err := tt.Execute(context.Background(), json.RawMessage(`{"agent_type":"explore","task":"look around"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected tool error: %s", res.Error)
	}

	var report taskReport
	if err := json.Unmarshal([]byte(res.Output), &report); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if report.AgentType != "explore" || report.Status != "completed" {
		t.Errorf("report = %+v", report)
	}
	if report.StepsTaken != 1 {
		t.Errorf("steps_taken = %d, want 1", report.StepsTaken)
	}
}

func TestTaskTool_RoutesWhenTypeOmitted(t *testing.T) {
	r := NewRegistry(terminatingProvider{}, t.TempDir())
	tt := NewTaskTool(r)

	res, err := tt.Execute(context.Background(), json.RawMessage(`{"task":"review the diff"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var report taskReport
	json.Unmarshal([]byte(res.Output), &report)
	if report.AgentType != "review" {
		t.Errorf("routed type = %q, want review", report.AgentType)
	}
}

func TestTaskTool_MissingTask(t *testing.T) {
	r := NewRegistry(terminatingProvider{}, "")
	tt := NewTaskTool(r)
	res, _ := tt.Execute(context.Background(), json.RawMessage(`{}`))
	if res.Error == "" {
		t.Error("missing task must be a tool error")
	}
}
