package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/strandworks/strand/internal/llm"
	"github.com/strandworks/strand/internal/tool"
)

// echoTool returns its "text" argument.
type echoTool struct{}

func (e *echoTool) Name() string                 { return "echo" }
func (e *echoTool) Description() string          { return "echoes text" }
func (e *echoTool) InputSchema() json.RawMessage { return tool.BuildSchema() }
func (e *echoTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		Text string `json:"text"`
	}
	json.Unmarshal(args, &a)
	return tool.ToolResult{Output: a.Text}, nil
}
func (e *echoTool) Init(_ context.Context) error { return nil }
func (e *echoTool) Close() error                 { return nil }

// failTool always returns a Go error from Execute.
type failTool struct{}

func (f *failTool) Name() string                 { return "fail" }
func (f *failTool) Description() string          { return "always fails" }
func (f *failTool) InputSchema() json.RawMessage { return tool.BuildSchema() }
func (f *failTool) Execute(_ context.Context, _ json.RawMessage) (tool.ToolResult, error) {
	return tool.ToolResult{}, errors.New("exploded")
}
func (f *failTool) Init(_ context.Context) error { return nil }
func (f *failTool) Close() error                 { return nil }

// doneTool plays the terminate role.
type doneTool struct{}

func (d *doneTool) Name() string                 { return "terminate" }
func (d *doneTool) Description() string          { return "finish" }
func (d *doneTool) InputSchema() json.RawMessage { return tool.BuildSchema() }
func (d *doneTool) Execute(_ context.Context, _ json.RawMessage) (tool.ToolResult, error) {
	return tool.ToolResult{Output: "done"}, nil
}
func (d *doneTool) Init(_ context.Context) error { return nil }
func (d *doneTool) Close() error                 { return nil }

func assistantWithCalls(calls ...llm.ToolCall) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: "", ToolCalls: calls}
}

func newTestAgent(p llm.Provider) *ToolCallAgent {
	reg := tool.NewRegistry()
	reg.Add(&echoTool{}, tool.SourceLocal)
	reg.Add(&failTool{}, tool.SourceLocal)
	reg.Add(&doneTool{}, tool.SourceLocal)
	a := NewToolCallAgent("test", p, reg)
	a.MaxSteps = 10
	return a
}

func toolReplies(a *ToolCallAgent) []llm.Message {
	var out []llm.Message
	for _, m := range a.Memory.Messages() {
		if m.Role == llm.RoleTool {
			out = append(out, m)
		}
	}
	return out
}

func TestAct_EveryCallGetsOneReplyInOrder(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Message{
		assistantWithCalls(
			llm.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"one"}`)},
			llm.ToolCall{ID: "c2", Name: "echo", Arguments: json.RawMessage(`{"text":"two"}`)},
		),
		assistantWithCalls(llm.ToolCall{ID: "c3", Name: "terminate", Arguments: json.RawMessage(`{"status":"success"}`)}),
	}}
	a := newTestAgent(p)

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	replies := toolReplies(a)
	if len(replies) != 3 {
		t.Fatalf("got %d tool replies, want 3", len(replies))
	}
	if replies[0].ToolCallID != "c1" || replies[0].Content != "one" {
		t.Errorf("reply 0 = %+v", replies[0])
	}
	if replies[1].ToolCallID != "c2" || replies[1].Content != "two" {
		t.Errorf("reply 1 = %+v", replies[1])
	}
	if replies[2].ToolCallID != "c3" {
		t.Errorf("reply 2 = %+v", replies[2])
	}
	if s := a.LastRunSummary(); s.State != string(StateFinished) {
		t.Errorf("state = %q, want FINISHED after terminate", s.State)
	}
}

func TestAct_UnknownToolBecomesErrorReply(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Message{
		assistantWithCalls(llm.ToolCall{ID: "c1", Name: "ghost", Arguments: json.RawMessage(`{}`)}),
		assistantWithCalls(llm.ToolCall{ID: "c2", Name: "terminate", Arguments: json.RawMessage(`{}`)}),
	}}
	a := newTestAgent(p)

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatalf("loop must continue past unknown tools: %v", err)
	}
	replies := toolReplies(a)
	if replies[0].ToolCallID != "c1" || !strings.Contains(replies[0].Content, "not found") {
		t.Errorf("reply 0 = %+v", replies[0])
	}
}

func TestAct_MalformedArgumentsBecomesErrorReply(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Message{
		assistantWithCalls(llm.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{broken`)}),
		assistantWithCalls(llm.ToolCall{ID: "c2", Name: "terminate", Arguments: json.RawMessage(`{}`)}),
	}}
	a := newTestAgent(p)

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	replies := toolReplies(a)
	if !strings.Contains(replies[0].Content, "invalid arguments") {
		t.Errorf("reply 0 = %q", replies[0].Content)
	}
}

func TestAct_ExecuteErrorRecovered(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Message{
		assistantWithCalls(llm.ToolCall{ID: "c1", Name: "fail", Arguments: json.RawMessage(`{}`)}),
		assistantWithCalls(llm.ToolCall{ID: "c2", Name: "terminate", Arguments: json.RawMessage(`{}`)}),
	}}
	a := newTestAgent(p)

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatalf("tool errors must not abort the run: %v", err)
	}
	replies := toolReplies(a)
	if !strings.Contains(replies[0].Content, "exploded") {
		t.Errorf("reply 0 = %q", replies[0].Content)
	}
}

func TestAct_SpecialToolFinishesEvenOnError(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Message{
		assistantWithCalls(llm.ToolCall{ID: "c1", Name: "fail", Arguments: json.RawMessage(`{}`)}),
	}}
	a := newTestAgent(p)
	a.SpecialTools = []string{"fail"}

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := a.LastRunSummary()
	if s.State != string(StateFinished) {
		t.Errorf("state = %q, want FINISHED: special tools end the run regardless of result", s.State)
	}
	if s.Steps != 1 {
		t.Errorf("steps = %d, want 1", s.Steps)
	}
	replies := toolReplies(a)
	if len(replies) != 1 || !strings.Contains(replies[0].Content, "exploded") {
		t.Errorf("replies = %+v", replies)
	}
}

func TestAct_MaxObserveTruncatesByCharacters(t *testing.T) {
	long := strings.Repeat("x", 100)
	p := &scriptedProvider{replies: []llm.Message{
		assistantWithCalls(llm.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"` + long + `"}`)}),
		assistantWithCalls(llm.ToolCall{ID: "c2", Name: "terminate", Arguments: json.RawMessage(`{}`)}),
	}}
	a := newTestAgent(p)
	a.MaxObserve = 10

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	replies := toolReplies(a)
	if len([]rune(replies[0].Content)) != 10 {
		t.Errorf("observation length = %d, want 10", len([]rune(replies[0].Content)))
	}
}

func TestThink_ModelErrorPropagates(t *testing.T) {
	p := &scriptedProvider{askErr: errors.New("model down")}
	a := newTestAgent(p)

	_, err := a.Run(context.Background(), "go")
	if err == nil || !strings.Contains(err.Error(), "model down") {
		t.Fatalf("err = %v, want model error", err)
	}
	if a.State != StateIdle {
		t.Errorf("state = %q, want IDLE", a.State)
	}
}

func TestStep_NoToolCallsReturnsContent(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Message{
		llm.AssistantMessage("plain answer"),
		assistantWithCalls(llm.ToolCall{ID: "c1", Name: "terminate", Arguments: json.RawMessage(`{}`)}),
	}}
	a := newTestAgent(p)

	out, err := a.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "Step 1: plain answer") {
		t.Errorf("output = %q", out)
	}
}
