package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/llm"
	"github.com/strandworks/strand/internal/memory"
	"github.com/strandworks/strand/internal/tool"
	"github.com/strandworks/strand/internal/tool/builtin"
)

// wsProvider answers every think call with one terminate tool call, so
// a run finishes in a single step.
type wsProvider struct {
	calls atomic.Int64
}

func (p *wsProvider) Ask(_ context.Context, _ []llm.Message, _ []llm.Message) (string, error) {
	return "ok", nil
}

func (p *wsProvider) AskWithTools(_ context.Context, _ []llm.Message, _ []llm.ToolDefinition, _ []llm.Message, _ string) (llm.Message, error) {
	p.calls.Add(1)
	msg := llm.AssistantMessage("finishing up")
	msg.ToolCalls = []llm.ToolCall{{
		ID:        "call-1",
		Name:      builtin.TerminateName,
		Arguments: json.RawMessage(`{"status":"success"}`),
	}}
	return msg, nil
}

func (p *wsProvider) CountMessageTokens(_ []llm.Message) int { return 10 }
func (p *wsProvider) TotalInputTokens() int64                { return 100 }
func (p *wsProvider) TotalCompletionTokens() int64           { return 20 }

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	factory := func() *agent.ToolCallAgent {
		reg := tool.NewRegistry()
		reg.Add(builtin.NewTerminateTool(), tool.SourceLocal)
		a := agent.NewToolCallAgent("strand", &wsProvider{}, reg)
		a.MaxSteps = 5
		return a
	}
	g := NewGateway(factory, t.TempDir(), "test-model", time.Hour)
	t.Cleanup(g.Close)
	return g
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func TestHandleChat_RunsOneTurn(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(NewServer(g).Handler())
	defer srv.Close()

	resp := postJSON(t, srv, "/api/chat", chatRequest{Message: "do the thing"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SessionID == "" || strings.Contains(out.SessionID, "-") {
		t.Errorf("session_id = %q, want dashless id", out.SessionID)
	}
	// user + assistant + tool reply
	if len(out.Messages) != 3 {
		t.Errorf("got %d messages: %+v", len(out.Messages), out.Messages)
	}
	if out.Summary == nil || out.Summary.State != "FINISHED" {
		t.Errorf("summary = %+v", out.Summary)
	}
	if len(out.Logs) == 0 {
		t.Error("expected run logs")
	}
}

func TestHandleChat_ReusesSession(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(NewServer(g).Handler())
	defer srv.Close()

	first := postJSON(t, srv, "/api/chat", chatRequest{Message: "one"})
	var out1 chatResponse
	json.NewDecoder(first.Body).Decode(&out1)
	first.Body.Close()

	second := postJSON(t, srv, "/api/chat", chatRequest{Message: "two", SessionID: out1.SessionID})
	var out2 chatResponse
	json.NewDecoder(second.Body).Decode(&out2)
	second.Body.Close()

	if out2.SessionID != out1.SessionID {
		t.Errorf("session id changed: %q -> %q", out1.SessionID, out2.SessionID)
	}
	if g.Count() != 1 {
		t.Errorf("sessions = %d, want 1", g.Count())
	}
	// Second turn appends only its own messages, not the whole history.
	if len(out2.Messages) != 3 {
		t.Errorf("second turn returned %d messages", len(out2.Messages))
	}
}

// twoStepProvider asks for an unresolvable tool on odd think calls and
// terminate on even ones, so every run takes two steps and memory grows
// between compaction checks.
type twoStepProvider struct {
	calls atomic.Int64
}

func (p *twoStepProvider) Ask(_ context.Context, _ []llm.Message, _ []llm.Message) (string, error) {
	return "ok", nil
}

func (p *twoStepProvider) AskWithTools(_ context.Context, _ []llm.Message, _ []llm.ToolDefinition, _ []llm.Message, _ string) (llm.Message, error) {
	n := p.calls.Add(1)
	msg := llm.AssistantMessage("working")
	if n%2 == 1 {
		msg.ToolCalls = []llm.ToolCall{{ID: "call-a", Name: "lookup", Arguments: json.RawMessage(`{}`)}}
	} else {
		msg.ToolCalls = []llm.ToolCall{{ID: "call-b", Name: builtin.TerminateName, Arguments: json.RawMessage(`{"status":"success"}`)}}
	}
	return msg, nil
}

func (p *twoStepProvider) CountMessageTokens(_ []llm.Message) int { return 10 }
func (p *twoStepProvider) TotalInputTokens() int64                { return 100 }
func (p *twoStepProvider) TotalCompletionTokens() int64           { return 20 }

// lastMessageStrategy keeps only the newest message.
type lastMessageStrategy struct{}

func (s *lastMessageStrategy) Name() string { return "last_message" }

func (s *lastMessageStrategy) Compact(_ context.Context, messages []llm.Message) []llm.Message {
	if len(messages) == 0 {
		return messages
	}
	return []llm.Message{messages[len(messages)-1]}
}

func TestHandleChat_SurvivesMidRunCompaction(t *testing.T) {
	factory := func() *agent.ToolCallAgent {
		reg := tool.NewRegistry()
		reg.Add(builtin.NewTerminateTool(), tool.SourceLocal)
		p := &twoStepProvider{}
		a := agent.NewToolCallAgent("strand", p, reg)
		a.MaxSteps = 5
		a.ContextManager = memory.NewContextManager(p, &lastMessageStrategy{}, 1)
		return a
	}
	g := NewGateway(factory, t.TempDir(), "test-model", time.Hour)
	t.Cleanup(g.Close)
	srv := httptest.NewServer(NewServer(g).Handler())
	defer srv.Close()

	first := postJSON(t, srv, "/api/chat", chatRequest{Message: "one"})
	var out1 chatResponse
	json.NewDecoder(first.Body).Decode(&out1)
	first.Body.Close()
	// user + assistant + error reply + assistant + terminate reply
	if len(out1.Messages) != 5 {
		t.Fatalf("first turn returned %d messages: %+v", len(out1.Messages), out1.Messages)
	}

	// The second turn starts with more messages in memory than survive
	// compaction, so the turn's output must come from the append hook,
	// not from slicing memory at the pre-run length.
	second := postJSON(t, srv, "/api/chat", chatRequest{Message: "two", SessionID: out1.SessionID})
	defer second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("second turn status = %d", second.StatusCode)
	}
	var out2 chatResponse
	if err := json.NewDecoder(second.Body).Decode(&out2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out2.Messages) != 5 {
		t.Errorf("second turn returned %d messages: %+v", len(out2.Messages), out2.Messages)
	}
	if out2.Summary == nil || out2.Summary.State != "FINISHED" {
		t.Errorf("summary = %+v", out2.Summary)
	}
}

func TestHandleChat_Validation(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(NewServer(g).Handler())
	defer srv.Close()

	resp := postJSON(t, srv, "/api/chat", chatRequest{Message: "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message status = %d", resp.StatusCode)
	}

	get, err := http.Get(srv.URL + "/api/chat")
	if err != nil {
		t.Fatal(err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", get.StatusCode)
	}
}

func TestHandleReset(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(NewServer(g).Handler())
	defer srv.Close()

	chat := postJSON(t, srv, "/api/chat", chatRequest{Message: "hello"})
	var out chatResponse
	json.NewDecoder(chat.Body).Decode(&out)
	chat.Body.Close()

	resp := postJSON(t, srv, "/api/reset", resetRequest{SessionID: out.SessionID})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	var body map[string]bool
	json.NewDecoder(resp.Body).Decode(&body)
	if !body["reset"] {
		t.Errorf("body = %v", body)
	}

	sess := g.get(out.SessionID)
	if sess.Agent.Memory.Len() != 0 || sess.Agent.CurrentStep != 0 {
		t.Errorf("agent not reset: len=%d step=%d", sess.Agent.Memory.Len(), sess.Agent.CurrentStep)
	}

	unknown := postJSON(t, srv, "/api/reset", resetRequest{SessionID: "nope"})
	unknown.Body.Close()
	if unknown.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d", unknown.StatusCode)
	}
}

func TestHandleStatus(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(NewServer(g).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out statusResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Status != "ok" || out.Model != "test-model" || out.Connected != 0 {
		t.Errorf("status = %+v", out)
	}
}

func TestWebSocket_StreamsRunEvents(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(NewServer(g).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/sess1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var connected wsFrame
	if err := conn.ReadJSON(&connected); err != nil || connected.Type != "connected" {
		t.Fatalf("first frame = %+v, err %v", connected, err)
	}

	if err := conn.WriteJSON(wsClientMessage{Message: "run it"}); err != nil {
		t.Fatal(err)
	}

	var types []string
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v (got %v)", err, types)
		}
		types = append(types, frame.Type)
		if frame.Type == "complete" || frame.Type == "error" {
			break
		}
	}

	joined := strings.Join(types, ",")
	for _, want := range []string{"message", "step", "tool_call", "tool_result", "token_usage", "complete"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q event in %v", want, types)
		}
	}
	if types[len(types)-1] != "complete" {
		t.Errorf("last event = %q", types[len(types)-1])
	}

	// tool_call precedes its tool_result.
	callIdx := strings.Index(joined, "tool_call")
	resIdx := strings.Index(joined, "tool_result")
	if callIdx == -1 || resIdx == -1 || callIdx > resIdx {
		t.Errorf("event order wrong: %v", types)
	}
}

func TestGateway_TTLEviction(t *testing.T) {
	factory := func() *agent.ToolCallAgent {
		reg := tool.NewRegistry()
		reg.Add(builtin.NewTerminateTool(), tool.SourceLocal)
		a := agent.NewToolCallAgent("strand", &wsProvider{}, reg)
		a.MaxSteps = 5
		return a
	}
	g := NewGateway(factory, t.TempDir(), "m", time.Second)
	defer g.Close()

	if _, err := g.getOrCreate("short-lived"); err != nil {
		t.Fatal(err)
	}
	if g.Count() != 1 {
		t.Fatalf("count = %d", g.Count())
	}

	deadline := time.Now().Add(5 * time.Second)
	for g.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not evicted")
		}
		time.Sleep(100 * time.Millisecond)
	}
}
