package llm

import (
	"context"
	"encoding/json"
)

// Message represents a single chat message exchanged with the model.
// Messages are immutable once appended to an agent's memory; compaction
// strategies build new messages rather than editing existing ones.
type Message struct {
	Role        string     `json:"role"`                   // "system", "user", "assistant", "tool"
	Content     string     `json:"content"`                // The message text
	Name        string     `json:"name,omitempty"`         // Tool name when role="tool"
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`   // Tool calls requested by the model
	ToolCallID  string     `json:"tool_call_id,omitempty"` // When role="tool", the ID of the call this responds to
	Base64Image string     `json:"base64_image,omitempty"` // Optional inline image payload
}

// ToolCall represents a single tool call emitted by the model.
// Exactly one tool-role reply with a matching ToolCallID answers each call.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes a tool for function calling.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToMap converts a message to its canonical mapping form, suitable for
// serialization into recorder events and trial transcripts.
func (m Message) ToMap() map[string]any {
	out := map[string]any{"role": m.Role, "content": m.Content}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			calls[i] = map[string]any{
				"id":        tc.ID,
				"name":      tc.Name,
				"arguments": string(tc.Arguments),
			}
		}
		out["tool_calls"] = calls
	}
	if m.Base64Image != "" {
		out["base64_image"] = m.Base64Image
	}
	return out
}

// Role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool choice modes for AskWithTools.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage builds a tool-role reply correlated to a tool call.
func ToolMessage(content, name, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}

// Provider defines the interface the agent core requires from an LLM backend.
// Any OpenAI-compatible endpoint (litellm, Ollama, Azure, vLLM, etc.)
// can be used by implementing this interface.
type Provider interface {
	// Ask sends messages (optionally prefixed by systemMsgs) and returns the
	// model's text reply.
	Ask(ctx context.Context, messages []Message, systemMsgs []Message) (string, error)

	// AskWithTools sends messages with tool definitions for function calling.
	// toolChoice is one of ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired.
	// The returned assistant message may carry ToolCalls.
	AskWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, systemMsgs []Message, toolChoice string) (Message, error)

	// CountMessageTokens estimates the token footprint of a message list.
	// Used by the context manager's budget watchdog; precision of ±20-30%
	// is sufficient for threshold checks.
	CountMessageTokens(messages []Message) int

	// TotalInputTokens returns the cumulative prompt tokens consumed.
	TotalInputTokens() int64

	// TotalCompletionTokens returns the cumulative completion tokens generated.
	TotalCompletionTokens() int64
}
