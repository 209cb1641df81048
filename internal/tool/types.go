package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/strandworks/strand/internal/llm"
)

// Tool is the unified interface for all tools.
// Built-in tools, remote tool proxies, the task tool, and the tool-search
// tool all implement this interface.
type Tool interface {
	// Name returns the tool identifier (the model uses this name to invoke the tool).
	Name() string

	// Description returns a natural-language description for model prompt injection.
	Description() string

	// InputSchema returns a standard JSON Schema object defining the tool's
	// parameters. Compatible with MCP and OpenAI function calling.
	InputSchema() json.RawMessage

	// Execute runs the tool with JSON-encoded arguments.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Init initializes tool resources (e.g. remote connections).
	// Most tools may return nil.
	Init(ctx context.Context) error

	// Close releases tool resources.
	Close() error
}

// ToolResult encapsulates a tool execution result.
// A result is truthy iff any field is populated.
type ToolResult struct {
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	Base64Image string `json:"base64_image,omitempty"`
	System      string `json:"system,omitempty"` // out-of-band note for the agent, not shown to the model
}

// Truthy reports whether the result carries any content.
func (r ToolResult) Truthy() bool {
	return r.Output != "" || r.Error != "" || r.Base64Image != "" || r.System != ""
}

// Combine concatenates two results for streaming or multi-part output.
// Text fields join with a newline; the later image wins.
func (r ToolResult) Combine(other ToolResult) ToolResult {
	out := ToolResult{
		Output:      joinNonEmpty(r.Output, other.Output),
		Error:       joinNonEmpty(r.Error, other.Error),
		System:      joinNonEmpty(r.System, other.System),
		Base64Image: r.Base64Image,
	}
	if other.Base64Image != "" {
		out.Base64Image = other.Base64Image
	}
	return out
}

// String renders the result the way it is appended to memory: error text
// takes precedence over output.
func (r ToolResult) String() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return r.Output
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}

// SchemaParam describes a single parameter for the BuildSchema helper.
type SchemaParam struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "integer", "boolean", "number", "object"
	Description string   `json:"description"`
	Required    bool     `json:"-"`
	Enum        []string `json:"enum,omitempty"`
}

// BuildSchema generates a standard JSON Schema object from a list of
// SchemaParams. This helper lets native tools avoid hand-writing JSON strings.
func BuildSchema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any)
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, _ := json.Marshal(schema)
	return data
}

// Example is a numbered usage example embedded in a tool description.
type Example struct {
	Description string
	Input       string // JSON arguments
	Output      string
	Note        string
}

// FormatExamples renders examples in the convention the model is prompted
// with: one numbered block per example.
func FormatExamples(examples ...Example) string {
	if len(examples) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\nExamples:\n")
	for i, ex := range examples {
		fmt.Fprintf(&sb, "%d. %s\n   Input: %s\n", i+1, ex.Description, ex.Input)
		if ex.Output != "" {
			fmt.Fprintf(&sb, "   Output: %s\n", ex.Output)
		}
		if ex.Note != "" {
			fmt.Fprintf(&sb, "   Note: %s\n", ex.Note)
		}
	}
	return sb.String()
}

// ToParam converts a tool to the function-calling definition sent to the model.
func ToParam(t Tool) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.InputSchema(),
	}
}
