package tool

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildSchema(t *testing.T) {
	schema := BuildSchema(
		SchemaParam{Name: "command", Type: "string", Description: "shell command", Required: true},
		SchemaParam{Name: "mode", Type: "string", Description: "run mode", Enum: []string{"fast", "safe"}},
	)

	var parsed map[string]any
	if err := json.Unmarshal(schema, &parsed); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if parsed["type"] != "object" {
		t.Errorf("type = %v, want object", parsed["type"])
	}
	props := parsed["properties"].(map[string]any)
	if _, ok := props["command"]; !ok {
		t.Error("missing command property")
	}
	mode := props["mode"].(map[string]any)
	if enum := mode["enum"].([]any); len(enum) != 2 {
		t.Errorf("enum length = %d, want 2", len(enum))
	}
	required := parsed["required"].([]any)
	if len(required) != 1 || required[0] != "command" {
		t.Errorf("required = %v, want [command]", required)
	}
}

func TestToolResult_Truthy(t *testing.T) {
	if (ToolResult{}).Truthy() {
		t.Error("empty result should be falsy")
	}
	if !(ToolResult{Output: "x"}).Truthy() {
		t.Error("result with output should be truthy")
	}
	if !(ToolResult{Error: "boom"}).Truthy() {
		t.Error("result with error should be truthy")
	}
	if !(ToolResult{System: "note"}).Truthy() {
		t.Error("result with system note should be truthy")
	}
}

func TestToolResult_Combine(t *testing.T) {
	a := ToolResult{Output: "part1", Base64Image: "img1"}
	b := ToolResult{Output: "part2", Error: "warn", Base64Image: "img2"}

	c := a.Combine(b)
	if c.Output != "part1\npart2" {
		t.Errorf("output = %q", c.Output)
	}
	if c.Error != "warn" {
		t.Errorf("error = %q", c.Error)
	}
	if c.Base64Image != "img2" {
		t.Error("later image should win")
	}
}

func TestToolResult_String(t *testing.T) {
	if got := (ToolResult{Output: "ok", Error: "bad"}).String(); got != "Error: bad" {
		t.Errorf("String() = %q, want error to take precedence", got)
	}
	if got := (ToolResult{Output: "ok"}).String(); got != "ok" {
		t.Errorf("String() = %q", got)
	}
}

func TestFormatExamples(t *testing.T) {
	s := FormatExamples(
		Example{Description: "basic", Input: `{"q":1}`, Output: "done", Note: "careful"},
		Example{Description: "second", Input: `{}`},
	)
	for _, want := range []string{"1. basic", `Input: {"q":1}`, "Output: done", "Note: careful", "2. second"} {
		if !strings.Contains(s, want) {
			t.Errorf("formatted examples missing %q:\n%s", want, s)
		}
	}
	if FormatExamples() != "" {
		t.Error("no examples should render empty")
	}
}
