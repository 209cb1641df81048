package builtin

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestShellTool_Disabled(t *testing.T) {
	sh := NewShellTool("", false)
	res, err := sh.Execute(context.Background(), json.RawMessage(`{"command":"echo hi"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Error, "disabled") {
		t.Errorf("error = %q, want disabled", res.Error)
	}
}

func TestShellTool_BlocksDangerousPatterns(t *testing.T) {
	sh := NewShellTool("", true)
	res, _ := sh.Execute(context.Background(), json.RawMessage(`{"command":"rm -rf / --no-preserve-root"}`))
	if !strings.Contains(res.Error, "dangerous pattern") {
		t.Errorf("error = %q, want dangerous pattern block", res.Error)
	}
}

func TestShellTool_MissingCommand(t *testing.T) {
	sh := NewShellTool("", true)
	res, _ := sh.Execute(context.Background(), json.RawMessage(`{}`))
	if res.Error == "" {
		t.Error("empty command should return an error")
	}
}

func TestShellTool_RunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell test")
	}
	sh := NewShellTool(t.TempDir(), true)
	res, err := sh.Execute(context.Background(), json.RawMessage(`{"command":"echo hello"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Output != "hello" {
		t.Errorf("output = %q, want hello", res.Output)
	}
}
