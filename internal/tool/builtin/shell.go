// Package builtin contains the native tools registered with source "local":
// shell, code execution, file editing, test running, browsing and terminate.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/strandworks/strand/internal/tool"
	"github.com/strandworks/strand/internal/util"
)

const (
	shellTimeout   = 30 * time.Second
	maxOutputChars = 8000
)

// dangerousPatterns are command patterns blocked for safety.
// Checked case-insensitively against the command string.
var dangerousPatterns = []string{
	"rm -rf /",
	"rm -rf /*",
	"mkfs",
	"dd if=",
	"format c:",
	":(){:|:&};:", // fork bomb
	"shutdown",
	"reboot",
	"halt",
	"init 0",
	"init 6",
}

// ShellTool executes shell commands with timeout and output limits.
type ShellTool struct {
	workspaceDir string
	enabled      bool
}

// NewShellTool creates a shell tool. Set enabled=false to disable execution.
func NewShellTool(workspaceDir string, enabled bool) *ShellTool {
	return &ShellTool{
		workspaceDir: workspaceDir,
		enabled:      enabled,
	}
}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Execute a shell command in the workspace and return its combined output. " +
		"Commands time out after 30 seconds."
}

func (t *ShellTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "command", Type: "string", Description: "The command to execute", Required: true},
	)
}

func (t *ShellTool) Init(_ context.Context) error { return nil }
func (t *ShellTool) Close() error                 { return nil }

type shellArgs struct {
	Command string `json:"command"`
}

func (t *ShellTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	if !t.enabled {
		return tool.ToolResult{Error: "shell tool is disabled"}, nil
	}

	var a shellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if a.Command == "" {
		return tool.ToolResult{Error: "command is required"}, nil
	}

	cmdLower := strings.ToLower(a.Command)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(cmdLower, pattern) {
			return tool.ToolResult{Error: fmt.Sprintf("blocked: command contains dangerous pattern %q", pattern)}, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/c", a.Command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", a.Command)
	}
	if t.workspaceDir != "" {
		cmd.Dir = t.workspaceDir
	}

	output, err := cmd.CombinedOutput()
	outStr := strings.TrimSpace(util.TruncateRunes(string(output), maxOutputChars))

	if err != nil {
		if ctx.Err() != nil {
			return tool.ToolResult{Error: fmt.Sprintf("command timed out (%v): %s", shellTimeout, outStr)}, nil
		}
		return tool.ToolResult{Output: outStr, Error: fmt.Sprintf("command exited with error: %v", err)}, nil
	}
	if outStr == "" {
		outStr = "(command completed with no output)"
	}
	return tool.ToolResult{Output: outStr}, nil
}
