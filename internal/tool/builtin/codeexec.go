package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/strandworks/strand/internal/tool"
	"github.com/strandworks/strand/internal/util"
)

const codeExecTimeout = 60 * time.Second

// CodeExecTool runs a Python snippet in a subprocess. The snippet is
// written to a temporary file under the workspace so relative paths
// resolve the same way the shell tool's do.
type CodeExecTool struct {
	workspaceDir string
	python       string
}

// NewCodeExecTool creates a code execution tool. pythonBin defaults to
// "python3" when empty.
func NewCodeExecTool(workspaceDir, pythonBin string) *CodeExecTool {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &CodeExecTool{workspaceDir: workspaceDir, python: pythonBin}
}

func (t *CodeExecTool) Name() string { return "code_execution" }

func (t *CodeExecTool) Description() string {
	return "Execute a Python snippet and return stdout and stderr. " +
		"Use print() to surface values; the snippet times out after 60 seconds." +
		tool.FormatExamples(
			tool.Example{
				Description: "Compute a value",
				Input:       `{"code": "print(2 ** 16)"}`,
				Output:      "65536",
			},
		)
}

func (t *CodeExecTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "code", Type: "string", Description: "Python source to execute", Required: true},
	)
}

func (t *CodeExecTool) Init(_ context.Context) error { return nil }
func (t *CodeExecTool) Close() error                 { return nil }

type codeExecArgs struct {
	Code string `json:"code"`
}

func (t *CodeExecTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a codeExecArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if strings.TrimSpace(a.Code) == "" {
		return tool.ToolResult{Error: "code is required"}, nil
	}

	dir := t.workspaceDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "snippet-*.py")
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("create snippet file: %v", err)}, nil
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.WriteString(a.Code); err != nil {
		f.Close()
		return tool.ToolResult{Error: fmt.Sprintf("write snippet: %v", err)}, nil
	}
	f.Close()

	ctx, cancel := context.WithTimeout(ctx, codeExecTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.python, filepath.Base(path))
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	outStr := strings.TrimSpace(util.TruncateRunes(string(output), maxOutputChars))

	if err != nil {
		if ctx.Err() != nil {
			return tool.ToolResult{Error: fmt.Sprintf("execution timed out (%v)", codeExecTimeout)}, nil
		}
		return tool.ToolResult{Output: outStr, Error: fmt.Sprintf("execution failed: %v", err)}, nil
	}
	if outStr == "" {
		outStr = "(no output; use print() to surface values)"
	}
	return tool.ToolResult{Output: outStr}, nil
}
