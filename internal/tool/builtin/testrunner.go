package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/strandworks/strand/internal/tool"
	"github.com/strandworks/strand/internal/util"
)

const testRunTimeout = 60 * time.Second

// TestRunnerTool runs a project's test suite and reports the result.
// It recognizes a small set of runners by name; "auto" picks pytest
// for Python files and "go test" otherwise.
type TestRunnerTool struct {
	workspaceDir string
}

// NewTestRunnerTool creates a test runner rooted at workspaceDir.
func NewTestRunnerTool(workspaceDir string) *TestRunnerTool {
	return &TestRunnerTool{workspaceDir: workspaceDir}
}

func (t *TestRunnerTool) Name() string { return "test_runner" }

func (t *TestRunnerTool) Description() string {
	return "Run tests in the workspace and return the runner's output. " +
		"Tests time out after 60 seconds."
}

func (t *TestRunnerTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "runner", Type: "string", Description: "Test runner to use (default auto)", Enum: []string{"auto", "pytest", "go", "unittest"}},
		tool.SchemaParam{Name: "target", Type: "string", Description: "Test file, package or selector to run (default: whole suite)"},
	)
}

func (t *TestRunnerTool) Init(_ context.Context) error { return nil }
func (t *TestRunnerTool) Close() error                 { return nil }

type testRunnerArgs struct {
	Runner string `json:"runner"`
	Target string `json:"target"`
}

func (t *TestRunnerTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a testRunnerArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	name, argv := buildTestCommand(a.Runner, a.Target)

	ctx, cancel := context.WithTimeout(ctx, testRunTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, argv...)
	if t.workspaceDir != "" {
		cmd.Dir = t.workspaceDir
	}
	output, err := cmd.CombinedOutput()
	outStr := strings.TrimSpace(util.TruncateRunes(string(output), maxOutputChars))

	if ctx.Err() != nil {
		return tool.ToolResult{Error: fmt.Sprintf("tests timed out (%v): %s", testRunTimeout, outStr)}, nil
	}
	if err != nil {
		return tool.ToolResult{Output: outStr, Error: fmt.Sprintf("tests failed: %v", err)}, nil
	}
	if outStr == "" {
		outStr = "(tests passed with no output)"
	}
	return tool.ToolResult{Output: outStr}, nil
}

func buildTestCommand(runner, target string) (string, []string) {
	switch runner {
	case "pytest":
		if target != "" {
			return "python3", []string{"-m", "pytest", "-v", target}
		}
		return "python3", []string{"-m", "pytest", "-v"}
	case "unittest":
		if target != "" {
			return "python3", []string{"-m", "unittest", "-v", target}
		}
		return "python3", []string{"-m", "unittest", "discover", "-v"}
	case "go":
		if target != "" {
			return "go", []string{"test", "-v", target}
		}
		return "go", []string{"test", "./..."}
	default: // auto
		if strings.HasSuffix(target, ".py") {
			return "python3", []string{"-m", "pytest", "-v", target}
		}
		if target != "" {
			return "go", []string{"test", "-v", target}
		}
		return "go", []string{"test", "./..."}
	}
}
