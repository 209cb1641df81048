package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/strandworks/strand/internal/tool"
	"github.com/strandworks/strand/internal/util"
)

const maxFileSize = 2 * 1024 * 1024 // 2 MB

// EditorTool views and edits files inside the workspace. Actions:
// view, create, str_replace, insert.
type EditorTool struct {
	workspaceDir string
}

// NewEditorTool creates a file editor rooted at workspaceDir.
func NewEditorTool(workspaceDir string) *EditorTool {
	return &EditorTool{workspaceDir: workspaceDir}
}

func (t *EditorTool) Name() string { return "str_replace_editor" }

func (t *EditorTool) Description() string {
	return "View, create and edit files in the workspace." +
		tool.FormatExamples(
			tool.Example{
				Description: "View a file with line numbers",
				Input:       `{"action": "view", "path": "main.py"}`,
			},
			tool.Example{
				Description: "Replace an exact string",
				Input:       `{"action": "str_replace", "path": "main.py", "old_str": "x = 1", "new_str": "x = 2"}`,
				Note:        "old_str must occur exactly once in the file",
			},
			tool.Example{
				Description: "Insert after line 10",
				Input:       `{"action": "insert", "path": "main.py", "insert_line": 10, "new_str": "print('hi')"}`,
			},
		)
}

func (t *EditorTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "action", Type: "string", Description: "Operation to perform", Required: true, Enum: []string{"view", "create", "str_replace", "insert"}},
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path, relative to the workspace", Required: true},
		tool.SchemaParam{Name: "content", Type: "string", Description: "File content for create"},
		tool.SchemaParam{Name: "old_str", Type: "string", Description: "Exact string to replace (str_replace)"},
		tool.SchemaParam{Name: "new_str", Type: "string", Description: "Replacement or inserted text"},
		tool.SchemaParam{Name: "insert_line", Type: "integer", Description: "Line number to insert after (insert); 0 inserts at the top"},
	)
}

func (t *EditorTool) Init(_ context.Context) error { return nil }
func (t *EditorTool) Close() error                 { return nil }

type editorArgs struct {
	Action     string `json:"action"`
	Path       string `json:"path"`
	Content    string `json:"content"`
	OldStr     string `json:"old_str"`
	NewStr     string `json:"new_str"`
	InsertLine int    `json:"insert_line"`
}

func (t *EditorTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a editorArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if a.Path == "" {
		return tool.ToolResult{Error: "path is required"}, nil
	}
	path, err := resolveInWorkspace(a.Path, t.workspaceDir)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	switch a.Action {
	case "view":
		return t.view(path)
	case "create":
		return t.create(path, a.Content)
	case "str_replace":
		return t.strReplace(path, a.OldStr, a.NewStr)
	case "insert":
		return t.insert(path, a.InsertLine, a.NewStr)
	default:
		return tool.ToolResult{Error: fmt.Sprintf("unknown action %q", a.Action)}, nil
	}
}

func (t *EditorTool) view(path string) (tool.ToolResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("file not found: %s", path)}, nil
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return tool.ToolResult{Error: fmt.Sprintf("read dir: %v", err)}, nil
		}
		var sb strings.Builder
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			sb.WriteString(name + "\n")
		}
		return tool.ToolResult{Output: sb.String()}, nil
	}
	if info.Size() > maxFileSize {
		return tool.ToolResult{Error: fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), maxFileSize)}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("read failed: %v", err)}, nil
	}
	lines := strings.Split(string(data), "\n")
	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%6d\t%s\n", i+1, line)
	}
	return tool.ToolResult{Output: util.TruncateRunes(sb.String(), maxOutputChars)}, nil
}

func (t *EditorTool) create(path, content string) (tool.ToolResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("create parent dirs: %v", err)}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("write failed: %v", err)}, nil
	}
	return tool.ToolResult{Output: fmt.Sprintf("Created %s (%d bytes)", path, len(content))}, nil
}

func (t *EditorTool) strReplace(path, oldStr, newStr string) (tool.ToolResult, error) {
	if oldStr == "" {
		return tool.ToolResult{Error: "old_str is required"}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("read failed: %v", err)}, nil
	}
	content := string(data)
	switch n := strings.Count(content, oldStr); {
	case n == 0:
		return tool.ToolResult{Error: "old_str not found in file"}, nil
	case n > 1:
		return tool.ToolResult{Error: fmt.Sprintf("old_str occurs %d times; make it unique", n)}, nil
	}
	content = strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("write failed: %v", err)}, nil
	}
	return tool.ToolResult{Output: fmt.Sprintf("Replaced 1 occurrence in %s", path)}, nil
}

func (t *EditorTool) insert(path string, afterLine int, text string) (tool.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("read failed: %v", err)}, nil
	}
	lines := strings.Split(string(data), "\n")
	if afterLine < 0 || afterLine > len(lines) {
		return tool.ToolResult{Error: fmt.Sprintf("insert_line %d out of range (file has %d lines)", afterLine, len(lines))}, nil
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:afterLine]...)
	out = append(out, text)
	out = append(out, lines[afterLine:]...)
	if err := os.WriteFile(path, []byte(strings.Join(out, "\n")), 0o644); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("write failed: %v", err)}, nil
	}
	return tool.ToolResult{Output: fmt.Sprintf("Inserted after line %d in %s", afterLine, path)}, nil
}

// resolveInWorkspace resolves path against workspaceDir and rejects
// anything that escapes it.
func resolveInWorkspace(path, workspaceDir string) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else if workspaceDir != "" {
		resolved = filepath.Clean(filepath.Join(workspaceDir, path))
	} else {
		resolved = filepath.Clean(path)
	}

	if workspaceDir != "" {
		absWorkspace, err := filepath.Abs(workspaceDir)
		if err != nil {
			return "", fmt.Errorf("resolve workspace dir: %w", err)
		}
		absResolved, err := filepath.Abs(resolved)
		if err != nil {
			return "", fmt.Errorf("resolve target path: %w", err)
		}
		// Separator suffix prevents prefix collision ("/ws" vs "/ws-evil").
		if absResolved != absWorkspace &&
			!strings.HasPrefix(absResolved, absWorkspace+string(os.PathSeparator)) {
			return "", fmt.Errorf("path %q escapes workspace %q", path, workspaceDir)
		}
	}
	return resolved, nil
}
