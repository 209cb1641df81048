package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/strandworks/strand/internal/tool"
)

// MemoryTool exposes the persistent store to the model with actions
// store, retrieve, search, list and clear.
type MemoryTool struct {
	store *Store
}

// NewMemoryTool wraps a store as a registrable tool.
func NewMemoryTool(store *Store) *MemoryTool {
	return &MemoryTool{store: store}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Store and recall facts across runs in a persistent key-value memory. " +
		"Use it for user preferences, project facts and decisions worth remembering." +
		tool.FormatExamples(
			tool.Example{
				Description: "Remember a fact",
				Input:       `{"action": "store", "key": "favorite_lang", "value": "Go", "category": "preferences"}`,
			},
			tool.Example{
				Description: "Recall it later",
				Input:       `{"action": "retrieve", "key": "favorite_lang"}`,
				Output:      "Go",
			},
			tool.Example{
				Description: "Search by substring",
				Input:       `{"action": "search", "query": "lang"}`,
			},
		)
}

func (t *MemoryTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "action", Type: "string", Description: "Memory operation", Required: true, Enum: []string{"store", "retrieve", "search", "list", "clear"}},
		tool.SchemaParam{Name: "key", Type: "string", Description: "Entry key (store, retrieve, clear)"},
		tool.SchemaParam{Name: "value", Type: "string", Description: "Entry value (store)"},
		tool.SchemaParam{Name: "category", Type: "string", Description: "Free-form category tag (store, list, clear)"},
		tool.SchemaParam{Name: "query", Type: "string", Description: "Substring to match in keys and values (search)"},
	)
}

func (t *MemoryTool) Init(_ context.Context) error { return nil }
func (t *MemoryTool) Close() error                 { return nil }

type memoryArgs struct {
	Action   string `json:"action"`
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category"`
	Query    string `json:"query"`
}

func (t *MemoryTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a memoryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	switch a.Action {
	case "store":
		if a.Key == "" || a.Value == "" {
			return tool.ToolResult{Error: "store requires key and value"}, nil
		}
		if err := t.store.Put(ctx, a.Key, a.Value, a.Category); err != nil {
			return tool.ToolResult{Error: err.Error()}, nil
		}
		return tool.ToolResult{Output: fmt.Sprintf("Stored %q.", a.Key)}, nil

	case "retrieve":
		if a.Key == "" {
			return tool.ToolResult{Error: "retrieve requires key"}, nil
		}
		e, err := t.store.Get(ctx, a.Key)
		if err != nil {
			return tool.ToolResult{Error: err.Error()}, nil
		}
		if e == nil {
			return tool.ToolResult{Error: fmt.Sprintf("no memory with key %q", a.Key)}, nil
		}
		return tool.ToolResult{Output: e.Value}, nil

	case "search":
		if a.Query == "" {
			return tool.ToolResult{Error: "search requires query"}, nil
		}
		entries, err := t.store.Search(ctx, a.Query, 20)
		if err != nil {
			return tool.ToolResult{Error: err.Error()}, nil
		}
		return tool.ToolResult{Output: fmt.Sprintf("Found %d entries:\n%s", len(entries), summarize(entries))}, nil

	case "list":
		entries, err := t.store.List(ctx, a.Category, 50)
		if err != nil {
			return tool.ToolResult{Error: err.Error()}, nil
		}
		counts, err := t.store.CategoryCounts(ctx)
		if err != nil {
			return tool.ToolResult{Error: err.Error()}, nil
		}
		var sb strings.Builder
		sb.WriteString("Categories:")
		for cat, n := range counts {
			if cat == "" {
				cat = "(none)"
			}
			fmt.Fprintf(&sb, " %s=%d", cat, n)
		}
		sb.WriteString("\n")
		sb.WriteString(summarize(entries))
		return tool.ToolResult{Output: sb.String()}, nil

	case "clear":
		n, err := t.store.Clear(ctx, a.Key, a.Category)
		if err != nil {
			return tool.ToolResult{Error: err.Error()}, nil
		}
		return tool.ToolResult{Output: fmt.Sprintf("Cleared %d entries.", n)}, nil

	default:
		return tool.ToolResult{Error: fmt.Sprintf("unknown action %q", a.Action)}, nil
	}
}
