package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SearchTool ranks the registry's tools against a free-text query so the
// model can discover tools on demand instead of carrying every schema in
// its initial context. It holds a lookup handle into the registry, not
// ownership.
type SearchTool struct {
	registry *Registry
}

// NewSearchTool creates a tool_search tool over the given registry.
func NewSearchTool(registry *Registry) *SearchTool {
	return &SearchTool{registry: registry}
}

func (t *SearchTool) Name() string { return "tool_search" }

func (t *SearchTool) Description() string {
	return "Search the available tools by keyword. Returns the best-matching tool names " +
		"and descriptions so you can pick one to call next." +
		FormatExamples(
			Example{
				Description: "Find tools for running code",
				Input:       `{"query": "run python code"}`,
				Output:      "ranked list of matching tools",
			},
			Example{
				Description: "Get full schemas for file editing tools",
				Input:       `{"query": "edit file", "detail": "schemas", "max_results": 3}`,
			},
		)
}

func (t *SearchTool) InputSchema() json.RawMessage {
	return BuildSchema(
		SchemaParam{Name: "query", Type: "string", Description: "Keywords describing the capability you need", Required: true},
		SchemaParam{Name: "max_results", Type: "integer", Description: "Maximum number of tools to return (default 8)"},
		SchemaParam{Name: "detail", Type: "string", Description: "Level of detail in results (default names)", Enum: []string{"names", "schemas"}},
	)
}

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Detail     string `json:"detail"`
}

type scoredTool struct {
	tool  Tool
	score int
}

func (t *SearchTool) Execute(_ context.Context, args json.RawMessage) (ToolResult, error) {
	var in searchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if strings.TrimSpace(in.Query) == "" {
		return ToolResult{Error: "query is required"}, nil
	}
	if in.MaxResults <= 0 {
		in.MaxResults = 8
	}
	if in.Detail == "" {
		in.Detail = "names"
	}

	ranked := rankTools(t.registry.Tools(), in.Query)
	if len(ranked) == 0 {
		return ToolResult{Output: fmt.Sprintf("No tools match %q.", in.Query)}, nil
	}
	if len(ranked) > in.MaxResults {
		ranked = ranked[:in.MaxResults]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d matching tools:\n", len(ranked))
	for _, st := range ranked {
		fmt.Fprintf(&sb, "\n- %s: %s\n", st.tool.Name(), firstLine(st.tool.Description()))
		if in.Detail == "schemas" {
			fmt.Fprintf(&sb, "  Schema: %s\n", string(st.tool.InputSchema()))
		}
	}
	return ToolResult{Output: sb.String()}, nil
}

func (t *SearchTool) Init(context.Context) error { return nil }
func (t *SearchTool) Close() error               { return nil }

// rankTools scores each tool by how many query tokens appear as
// substrings of its name+description. Zero-score tools are dropped;
// ties break by name for stable output.
func rankTools(tools []Tool, query string) []scoredTool {
	tokens := strings.Fields(strings.ToLower(query))
	var ranked []scoredTool
	for _, tl := range tools {
		haystack := strings.ToLower(tl.Name() + " " + tl.Description())
		score := 0
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scoredTool{tool: tl, score: score})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].tool.Name() < ranked[j].tool.Name()
	})
	return ranked
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
