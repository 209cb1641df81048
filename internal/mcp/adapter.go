package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/strandworks/strand/internal/tool"
)

// RemoteTool proxies one server tool behind the tool.Tool interface so
// the agent cannot tell it from a local tool.
//
// Names follow mcp_<server>__<tool>; the double underscore keeps server
// and tool names unambiguous even when either contains underscores.
type RemoteTool struct {
	serverName string
	info       RemoteToolInfo
	client     *Client
}

// NewRemoteTool wraps one remote tool.
func NewRemoteTool(serverName string, info RemoteToolInfo, client *Client) *RemoteTool {
	return &RemoteTool{serverName: serverName, info: info, client: client}
}

func (t *RemoteTool) Name() string {
	return fmt.Sprintf("mcp_%s__%s", t.serverName, t.info.Name)
}

func (t *RemoteTool) Description() string { return t.info.Description }

func (t *RemoteTool) InputSchema() json.RawMessage {
	if len(t.info.InputSchema) == 0 {
		return tool.BuildSchema()
	}
	return t.info.InputSchema
}

// Execute forwards the call over the session. Transport and tool-level
// failures both become ToolResult errors so the loop continues.
func (t *RemoteTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var params map[string]any
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &params); err != nil {
			return tool.ToolResult{Error: fmt.Sprintf("parse args for %q: %v", t.Name(), err)}, nil
		}
	}

	text, err := t.client.CallTool(ctx, t.info.Name, params)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}
	return tool.ToolResult{Output: text}, nil
}

// Init is a no-op; the Manager owns the connection lifecycle.
func (t *RemoteTool) Init(_ context.Context) error { return nil }

// Close is a no-op; adapters never close the shared session.
func (t *RemoteTool) Close() error { return nil }
